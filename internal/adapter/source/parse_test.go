package source

import "testing"

func TestParseRate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "plain value", input: "0.0067", want: 0.0067},
		{name: "integer value", input: "155", want: 155},
		{name: "thousands separator", input: "1,234.56", want: 1234.56},
		{name: "leading dollar sign", input: "$0.0067", want: 0.0067},
		{name: "yen sign and spaces", input: " ¥155.02 ", want: 155.02},
		{name: "negative value", input: "-1.5", want: -1.5},
		{name: "empty", input: "", wantErr: true},
		{name: "not a number", input: "N/A", wantErr: true},
		{name: "trailing garbage", input: "0.0067abc", wantErr: true},
		{name: "two decimal points", input: "1.2.3", wantErr: true},
		{name: "scientific notation rejected", input: "1e5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRate(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseRate(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRate(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseRate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
