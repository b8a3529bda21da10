package model

import "testing"

func TestNewPair(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		quote   string
		want    string
		wantErr bool
	}{
		{name: "valid", base: "USD", quote: "JPY", want: "USD/JPY"},
		{name: "lowercase normalized", base: "usd", quote: "jpy", want: "USD/JPY"},
		{name: "whitespace trimmed", base: " EUR ", quote: "USD", want: "EUR/USD"},
		{name: "same currency", base: "USD", quote: "USD", wantErr: true},
		{name: "empty base", base: "", quote: "JPY", wantErr: true},
		{name: "too short", base: "US", quote: "JPY", wantErr: true},
		{name: "digits rejected", base: "US1", quote: "JPY", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := NewPair(tt.base, tt.quote)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewPair(%q, %q) = %v, want error", tt.base, tt.quote, pair)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPair(%q, %q) returned error: %v", tt.base, tt.quote, err)
			}
			if pair.String() != tt.want {
				t.Errorf("pair = %q, want %q", pair.String(), tt.want)
			}
		})
	}
}
