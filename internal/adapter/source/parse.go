package source

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ratePattern = regexp.MustCompile(`^-?[0-9]+(?:\.[0-9]+)?$`)

// currency symbols and spacing the page may prepend to a rate value
const symbolCutset = "$¥€£₹ \t "

// parseRate strips locale formatting from extracted text and converts it to
// a float. Thousands separators are commas; the decimal separator is a dot.
func parseRate(text string) (float64, error) {
	cleaned := strings.Trim(text, symbolCutset)
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	if !ratePattern.MatchString(cleaned) {
		return 0, fmt.Errorf("text %q does not match a numeric rate", text)
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("text %q is not a valid rate: %w", text, err)
	}
	return value, nil
}
