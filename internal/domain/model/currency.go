package model

import (
	"fmt"
	"strings"
)

type Currency string

func (c Currency) String() string {
	return string(c)
}

// Valid reports whether the code looks like an ISO-4217 currency code.
func (c Currency) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// CurrencyPair identifies a tracked rate: quote units per one base unit.
type CurrencyPair struct {
	Base  Currency `json:"base"`
	Quote Currency `json:"quote"`
}

func NewPair(base, quote string) (CurrencyPair, error) {
	pair := CurrencyPair{
		Base:  Currency(strings.ToUpper(strings.TrimSpace(base))),
		Quote: Currency(strings.ToUpper(strings.TrimSpace(quote))),
	}
	if !pair.Valid() {
		return CurrencyPair{}, fmt.Errorf("invalid currency pair %q/%q", base, quote)
	}
	return pair, nil
}

func (p CurrencyPair) Valid() bool {
	return p.Base.Valid() && p.Quote.Valid() && p.Base != p.Quote
}

func (p CurrencyPair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}
