package model

import "time"

// RawReading is a single unvalidated observation extracted from the source
// page. The fetch controller turns it into a RateSample.
type RawReading struct {
	Value      float64   `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
}

// RateSample is one validated, timestamped rate observation. It is created
// only by the fetch controller and never mutated afterwards.
type RateSample struct {
	Pair      CurrencyPair `json:"pair"`
	Value     float64      `json:"value"`
	Timestamp time.Time    `json:"timestamp"`
	Source    string       `json:"source"`
}
