package source

import (
	"errors"
	"fmt"

	"ratewatch/internal/domain/model"
)

type Kind string

const (
	KindUnsupportedPair   Kind = "unsupported_pair"
	KindNavigationTimeout Kind = "navigation_timeout"
	KindElementNotFound   Kind = "element_not_found"
	KindParseError        Kind = "parse_error"
	KindSessionError      Kind = "session_error"
)

// FetchError is the typed failure produced by a rate source. The kind
// drives the retry decision in the fetch controller.
type FetchError struct {
	Kind Kind
	Pair model.CurrencyPair
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Pair, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Pair, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is plausibly resolved by retrying.
// Parse failures and unsupported pairs are not: the data, not the
// transport, is suspect.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case KindNavigationTimeout, KindElementNotFound, KindSessionError:
		return true
	}
	return false
}

// KindOf extracts the fetch error kind, or "" when err is not a FetchError.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
