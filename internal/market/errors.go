package market

import (
	"fmt"
	"strings"
)

// ProviderError is a single provider's failure. The chain treats it as
// recoverable and moves on to the next provider.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AllProvidersFailedError is terminal for one fetch: every provider in the
// chain failed. It carries each provider's failure message.
type AllProvidersFailedError struct {
	AssetID  string
	Attempts []string
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("unable to retrieve data for %s. attempts: %s",
		e.AssetID, strings.Join(e.Attempts, " | "))
}

// DataUnavailableError means no provider succeeded and no cached snapshot
// exists, not even a stale one. The orchestration run aborts.
type DataUnavailableError struct {
	AssetID string
	Err     error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("no market data available for %s: %v", e.AssetID, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }
