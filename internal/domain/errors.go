package domain

import "fmt"

// FetchError reports that the announcement source was unreachable or
// returned a payload that could not be parsed. It aborts the current
// cycle without touching the store.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AllTargetsFailedError reports that every configured target rejected one
// announcement. The announcement stays unknown to the store and is
// retried on the next cycle.
type AllTargetsFailedError struct {
	ID string
}

func (e *AllTargetsFailedError) Error() string {
	return fmt.Sprintf("all targets failed for announcement %q", e.ID)
}
