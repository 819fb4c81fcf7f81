package scorecard

import "errors"

var (
	// ErrRateLimited is returned once a page stayed rate limited (429) for
	// every attempt.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransient is returned once a page kept timing out or failing at the
	// network level for every attempt.
	ErrTransient = errors.New("transient network failure")
	// ErrBadRequest is a 400 response, usually a bad field name or api key.
	ErrBadRequest = errors.New("bad request")
	// ErrHTTPStatus is any other non-200 response.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrAPIError is an error payload inside a 200 response.
	ErrAPIError = errors.New("api error")
	// ErrNoData is returned when a fetch completes without a single record.
	ErrNoData = errors.New("no data retrieved")
)
