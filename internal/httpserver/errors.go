package httpserver

// Responses stay generic; internal error detail is logged, never returned to
// the carrier or the dashboard.
const (
	ErrInvalidJSON      = "invalid json"
	ErrMissingFields    = "missing required fields"
	ErrBadForm          = "bad form"
	ErrInvalidSignature = "invalid signature"
	ErrCreatePair       = "failed to create parent pair"
	ErrListPairs        = "failed to fetch parent pairs"
	ErrListMessages     = "failed to fetch messages"
	ErrProcessMessage   = "failed to process message"
)
