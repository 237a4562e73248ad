package errorx

import "fmt"

// Category buckets every error the gateway can produce. Categories drive
// logging and metrics labels; the client-facing text stays generic.
type Category string

const (
	// CategoryAuth covers handshake refusals before any upgrade.
	CategoryAuth Category = "auth"
	// CategoryFraming covers malformed inbound frames and packets.
	CategoryFraming Category = "framing"
	// CategoryUnknownEvent covers well-formed frames naming no known event.
	CategoryUnknownEvent Category = "unknown_event"
	// CategoryUpstream covers AI provider and session store failures.
	CategoryUpstream Category = "upstream"
	// CategoryTransport covers websocket and polling transport failures.
	CategoryTransport Category = "transport"
)

// GatewayError carries a client-safe message and an optional internal
// cause. Message alone is safe to write to clients; Error() appends the
// cause for logs.
type GatewayError struct {
	Category Category
	Message  string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// New creates a gateway error without an internal cause.
func New(category Category, message string) *GatewayError {
	return &GatewayError{Category: category, Message: message}
}

// Wrap attaches an internal cause that stays out of the client-facing text.
func Wrap(category Category, message string, err error) *GatewayError {
	return &GatewayError{Category: category, Message: message, Err: err}
}

// Newf creates a gateway error with a formatted client-safe message.
func Newf(category Category, format string, args ...any) *GatewayError {
	return &GatewayError{Category: category, Message: fmt.Sprintf(format, args...)}
}
