package relay

// State is a step of a single client exchange.
type State int

const (
	StateAccepted State = iota
	StateReadingRequest
	StateBackendSelected
	StateForwarding
	StateRelayingResponse
	StateBackendUnreachable
	StateRequestTooLarge
	StateRequestTimeout
	StateErrorResponse
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateReadingRequest:
		return "reading_request"
	case StateBackendSelected:
		return "backend_selected"
	case StateForwarding:
		return "forwarding"
	case StateRelayingResponse:
		return "relaying_response"
	case StateBackendUnreachable:
		return "backend_unreachable"
	case StateRequestTooLarge:
		return "request_too_large"
	case StateRequestTimeout:
		return "request_timeout"
	case StateErrorResponse:
		return "error_response"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
