package relay

import (
	"errors"
	"net/http"
)

var (
	ErrMalformedRequest    = errors.New("malformed request line")
	ErrRequestTooLarge     = errors.New("request too large")
	ErrRequestTimeout      = errors.New("timed out reading request")
	ErrIncompleteRequest   = errors.New("client closed before end of headers")
	ErrNoBackend           = errors.New("no backend available")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrUpstreamTimeout     = errors.New("upstream timed out")

	errClientWrite = errors.New("writing response to client")
)

// failure describes how a relay error is reported to the client and to
// metrics. A zero status closes the connection without a response.
type failure struct {
	kind   string
	status int
}

func classify(err error) failure {
	switch {
	case errors.Is(err, ErrRequestTimeout):
		return failure{kind: "request_timeout"}
	case errors.Is(err, ErrIncompleteRequest):
		return failure{kind: "incomplete_request"}
	case errors.Is(err, errClientWrite):
		return failure{kind: "client_write"}
	case errors.Is(err, ErrRequestTooLarge):
		return failure{kind: "request_too_large", status: http.StatusBadRequest}
	case errors.Is(err, ErrMalformedRequest):
		return failure{kind: "malformed_request", status: http.StatusBadRequest}
	case errors.Is(err, ErrNoBackend):
		return failure{kind: "no_backend", status: http.StatusServiceUnavailable}
	case errors.Is(err, ErrUpstreamTimeout):
		return failure{kind: "upstream_timeout", status: http.StatusBadGateway}
	case errors.Is(err, ErrUpstreamUnreachable):
		return failure{kind: "upstream_unreachable", status: http.StatusBadGateway}
	default:
		return failure{kind: "internal", status: http.StatusInternalServerError}
	}
}
