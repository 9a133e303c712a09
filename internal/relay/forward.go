package relay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
)

// Forward sends request verbatim to b and returns everything the backend
// wrote back. An error wraps ErrUpstreamUnreachable or ErrUpstreamTimeout.
func Forward(b *backend.Backend, request []byte, opts Options) ([]byte, error) {
	opts = opts.withDefaults()

	conn, err := net.DialTimeout("tcp", b.Address(), opts.BackendTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrUpstreamUnreachable, b.Address(), err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(opts.BackendTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
	}
	if _, err := conn.Write(request); err != nil {
		return nil, fmt.Errorf("%w: write to %s: %w", ErrUpstreamUnreachable, b.Address(), err)
	}

	method, _ := parseRequestLine(request)
	return drain(conn, method, opts)
}

// drain reads a response until EOF, until the bytes satisfy the framing the
// response declares, or until IdleGap passes without new data. Before the
// first byte it waits at most BackendTimeout.
func drain(conn net.Conn, method string, opts Options) ([]byte, error) {
	var response []byte
	chunk := make([]byte, 8192)
	start := time.Now()
	lastRead := start

	for {
		if err := conn.SetReadDeadline(time.Now().Add(opts.PollInterval)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			response = append(response, chunk[:n]...)
			lastRead = time.Now()
			if responseComplete(response, method) {
				return response, nil
			}
		}
		if err == nil {
			continue
		}

		switch {
		case isTimeout(err):
			if len(response) == 0 {
				if time.Since(start) >= opts.BackendTimeout {
					return nil, fmt.Errorf("%w: no response after %s", ErrUpstreamTimeout, opts.BackendTimeout)
				}
				continue
			}
			if time.Since(lastRead) >= opts.IdleGap {
				return response, nil
			}
		case errors.Is(err, io.EOF):
			if len(response) == 0 {
				return nil, fmt.Errorf("%w: closed without a response", ErrUpstreamUnreachable)
			}
			return response, nil
		default:
			return nil, fmt.Errorf("%w: read: %w", ErrUpstreamUnreachable, err)
		}
	}
}

// responseComplete reports whether response already holds a full message
// according to its own framing. Unframed responses wait for EOF or the idle
// gap.
func responseComplete(response []byte, method string) bool {
	idx := bytes.Index(response, headerTerminator)
	if idx < 0 {
		return false
	}
	headerEnd := idx + len(headerTerminator)
	head := response[:headerEnd]

	code := statusCode(response)
	if method == http.MethodHead || code == http.StatusNoContent || code == http.StatusNotModified {
		return true
	}

	if te, ok := headerValue(head, "Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		body := response[headerEnd:]
		return bytes.Equal(body, lastChunk) || bytes.HasSuffix(body, afterLastChunk)
	}

	value, ok := headerValue(head, "Content-Length")
	if !ok {
		return false
	}
	length, err := strconv.Atoi(value)
	if err != nil || length < 0 {
		return false
	}
	return len(response)-headerEnd >= length
}

// statusCode parses the status from an HTTP/1.x status line, returning 0
// when response does not start with one.
func statusCode(response []byte) int {
	line, _, _ := bytes.Cut(response, lineTerminator)
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return 0
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return 0
	}
	return code
}

// errorResponse builds the reply sent when the relay itself answers.
func errorResponse(code int) []byte {
	reason := http.StatusText(code)
	return fmt.Appendf(nil,
		"HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		code, reason, len(reason), reason)
}
