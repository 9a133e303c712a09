package relay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	headerTerminator = []byte("\r\n\r\n")
	lineTerminator   = []byte("\r\n")

	// lastChunk ends a chunked body without trailers. Unless the body is
	// empty it must follow the CRLF closing the previous chunk.
	lastChunk      = []byte("0\r\n\r\n")
	afterLastChunk = []byte("\r\n0\r\n\r\n")
)

// ReadRequest frames one HTTP/1.1 request from conn and returns its bytes
// unchanged. The whole read is bounded by opts.ClientTimeout.
func ReadRequest(conn net.Conn, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	if err := conn.SetReadDeadline(time.Now().Add(opts.ClientTimeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	headerEnd := -1

	for headerEnd < 0 {
		n, err := conn.Read(chunk)
		searchFrom := max(0, len(buf)-len(headerTerminator)+1)
		buf = append(buf, chunk[:n]...)

		if idx := bytes.Index(buf[searchFrom:], headerTerminator); idx >= 0 {
			headerEnd = searchFrom + idx + len(headerTerminator)
			break
		}
		if len(buf) > opts.MaxHeaderBytes {
			return nil, fmt.Errorf("%w: header exceeds %d bytes", ErrRequestTooLarge, opts.MaxHeaderBytes)
		}
		if err != nil {
			switch {
			case isTimeout(err):
				return nil, fmt.Errorf("%w: %d bytes before end of headers", ErrRequestTimeout, len(buf))
			case errors.Is(err, io.EOF):
				return nil, ErrIncompleteRequest
			default:
				return nil, fmt.Errorf("%w: %w", ErrIncompleteRequest, err)
			}
		}
	}

	if headerEnd > opts.MaxHeaderBytes {
		return nil, fmt.Errorf("%w: header exceeds %d bytes", ErrRequestTooLarge, opts.MaxHeaderBytes)
	}

	head := buf[:headerEnd]
	if _, err := parseRequestLine(head); err != nil {
		return nil, err
	}

	declared := contentLength(head)
	if declared > opts.MaxBodyBytes {
		return nil, fmt.Errorf("%w: declared body of %d bytes", ErrRequestTooLarge, declared)
	}

	want := int64(headerEnd) + declared
	for int64(len(buf)) < want {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			// Short bodies are forwarded as captured.
			break
		}
	}
	if int64(len(buf)) > want {
		buf = buf[:want]
	}
	return buf, nil
}

// parseRequestLine validates "METHOD SP TARGET SP HTTP/x.y" and returns the
// method.
func parseRequestLine(head []byte) (string, error) {
	line, _, _ := bytes.Cut(head, lineTerminator)
	parts := strings.Split(string(line), " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || !strings.HasPrefix(parts[2], "HTTP/") {
		return "", fmt.Errorf("%w: %q", ErrMalformedRequest, truncate(line, 64))
	}
	return parts[0], nil
}

// contentLength returns the first Content-Length header in head, or 0 when
// it is absent, unparsable or negative.
func contentLength(head []byte) int64 {
	value, ok := headerValue(head, "Content-Length")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// headerValue looks up the first header called name in a message head,
// skipping the start line. Names compare case-insensitively.
func headerValue(head []byte, name string) (string, bool) {
	lines := bytes.Split(head, lineTerminator)
	for _, line := range lines[1:] {
		if len(line) == 0 {
			break
		}
		key, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			continue
		}
		if strings.EqualFold(string(bytes.TrimSpace(key)), name) {
			return string(bytes.TrimSpace(value)), true
		}
	}
	return "", false
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
