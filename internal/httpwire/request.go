// Package httpwire parses raw HTTP/1.1 requests and formats responses for the
// hand-rolled transport. Only the subset the chat endpoint speaks is handled:
// one request per connection, Content-Length bodies, Connection: close.
package httpwire

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrBadRequest is returned for request lines without a method or path.
var ErrBadRequest = errors.New("malformed request line")

// HeaderTerminator separates the header block from the body.
var HeaderTerminator = []byte("\r\n\r\n")

// Request is a parsed request. Header keys are lower-case.
type Request struct {
	Method   string
	Target   string // path with raw query, as sent
	Path     string
	RawQuery string
	Protocol string
	Headers  map[string]string
	// Body holds the decoded JSON document, or nil when the request carried
	// no JSON or the JSON was invalid.
	Body    any
	RawBody []byte
}

// HeaderEnd returns the index just past the header terminator, or -1.
func HeaderEnd(buf []byte) int {
	i := bytes.Index(buf, HeaderTerminator)
	if i < 0 {
		return -1
	}
	return i + len(HeaderTerminator)
}

// ContentLength extracts the Content-Length value from a raw header block.
// Missing or invalid values yield 0.
func ContentLength(head []byte) int {
	for _, line := range strings.Split(string(head), "\r\n")[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "content-length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// Parse decodes raw request bytes.
func Parse(raw []byte) (*Request, error) {
	head, body := raw, []byte(nil)
	if end := HeaderEnd(raw); end >= 0 {
		head, body = raw[:end-len(HeaderTerminator)], raw[end:]
	}

	lines := strings.Split(string(head), "\r\n")
	parts := strings.Fields(lines[0])
	if len(parts) < 2 {
		return nil, ErrBadRequest
	}

	req := &Request{
		Method:   strings.ToUpper(parts[0]),
		Target:   parts[1],
		Protocol: "HTTP/1.1",
		Headers:  make(map[string]string),
	}
	if len(parts) > 2 {
		req.Protocol = parts[2]
	}
	req.Path, req.RawQuery, _ = strings.Cut(req.Target, "?")

	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		req.Headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	if n := ContentLength(head); n > 0 && n < len(body) {
		body = body[:n]
	}
	if len(body) > 0 {
		req.RawBody = body
		if strings.Contains(req.Header("content-type"), "application/json") {
			var doc any
			if err := json.Unmarshal(body, &doc); err == nil {
				req.Body = doc
			}
		}
	}

	return req, nil
}

// Header returns the value for name, matched case-insensitively.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// Query parses the raw query string. Malformed pairs are dropped.
func (r *Request) Query() url.Values {
	values, _ := url.ParseQuery(r.RawQuery)
	return values
}

// Decode unmarshals the JSON body into v. It reports false when the request
// has no valid JSON body.
func (r *Request) Decode(v any) bool {
	if r.Body == nil {
		return false
	}
	return json.Unmarshal(r.RawBody, v) == nil
}
