package httpwire

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	raw := "POST /messages?x=1 HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Content-Type: application/json; charset=utf-8\r\n" +
		"Content-Length: 17\r\n" +
		"\r\n" +
		`{"content":"hi"}` + "\n"

	req, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/messages?x=1", req.Target)
	assert.Equal(t, "/messages", req.Path)
	assert.Equal(t, "x=1", req.RawQuery)
	assert.Equal(t, "HTTP/1.1", req.Protocol)
	assert.Equal(t, "localhost", req.Headers["host"])
	assert.Equal(t, "17", req.Header("Content-Length"))
	assert.Equal(t, map[string]any{"content": "hi"}, req.Body)

	var payload struct {
		Content string `json:"content"`
	}
	assert.True(t, req.Decode(&payload))
	assert.Equal(t, "hi", payload.Content)
}

func TestParseRequestBodies(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantBody any
	}{
		{
			name:     "invalid json is nil",
			raw:      "POST /login HTTP/1.1\r\nContent-Type: application/json\r\n\r\n{oops",
			wantBody: nil,
		},
		{
			name:     "non json content type is not decoded",
			raw:      "POST /login HTTP/1.1\r\nContent-Type: text/plain\r\n\r\n{\"a\":1}",
			wantBody: nil,
		},
		{
			name:     "no body",
			raw:      "GET /health HTTP/1.1\r\nContent-Type: application/json\r\n\r\n",
			wantBody: nil,
		},
		{
			name:     "json array",
			raw:      "POST /x HTTP/1.1\r\ncontent-type: application/json\r\n\r\n[1]",
			wantBody: []any{float64(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Parse([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, req.Body)
		})
	}
}

func TestParseMalformedRequestLine(t *testing.T) {
	for _, raw := range []string{"", "GET\r\n\r\n", "\r\n\r\n"} {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrBadRequest, "raw=%q", raw)
	}
}

func TestParseDefaultsProtocol(t *testing.T) {
	req, err := Parse([]byte("get /health\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "HTTP/1.1", req.Protocol)
}

func TestQuery(t *testing.T) {
	req, err := Parse([]byte("GET /subscribe/status?group=room%201&x=2 HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "room 1", req.Query().Get("group"))
	assert.Equal(t, "2", req.Query().Get("x"))
}

func TestHeaderEndAndContentLength(t *testing.T) {
	raw := []byte("POST / HTTP/1.1\r\nContent-Length: 4\r\n\r\nbody")
	end := HeaderEnd(raw)
	require.Greater(t, end, 0)
	assert.Equal(t, "body", string(raw[end:]))
	assert.Equal(t, 4, ContentLength(raw[:end]))

	assert.Equal(t, -1, HeaderEnd([]byte("GET / HTTP/1.1\r\n")))
	assert.Equal(t, 0, ContentLength([]byte("GET / HTTP/1.1\r\nContent-Length: nope\r\n")))
}

func readFormatted(t *testing.T, raw []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestFormatJSON(t *testing.T) {
	raw := Format(200, ContentTypeJSON, map[string]any{"status": "alive", "active": true})

	resp, body := readFormatted(t, raw)
	assert.Equal(t, "200 OK", resp.Status)
	assert.Equal(t, ContentTypeJSON, resp.Header.Get("Content-Type"))
	assert.True(t, resp.Close)
	assert.Contains(t, string(raw), "\r\nConnection: close\r\n")
	assert.JSONEq(t, `{"status":"alive","active":true}`, string(body))
	assert.EqualValues(t, len(body), resp.ContentLength)

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,POST,PUT,DELETE,OPTIONS,HEAD", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type,Authorization,X-Requested-With", resp.Header.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", resp.Header.Get("Access-Control-Max-Age"))
}

func TestFormatEmptyBodies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
	}{
		{"nil body", 200, nil},
		{"204 ignores content", 204, map[string]string{"ignored": "yes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := Format(tt.status, ContentTypeJSON, tt.body)
			assert.Contains(t, string(raw), "Content-Length: 0\r\n")
			assert.True(t, bytes.HasSuffix(raw, []byte("\r\n\r\n")))
		})
	}
}

func TestFormatUnencodableBody(t *testing.T) {
	raw := Format(200, ContentTypeJSON, map[string]any{"bad": make(chan int)})

	resp, body := readFormatted(t, raw)
	assert.Equal(t, 500, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, string(body))
}

func TestReasonPhrase(t *testing.T) {
	cases := map[int]string{
		200: "OK", 204: "No Content", 400: "Bad Request", 404: "Not Found",
		500: "Internal Server Error", 503: "Service Unavailable",
		401: "Unauthorized", 409: "Conflict", 418: "I'm a teapot", 799: "Unknown",
	}
	for code, want := range cases {
		assert.Equal(t, want, ReasonPhrase(code), "code %d", code)
	}
}

func TestResponseOmitBody(t *testing.T) {
	resp := JSON(200, map[string]bool{"active": true})
	resp.OmitBody = true
	assert.Contains(t, string(resp.Bytes()), "Content-Length: 0\r\n")

	errResp := Error(404, "Not Found")
	_, body := readFormatted(t, errResp.Bytes())
	assert.JSONEq(t, `{"error":"Not Found"}`, string(body))
}
