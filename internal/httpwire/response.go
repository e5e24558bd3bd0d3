package httpwire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// ContentTypeJSON is the content type of every API response.
const ContentTypeJSON = "application/json"

var reasonPhrases = map[int]string{
	200: "OK",
	204: "No Content",
	400: "Bad Request",
	401: "Unauthorized",
	404: "Not Found",
	409: "Conflict",
	500: "Internal Server Error",
	503: "Service Unavailable",
}

// corsHeaders are sent on every response.
var corsHeaders = [][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS,HEAD"},
	{"Access-Control-Allow-Headers", "Content-Type,Authorization,X-Requested-With"},
	{"Access-Control-Max-Age", "86400"},
}

// ReasonPhrase returns the status-line text for code.
func ReasonPhrase(code int) string {
	if phrase, ok := reasonPhrases[code]; ok {
		return phrase
	}
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown"
}

// Response is a status, content type, and optional structured body.
type Response struct {
	Status      int
	ContentType string
	Body        any
	// OmitBody keeps the headers of Body but sends no payload, for HEAD.
	OmitBody bool
}

// JSON builds an application/json response.
func JSON(status int, body any) *Response {
	return &Response{Status: status, ContentType: ContentTypeJSON, Body: body}
}

// Error builds the {"error": msg} envelope.
func Error(status int, msg string) *Response {
	return JSON(status, map[string]string{"error": msg})
}

// Bytes serializes the response.
func (r *Response) Bytes() []byte {
	if r.OmitBody {
		return Format(r.Status, r.ContentType, nil)
	}
	return Format(r.Status, r.ContentType, r.Body)
}

// Format renders a full response. A nil body or status 204 produces an empty
// payload whatever content was given. []byte and string bodies are sent raw,
// anything else is JSON encoded. A body that fails to encode is replaced by
// a 500 error envelope.
func Format(status int, contentType string, body any) []byte {
	payload, status := encodeBody(status, body)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", status, ReasonPhrase(status))
	if contentType == "" {
		contentType = ContentTypeJSON
	}
	buf.WriteString("Content-Type: " + contentType + "\r\n")
	buf.WriteString("Content-Length: " + strconv.Itoa(len(payload)) + "\r\n")
	buf.WriteString("Connection: close\r\n")
	for _, h := range corsHeaders {
		buf.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(payload)
	return buf.Bytes()
}

func encodeBody(status int, body any) ([]byte, int) {
	if body == nil || status == http.StatusNoContent {
		return nil, status
	}
	switch v := body.(type) {
	case []byte:
		return v, status
	case string:
		return []byte(v), status
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return []byte(`{"error":"Internal Server Error"}`), http.StatusInternalServerError
	}
	return payload, status
}
