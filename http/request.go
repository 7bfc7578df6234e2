package http

import (
	"github.com/indigo-web/tinyweb/http/method"
	"github.com/indigo-web/utils/strcomp"
)

// Request represents HTTP request. It is filled by the parser and lives until the next
// request on the same connection begins.
type Request struct {
	// Method is an enum representing the request method.
	Method method.Method
	// Path is the requested path. It is normalized once the headers are completed, so it
	// may be rewritten in place before the response is built.
	Path string
	// Version is the protocol version without the HTTP/ prefix, e.g. "1.1".
	Version string
	// Headers holds header pairs as they came. The last value of a repeated header wins.
	Headers map[string]string
	// Post holds decoded pairs of an application/x-www-form-urlencoded body.
	Post map[string]string
	// Body is the single body line.
	Body string
}

func NewRequest(headersPrealloc int) *Request {
	return &Request{
		Headers: make(map[string]string, headersPrealloc),
		Post:    make(map[string]string),
	}
}

// Header returns the header value. Exact match is tried first, then the lookup falls
// back to case-insensitive comparison.
func (r *Request) Header(key string) string {
	if value, found := r.Headers[key]; found {
		return value
	}

	for k, v := range r.Headers {
		if strcomp.EqualFold(k, key) {
			return v
		}
	}

	return ""
}

// PostValue returns the form value or the empty string, if there is no such key.
func (r *Request) PostValue(key string) string {
	return r.Post[key]
}

// IsKeepAlive reports whether the client asked to keep the connection, which is honoured
// for HTTP/1.1 only.
func (r *Request) IsKeepAlive() bool {
	return r.Version == "1.1" && r.Header("Connection") == "keep-alive"
}

// Reset clears the request, so it can be reused for the next one. Maps keep their
// allocated space.
func (r *Request) Reset() {
	r.Method = method.Unknown
	r.Path = ""
	r.Version = ""
	r.Body = ""
	clear(r.Headers)
	clear(r.Post)
}
