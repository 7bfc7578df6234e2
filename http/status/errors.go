package status

import "errors"

// HTTPError is an error, which can be answered with a response of the corresponding code.
type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// CodeOf returns the code carried by the error, falling back to BadRequest.
func CodeOf(err error) Code {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	return BadRequest
}

var (
	ErrBadRequest              = NewError(BadRequest, "bad request")
	ErrBadRequestLine          = NewError(BadRequest, "malformed request line")
	ErrBadHeader               = NewError(BadRequest, "malformed header line")
	ErrURLDecoding             = NewError(BadRequest, "invalid urlencoded sequence")
	ErrURITooLong              = NewError(RequestURITooLong, "request URI too long")
	ErrHeaderFieldsTooLarge    = NewError(HeaderFieldsTooLarge, "too large header line")
	ErrTooManyHeaders          = NewError(HeaderFieldsTooLarge, "too many headers")
	ErrMethodNotImplemented    = NewError(NotImplemented, "request method is not supported")
	ErrHTTPVersionNotSupported = NewError(HTTPVersionNotSupported, "HTTP version not supported")
	ErrInternalServerError     = NewError(InternalServerError, "internal server error")
)
