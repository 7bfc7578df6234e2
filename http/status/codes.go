package status

type (
	Code   uint16
	Status string
)

// Unset tells the serializer to derive the code from the requested file itself.
const Unset Code = 0

const (
	OK Code = 200

	BadRequest            Code = 400
	Forbidden             Code = 403
	NotFound              Code = 404
	MethodNotAllowed      Code = 405
	RequestTimeout        Code = 408
	RequestEntityTooLarge Code = 413
	RequestURITooLong     Code = 414
	HeaderFieldsTooLarge  Code = 431

	InternalServerError     Code = 500
	NotImplemented          Code = 501
	ServiceUnavailable      Code = 503
	HTTPVersionNotSupported Code = 505
)

// Text returns the reason phrase for the code. It returns the empty string if the
// code is unknown.
func Text(code Code) Status {
	switch code {
	case OK:
		return "OK"
	case BadRequest:
		return "Bad Request"
	case Forbidden:
		return "Forbidden"
	case NotFound:
		return "Not Found"
	case MethodNotAllowed:
		return "Method Not Allowed"
	case RequestTimeout:
		return "Request Timeout"
	case RequestEntityTooLarge:
		return "Request Entity Too Large"
	case RequestURITooLong:
		return "Request URI Too Long"
	case HeaderFieldsTooLarge:
		return "Request Header Fields Too Large"
	case InternalServerError:
		return "Internal Server Error"
	case NotImplemented:
		return "Not Implemented"
	case ServiceUnavailable:
		return "Service Unavailable"
	case HTTPVersionNotSupported:
		return "HTTP Version Not Supported"
	}

	return ""
}
