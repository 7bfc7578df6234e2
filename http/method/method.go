package method

type Method uint8

const (
	Unknown Method = iota
	GET
	POST
)

// List contains all the supported HTTP methods.
var List = []Method{GET, POST}

// Parse is case-sensitive, as method tokens are.
func Parse(str string) Method {
	switch str {
	case "GET":
		return GET
	case "POST":
		return POST
	}

	return Unknown
}

func (m Method) String() string {
	switch m {
	case GET:
		return "GET"
	case POST:
		return "POST"
	}

	return "Unknown"
}
