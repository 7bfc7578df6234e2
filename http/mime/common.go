package mime

import (
	"strings"

	"github.com/indigo-web/utils/strcomp"
)

type MIME = string

const (
	OctetStream    MIME = "application/octet-stream"
	Plain          MIME = "text/plain"
	HTML           MIME = "text/html"
	XML            MIME = "text/xml"
	XHTML          MIME = "application/xhtml+xml"
	CSS            MIME = "text/css"
	JS             MIME = "text/javascript"
	JSON           MIME = "application/json"
	RTF            MIME = "application/rtf"
	PDF            MIME = "application/pdf"
	Word           MIME = "application/nsword"
	GZIP           MIME = "application/x-gzip"
	TAR            MIME = "application/x-tar"
	WASM           MIME = "application/wasm"
	FormUrlencoded MIME = "application/x-www-form-urlencoded"
	PNG            MIME = "image/png"
	GIF            MIME = "image/gif"
	JPEG           MIME = "image/jpeg"
	SVG            MIME = "image/svg+xml"
	ICO            MIME = "image/vnd.microsoft.icon"
	WEBP           MIME = "image/webp"
	AU             MIME = "audio/basic"
	MPEG           MIME = "video/mpeg"
	AVI            MIME = "video/x-msvideo"
	MP4            MIME = "video/mp4"
)

// Complies returns whether the header value denotes the mime, ignoring parameters
// (e.g. charset) and the case.
func Complies(mime MIME, with string) bool {
	with, _, _ = strings.Cut(with, ";")
	return strcomp.EqualFold(strings.TrimSpace(with), mime)
}
