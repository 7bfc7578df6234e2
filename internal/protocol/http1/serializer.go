package http1

import (
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/indigo-web/tinyweb/config"
	"github.com/indigo-web/tinyweb/http/mime"
	"github.com/indigo-web/tinyweb/http/status"
	"github.com/indigo-web/tinyweb/internal/buffer"
	"github.com/indigo-web/tinyweb/internal/mmap"
	"github.com/rs/zerolog"
)

// errorPages are served instead of the requested file for non-200 codes. Codes missing
// here get a synthesized body.
var errorPages = map[status.Code]string{
	status.BadRequest: "/400.html",
	status.Forbidden:  "/403.html",
	status.NotFound:   "/404.html",
}

const (
	dirIndex    = "index.html"
	otherRead   = 0o004
	notFoundMsg = "File NotFound!"
)

// Serializer builds a response for a static file. Status line and headers are written
// into a buffer, while the body is left mapped, so it can be transmitted with no copying.
// The mapping lives until the next Init or Unmap.
type Serializer struct {
	code      status.Code
	keepAlive bool
	path      string
	root      string
	info      os.FileInfo
	file      mmap.File
	cfg       *config.Config
	log       zerolog.Logger
	numBuff   []byte
}

func NewSerializer(cfg *config.Config, logger zerolog.Logger) *Serializer {
	return &Serializer{
		cfg:     cfg,
		log:     logger,
		numBuff: make([]byte, 0, 20),
	}
}

// Init resets the serializer for a new response, releasing the previously mapped file.
// status.Unset (or status.OK) lets MakeResponse derive the code from the file itself.
func (s *Serializer) Init(root, path string, keepAlive bool, code status.Code) {
	s.Unmap()
	s.root = root
	s.path = path
	s.keepAlive = keepAlive
	s.code = code
	s.info = nil
}

// MakeResponse writes the status line and headers into the buffer and maps the file to
// be sent as a body. If the body can't be mapped, it is synthesized into the buffer.
func (s *Serializer) MakeResponse(buff *buffer.Buffer) {
	s.resolveCode()
	s.substituteErrorPage()

	served, message := s.info != nil, notFoundMsg
	if served {
		if err := s.file.Map(s.fullPath(s.path)); err != nil {
			s.log.Warn().Err(err).Str("path", s.path).Msg("cannot map file")
			served = false

			if s.code == status.OK {
				s.code = status.InternalServerError
				message = string(status.Text(status.InternalServerError))
			}
		}
	}

	s.appendStatusLine(buff)
	s.appendHeaders(buff, served)

	if !served {
		s.ErrorContent(buff, message)
		return
	}

	s.appendContentLength(buff, s.file.Len())
}

// ErrorContent synthesizes a minimal HTML page into the buffer. It writes Content-length
// and the blank line itself, so it must follow the rest of the headers.
func (s *Serializer) ErrorContent(buff *buffer.Buffer, message string) {
	code := strconv.Itoa(int(s.code))
	body := "<html><title>Error</title><body bgcolor=\"ffffff\">" +
		code + " : " + string(status.Text(s.code)) + "\n" +
		"<p>" + message + "</p><hr><em>tinyweb</em></body></html>"

	s.appendContentLength(buff, len(body))
	buff.AppendString(body)
}

// File returns the mapped body. It is empty if the body was synthesized into the buffer.
func (s *Serializer) File() []byte {
	return s.file.Bytes()
}

func (s *Serializer) FileLength() int {
	return s.file.Len()
}

func (s *Serializer) Code() status.Code {
	return s.code
}

func (s *Serializer) KeepAlive() bool {
	return s.keepAlive
}

// Path returns the path of the file actually served.
func (s *Serializer) Path() string {
	return s.path
}

// Unmap releases the mapped file, if any. Calling it multiple times is safe.
func (s *Serializer) Unmap() {
	if err := s.file.Unmap(); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("cannot unmap file")
	}
}

func (s *Serializer) resolveCode() {
	if s.code != status.Unset && s.code != status.OK {
		return
	}

	info, err := os.Stat(s.fullPath(s.path))
	switch {
	case err != nil:
		s.code = status.NotFound
	case info.IsDir():
		s.code = status.Forbidden

		index := path.Join(s.path, dirIndex)
		if indexInfo, err := os.Stat(s.fullPath(index)); err == nil && readable(indexInfo) {
			s.code, s.path, s.info = status.OK, index, indexInfo
		}
	case !readable(info):
		s.code = status.Forbidden
	default:
		s.code, s.info = status.OK, info
	}
}

func (s *Serializer) substituteErrorPage() {
	if s.code == status.OK {
		return
	}

	s.info = nil

	page, found := errorPages[s.code]
	if !found {
		return
	}

	s.path = page
	if info, err := os.Stat(s.fullPath(page)); err == nil && readable(info) {
		s.info = info
	}
}

func (s *Serializer) appendStatusLine(buff *buffer.Buffer) {
	text := status.Text(s.code)
	if len(text) == 0 {
		s.code = status.BadRequest
		text = status.Text(status.BadRequest)
	}

	buff.AppendString("HTTP/1.1 ")
	buff.Append(strconv.AppendInt(s.numBuff[:0], int64(s.code), 10))
	buff.AppendString(" ")
	buff.AppendString(string(text))
	buff.AppendString("\r\n")
}

func (s *Serializer) appendHeaders(buff *buffer.Buffer, served bool) {
	buff.AppendString("Connection: ")
	if s.keepAlive {
		buff.AppendString("keep-alive\r\n")
		buff.AppendString("Keep-Alive: max=")
		buff.Append(strconv.AppendInt(s.numBuff[:0], int64(s.cfg.KeepAlive.Max), 10))
		buff.AppendString(", timeout=")
		buff.Append(strconv.AppendInt(s.numBuff[:0], int64(s.cfg.KeepAlive.Timeout.Std().Seconds()), 10))
		buff.AppendString("\r\n")
	} else {
		buff.AppendString("close\r\n")
	}

	contentType := mime.HTML
	if served {
		contentType = mime.ByPath(s.path)
	}

	buff.AppendString("Content-type: ")
	buff.AppendString(contentType)
	buff.AppendString("\r\n")
}

func (s *Serializer) appendContentLength(buff *buffer.Buffer, length int) {
	buff.AppendString("Content-length: ")
	buff.Append(strconv.AppendInt(s.numBuff[:0], int64(length), 10))
	buff.AppendString("\r\n\r\n")
}

// fullPath resolves the request path under the document root, so the result never
// points outside it.
func (s *Serializer) fullPath(requested string) string {
	return filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+requested)))
}

func readable(info os.FileInfo) bool {
	return info.Mode().IsRegular() && info.Mode().Perm()&otherRead != 0
}
