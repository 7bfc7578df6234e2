package http1

import (
	"bytes"
	"strconv"

	"github.com/indigo-web/tinyweb/config"
	"github.com/indigo-web/tinyweb/http"
	"github.com/indigo-web/tinyweb/http/method"
	"github.com/indigo-web/tinyweb/http/mime"
	"github.com/indigo-web/tinyweb/http/status"
	"github.com/indigo-web/tinyweb/internal/buffer"
	"github.com/indigo-web/tinyweb/internal/urlencoded"
	"github.com/indigo-web/tinyweb/internal/users"
	"github.com/indigo-web/utils/uf"
	"github.com/rs/zerolog"
)

type parserState uint8

const (
	eRequestLine parserState = iota + 1
	eHeaders
	eBody
	eFinish
)

var crlf = []byte("\r\n")

// defaultPages are served with the .html suffix appended, when requested without it.
var defaultPages = map[string]struct{}{
	"/index":    {},
	"/register": {},
	"/login":    {},
	"/welcome":  {},
	"/video":    {},
	"/picture":  {},
}

// formPages are checked by the users.Verifier once their form is submitted. The value
// tells whether it is a login (otherwise register) page.
var formPages = map[string]bool{
	"/register.html": false,
	"/login.html":    true,
}

const (
	indexPage   = "/index.html"
	welcomePage = "/welcome.html"
	failurePage = "/error.html"
)

// Parser is a line-oriented state machine. Every call consumes as many complete lines from
// the buffer as possible, leaving an incomplete one for the next call, so it tolerates any
// fragmentation of the input.
type Parser struct {
	state         parserState
	contentLength int
	cfg           *config.Config
	request       *http.Request
	users         users.Verifier
	log           zerolog.Logger
}

// NewParser returns a parser filling the request. A nil verifier disables login and
// register pages processing.
func NewParser(
	cfg *config.Config, request *http.Request, verifier users.Verifier, logger zerolog.Logger,
) *Parser {
	return &Parser{
		state:         eRequestLine,
		contentLength: -1,
		cfg:           cfg,
		request:       request,
		users:         verifier,
		log:           logger,
	}
}

// Request returns the request being filled.
func (p *Parser) Request() *http.Request {
	return p.request
}

// Done reports whether the request is completely parsed.
func (p *Parser) Done() bool {
	return p.state == eFinish
}

// Reset prepares the parser and the request for the next message.
func (p *Parser) Reset() {
	p.state = eRequestLine
	p.contentLength = -1
	p.request.Reset()
}

// Parse consumes lines from the buffer until the request is complete or no complete line
// is left. The error is always a status.HTTPError, after which the parser must not be
// fed anymore until it is reset.
func (p *Parser) Parse(buff *buffer.Buffer) (done bool, err error) {
	for buff.ReadableBytes() > 0 && p.state != eFinish {
		data := buff.Peek()
		lineEnd := bytes.Index(data, crlf)
		if lineEnd == -1 {
			if p.state == eBody && p.bodyArrived(len(data)) {
				if err = p.parseBody(data); err != nil {
					return true, err
				}

				_ = buff.Retrieve(len(data))
				break
			}

			if err = p.checkLineSize(len(data)); err != nil {
				return true, err
			}

			return false, nil
		}

		if err = p.checkLineSize(lineEnd); err != nil {
			return true, err
		}

		line, rest := data[:lineEnd], data[lineEnd+len(crlf):]

		switch p.state {
		case eRequestLine:
			err = p.parseRequestLine(line)
		case eHeaders:
			err = p.parseHeader(line, len(rest))
		case eBody:
			err = p.parseBody(line)
		}

		if err != nil {
			return true, err
		}

		_ = buff.RetrieveUntil(rest)
	}

	return p.state == eFinish, nil
}

func (p *Parser) checkLineSize(size int) error {
	switch p.state {
	case eRequestLine:
		if size > p.cfg.URI.MaxLineSize {
			return status.ErrURITooLong
		}
	case eHeaders:
		if size > p.cfg.Headers.MaxLineSize {
			return status.ErrHeaderFieldsTooLarge
		}
	}

	return nil
}

// parseRequestLine matches METHOD SP PATH SP HTTP/VERSION.
func (p *Parser) parseRequestLine(line []byte) error {
	methodEnd := bytes.IndexByte(line, ' ')
	if methodEnd <= 0 {
		return p.badRequestLine(line)
	}

	rest := line[methodEnd+1:]
	pathEnd := bytes.IndexByte(rest, ' ')
	if pathEnd <= 0 {
		return p.badRequestLine(line)
	}

	proto := rest[pathEnd+1:]
	if !bytes.HasPrefix(proto, []byte("HTTP/")) || len(proto) == len("HTTP/") ||
		bytes.IndexByte(proto, ' ') != -1 {
		return p.badRequestLine(line)
	}

	request := p.request
	request.Method = method.Parse(uf.B2S(line[:methodEnd]))
	request.Path = string(rest[:pathEnd])
	request.Version = string(proto[len("HTTP/"):])
	p.state = eHeaders

	p.log.Debug().
		Str("method", uf.B2S(line[:methodEnd])).
		Str("path", request.Path).
		Str("version", request.Version).
		Msg("request line")

	if request.Method == method.Unknown {
		return status.ErrMethodNotImplemented
	}

	if request.Version != "1.1" && request.Version != "1.0" {
		return status.ErrHTTPVersionNotSupported
	}

	return nil
}

func (p *Parser) badRequestLine(line []byte) error {
	p.log.Error().Bytes("line", line).Msg("malformed request line")
	return status.ErrBadRequestLine
}

// parseHeader matches NAME ":" [SP] VALUE. An empty line completes the headers section.
func (p *Parser) parseHeader(line []byte, remaining int) error {
	if len(line) == 0 {
		return p.onHeadersCompleted(remaining)
	}

	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return status.ErrBadHeader
	}

	if len(p.request.Headers) >= p.cfg.Headers.Number.Maximal {
		return status.ErrTooManyHeaders
	}

	value := line[colon+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}

	p.request.Headers[string(line[:colon])] = string(value)
	return nil
}

func (p *Parser) onHeadersCompleted(remaining int) error {
	p.normalizePath()

	if value := p.request.Header("Content-Length"); len(value) > 0 {
		length, err := strconv.Atoi(value)
		if err != nil || length < 0 {
			return status.ErrBadRequest
		}

		p.contentLength = length
	}

	switch {
	case p.contentLength > 0:
		p.state = eBody
	case p.contentLength == -1 && p.request.Method == method.POST && remaining > 0:
		p.state = eBody
	default:
		p.state = eFinish
	}

	return nil
}

// bodyArrived tells whether a body without trailing CRLF may be taken as it is.
func (p *Parser) bodyArrived(n int) bool {
	return p.contentLength == -1 || n >= p.contentLength
}

func (p *Parser) parseBody(line []byte) error {
	request := p.request
	request.Body = string(line)
	p.state = eFinish

	p.log.Debug().Str("body", request.Body).Int("len", len(request.Body)).Msg("request body")

	if request.Method != method.POST || !mime.Complies(mime.FormUrlencoded, request.Header("Content-Type")) {
		return nil
	}

	if err := urlencoded.ParseForm(request.Body, request.Post); err != nil {
		return err
	}

	p.verifyForm()
	return nil
}

func (p *Parser) normalizePath() {
	if p.request.Path == "/" {
		p.request.Path = indexPage
		return
	}

	if _, found := defaultPages[p.request.Path]; found {
		p.request.Path += ".html"
	}
}

func (p *Parser) verifyForm() {
	isLogin, found := formPages[p.request.Path]
	if !found || p.users == nil {
		return
	}

	name := p.request.PostValue("username")
	if p.users.Verify(name, p.request.PostValue("password"), isLogin) {
		p.request.Path = welcomePage
	} else {
		p.request.Path = failurePage
	}

	p.log.Debug().Str("user", name).Bool("login", isLogin).Str("path", p.request.Path).Msg("form verified")
}
