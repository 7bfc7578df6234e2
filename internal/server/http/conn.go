package http

import (
	"io"
	"net/netip"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/tinyweb/config"
	"github.com/indigo-web/tinyweb/http"
	"github.com/indigo-web/tinyweb/http/status"
	"github.com/indigo-web/tinyweb/internal/buffer"
	"github.com/indigo-web/tinyweb/internal/protocol/http1"
	"github.com/indigo-web/tinyweb/internal/users"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// largeWrite is the amount of pending bytes, above which Write keeps writing even in
// level-triggered mode.
const largeWrite = 10 * 1024

// Conn binds a socket to its buffers, parser and serializer. It is owned by a single
// goroutine at a time, so nothing inside is synchronized.
type Conn struct {
	fd         int
	addr       unix.Sockaddr
	id         string
	closed     bool
	cfg        *config.Config
	readBuff   *buffer.Buffer
	writeBuff  *buffer.Buffer
	request    *http.Request
	parser     *http1.Parser
	serializer *http1.Serializer
	// iov holds the pending response: headers from the write buffer and the mapped file.
	iov     [2][]byte
	vecs    [][]byte
	log     zerolog.Logger
	rootLog zerolog.Logger
}

func New(cfg *config.Config, verifier users.Verifier, logger zerolog.Logger) *Conn {
	request := http.NewRequest(cfg.Headers.Number.Default)

	return &Conn{
		fd:         -1,
		closed:     true,
		cfg:        cfg,
		readBuff:   buffer.New(cfg.NET.ReadBufferSize),
		writeBuff:  buffer.New(cfg.NET.WriteBufferSize),
		request:    request,
		parser:     http1.NewParser(cfg, request, verifier, logger),
		serializer: http1.NewSerializer(cfg, logger),
		vecs:       make([][]byte, 0, 2),
		log:        logger,
		rootLog:    logger,
	}
}

// Init attaches the connection to an accepted socket, dropping everything left from the
// previous one.
func (c *Conn) Init(fd int, addr unix.Sockaddr) {
	c.fd = fd
	c.addr = addr
	c.id = uniuri.NewLen(8)
	c.closed = false
	c.readBuff.RetrieveAll()
	c.writeBuff.RetrieveAll()
	c.iov = [2][]byte{}
	c.parser.Reset()
	c.serializer.Unmap()
	c.log = c.rootLog.With().Str("conn", c.id).Logger()

	c.log.Info().Str("ip", c.IP()).Int("port", c.Port()).Msg("client connected")
}

// Read reads everything available from the socket. In edge-triggered mode it keeps reading
// until the socket would block, so the returned error is normally unix.EAGAIN. Orderly
// peer shutdown is reported as io.EOF.
func (c *Conn) Read() (total int, err error) {
	for {
		n, err := c.readBuff.ReadFd(c.fd)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return total, err
		case n == 0:
			return total, io.EOF
		}

		total += n
		if !c.cfg.NET.EdgeTriggered {
			return total, nil
		}
	}
}

// Write writes the pending response with vectored writes. Partially written slices are
// advanced, so the next call resumes from where the previous stopped.
func (c *Conn) Write() (total int, err error) {
	for c.ToWriteBytes() > 0 {
		n, err := unix.Writev(c.fd, c.vectors())
		if err != nil {
			if err == unix.EINTR {
				continue
			}

			return total, err
		}

		total += n
		c.advance(n)

		if !c.cfg.NET.EdgeTriggered && c.ToWriteBytes() <= largeWrite {
			break
		}
	}

	return total, nil
}

func (c *Conn) vectors() [][]byte {
	c.vecs = c.vecs[:0]
	for _, vec := range c.iov {
		if len(vec) > 0 {
			c.vecs = append(c.vecs, vec)
		}
	}

	return c.vecs
}

func (c *Conn) advance(n int) {
	if headers := len(c.iov[0]); n >= headers {
		c.writeBuff.RetrieveAll()
		c.iov[0] = nil
		c.iov[1] = c.iov[1][n-headers:]
	} else {
		c.iov[0] = c.iov[0][n:]
		_ = c.writeBuff.Retrieve(n)
	}

	if len(c.iov[1]) == 0 {
		c.iov[1] = nil
	}
}

// Process parses the read bytes and prepares a response. It returns false if there is no
// complete request yet. A malformed request is answered with its error code, after which
// the connection is not kept alive.
func (c *Conn) Process() bool {
	if c.readBuff.ReadableBytes() == 0 {
		return false
	}

	if c.parser.Done() {
		c.parser.Reset()
	}

	done, err := c.parser.Parse(c.readBuff)
	switch {
	case err != nil:
		c.log.Warn().Err(err).Str("ip", c.IP()).Msg("bad request")
		c.readBuff.RetrieveAll()
		c.serializer.Init(c.cfg.Static.Root, c.request.Path, false, status.CodeOf(err))
	case !done:
		return false
	default:
		c.serializer.Init(c.cfg.Static.Root, c.request.Path, c.request.IsKeepAlive(), status.Unset)
	}

	c.serializer.MakeResponse(c.writeBuff)
	c.iov[0] = c.writeBuff.Peek()
	c.iov[1] = c.serializer.File()

	c.log.Debug().
		Str("path", c.serializer.Path()).
		Int("code", int(c.serializer.Code())).
		Int("bytes", c.ToWriteBytes()).
		Msg("response")

	return true
}

// IsKeepAlive reports whether the last response kept the connection alive.
func (c *Conn) IsKeepAlive() bool {
	return c.serializer.KeepAlive()
}

// ToWriteBytes returns the number of bytes of the response not written yet.
func (c *Conn) ToWriteBytes() int {
	return len(c.iov[0]) + len(c.iov[1])
}

// Request returns the last parsed request.
func (c *Conn) Request() *http.Request {
	return c.request
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Fd() int {
	return c.fd
}

func (c *Conn) Addr() unix.Sockaddr {
	return c.addr
}

// IP returns the peer address in its textual form, or the empty string for non-IP sockets.
func (c *Conn) IP() string {
	switch addr := c.addr.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrFrom4(addr.Addr).String()
	case *unix.SockaddrInet6:
		return netip.AddrFrom16(addr.Addr).String()
	}

	return ""
}

func (c *Conn) Port() int {
	switch addr := c.addr.(type) {
	case *unix.SockaddrInet4:
		return addr.Port
	case *unix.SockaddrInet6:
		return addr.Port
	}

	return 0
}

// Close releases the mapped file and the socket. Only the first call has any effect.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}

	c.closed = true
	c.iov = [2][]byte{}
	c.serializer.Unmap()
	c.log.Info().Str("ip", c.IP()).Msg("client disconnected")

	return unix.Close(c.fd)
}
