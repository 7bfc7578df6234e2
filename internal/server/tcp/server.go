package tcp

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/indigo-web/tinyweb/config"
	"github.com/indigo-web/tinyweb/dispatcher"
	"github.com/indigo-web/tinyweb/internal/address"
	httpconn "github.com/indigo-web/tinyweb/internal/server/http"
	"github.com/indigo-web/tinyweb/internal/timer"
	"github.com/indigo-web/tinyweb/internal/users"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

var (
	ErrNotBound = errors.New("tcp: server is not bound")
	ErrIPv4Only = errors.New("tcp: only IPv4 addresses are supported")
)

const hangup = unix.EPOLLRDHUP | unix.EPOLLHUP | unix.EPOLLERR

// entry guards a connection against concurrent access. The event loop hands an entry to
// a worker only after its oneshot event fired, so the mutex is contended only by the
// idle sweep and shutdown.
type entry struct {
	mu       sync.Mutex
	closed   bool
	fd       int
	conn     *httpconn.Conn
	lastSeen atomic.Int64
}

func (e *entry) touch() {
	e.lastSeen.Store(timer.Time.Load())
}

// Server is an epoll-driven reactor. The event loop only accepts connections and
// dispatches readiness events to the pool, where reading, processing and writing
// happen. Every connection is registered with EPOLLONESHOT and re-armed by the worker
// when it's done, so at most one worker owns a connection at a time.
type Server struct {
	cfg      *config.Config
	pool     *dispatcher.Pool
	log      zerolog.Logger
	listenFd int
	epollFd  int
	conns    *xsync.MapOf[int, *entry]
	connPool sync.Pool
	stop     atomic.Bool
	events   uint32
}

func NewServer(
	cfg *config.Config, pool *dispatcher.Pool, verifier users.Verifier, logger zerolog.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		pool:     pool,
		log:      logger,
		listenFd: -1,
		epollFd:  -1,
		conns:    xsync.NewMapOf[int, *entry](),
		events:   unix.EPOLLONESHOT | unix.EPOLLRDHUP,
	}

	if cfg.NET.EdgeTriggered {
		s.events |= unix.EPOLLET
	}

	s.connPool.New = func() any {
		return httpconn.New(cfg, verifier, logger)
	}

	return s
}

// Bind creates a listening socket on addr (host:port, empty host means all the interfaces)
// and an epoll instance watching it.
func (s *Server) Bind(addr string) error {
	sockaddr, err := parseAddr(addr)
	if err != nil {
		return err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("tcp: socket: %w", err)
	}

	if err = s.listen(fd, sockaddr); err != nil {
		_ = unix.Close(fd)
		return err
	}

	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("tcp: epoll: %w", err)
	}

	err = unix.EpollCtl(epollFd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	})
	if err != nil {
		_ = unix.Close(fd)
		_ = unix.Close(epollFd)
		return fmt.Errorf("tcp: epoll: %w", err)
	}

	s.listenFd, s.epollFd = fd, epollFd

	return nil
}

func (s *Server) listen(fd int, addr *unix.SockaddrInet4) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("tcp: setsockopt: %w", err)
	}

	if err := unix.Bind(fd, addr); err != nil {
		return fmt.Errorf("tcp: bind: %w", err)
	}

	if err := unix.Listen(fd, s.cfg.NET.Backlog); err != nil {
		return fmt.Errorf("tcp: listen: %w", err)
	}

	return nil
}

func parseAddr(addr string) (*unix.SockaddrInet4, error) {
	addrPort, err := address.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}

	if !addrPort.Addr().Is4() {
		return nil, ErrIPv4Only
	}

	return &unix.SockaddrInet4{
		Port: int(addrPort.Port()),
		Addr: addrPort.Addr().As4(),
	}, nil
}

// Addr returns the address the server is actually listening on. It is useful when
// binding to port 0.
func (s *Server) Addr() string {
	if s.listenFd == -1 {
		return ""
	}

	sockaddr, err := unix.Getsockname(s.listenFd)
	if err != nil {
		return ""
	}

	addr, ok := sockaddr.(*unix.SockaddrInet4)
	if !ok {
		return ""
	}

	return netip.AddrPortFrom(netip.AddrFrom4(addr.Addr), uint16(addr.Port)).String()
}

// Serve runs the event loop until Stop is called. All the connections left are closed
// before it returns.
func (s *Server) Serve() error {
	if s.epollFd == -1 {
		return ErrNotBound
	}

	defer s.shutdown()

	var (
		events    = make([]unix.EpollEvent, s.cfg.NET.MaxEvents)
		timeout   = int(s.cfg.NET.PollInterval.Std().Milliseconds())
		lastSweep = timer.Time.Load()
	)

	s.log.Info().Str("addr", s.Addr()).Bool("edge_triggered", s.cfg.NET.EdgeTriggered).Msg("listening")

	for !s.stop.Load() {
		n, err := unix.EpollWait(s.epollFd, events, timeout)
		if err != nil && err != unix.EINTR {
			return fmt.Errorf("tcp: epoll wait: %w", err)
		}

		for _, event := range events[:max(n, 0)] {
			fd := int(event.Fd)
			if fd == s.listenFd {
				s.accept()
				continue
			}

			s.dispatch(fd, event.Events)
		}

		if timer.Since(lastSweep) >= s.cfg.NET.PollInterval.Std() {
			s.sweep()
			lastSweep = timer.Time.Load()
		}
	}

	return nil
}

// Stop makes Serve return after its current iteration.
func (s *Server) Stop() {
	s.stop.Store(true)
}

func (s *Server) accept() {
	for {
		fd, sockaddr, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			return
		default:
			s.log.Error().Err(err).Msg("accept failed")
			return
		}

		conn := s.connPool.Get().(*httpconn.Conn)
		conn.Init(fd, sockaddr)

		e := &entry{fd: fd, conn: conn}
		e.touch()
		s.conns.Store(fd, e)

		if err = s.arm(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN); err != nil {
			s.log.Error().Err(err).Msg("cannot register connection")
			e.mu.Lock()
			s.closeConn(e)
			e.mu.Unlock()
		}
	}
}

func (s *Server) dispatch(fd int, events uint32) {
	e, found := s.conns.Load(fd)
	if !found {
		return
	}

	switch {
	case events&hangup != 0:
		s.pool.Submit(func() {
			e.mu.Lock()
			s.closeConn(e)
			e.mu.Unlock()
		})
	case events&unix.EPOLLIN != 0:
		s.pool.Submit(func() {
			s.onRead(e)
		})
	case events&unix.EPOLLOUT != 0:
		s.pool.Submit(func() {
			s.onWrite(e)
		})
	default:
		s.log.Warn().Int("fd", fd).Uint32("events", events).Msg("unexpected event")
	}
}

func (s *Server) onRead(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.touch()

	if _, err := e.conn.Read(); err != nil && err != unix.EAGAIN {
		s.closeConn(e)
		return
	}

	s.onProcess(e)
}

func (s *Server) onProcess(e *entry) {
	interest := uint32(unix.EPOLLIN)
	if e.conn.Process() {
		interest = unix.EPOLLOUT
	}

	if err := s.arm(unix.EPOLL_CTL_MOD, e.fd, interest); err != nil {
		s.log.Error().Err(err).Int("fd", e.fd).Msg("cannot re-arm connection")
		s.closeConn(e)
	}
}

func (s *Server) onWrite(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.touch()

	_, err := e.conn.Write()
	switch {
	case e.conn.ToWriteBytes() == 0:
		if !e.conn.IsKeepAlive() {
			s.closeConn(e)
			return
		}

		// pipelined requests may be already read
		s.onProcess(e)
	case err == nil || err == unix.EAGAIN:
		if err = s.arm(unix.EPOLL_CTL_MOD, e.fd, unix.EPOLLOUT); err != nil {
			s.closeConn(e)
		}
	default:
		s.closeConn(e)
	}
}

func (s *Server) arm(op, fd int, interest uint32) error {
	return unix.EpollCtl(s.epollFd, op, fd, &unix.EpollEvent{
		Events: interest | s.events,
		Fd:     int32(fd),
	})
}

// closeConn must be called with the entry locked.
func (s *Server) closeConn(e *entry) {
	if e.closed {
		return
	}

	e.closed = true
	// the descriptor number may be reused by the next accepted connection, as soon as
	// it is closed
	s.conns.Delete(e.fd)
	_ = unix.EpollCtl(s.epollFd, unix.EPOLL_CTL_DEL, e.fd, nil)

	if err := e.conn.Close(); err != nil {
		s.log.Warn().Err(err).Int("fd", e.fd).Msg("close failed")
	}

	s.connPool.Put(e.conn)
}

// sweep shuts idle connections down. Their sockets are closed afterwards, once the
// resulting hangup event is handled.
func (s *Server) sweep() {
	timeout := s.cfg.NET.ReadTimeout.Std()
	if timeout <= 0 {
		return
	}

	s.conns.Range(func(fd int, e *entry) bool {
		if timer.Since(e.lastSeen.Load()) < timeout {
			return true
		}

		// busy connections are definitely not idle
		if e.mu.TryLock() {
			if !e.closed {
				s.log.Debug().Str("conn", e.conn.ID()).Msg("idle timeout")
				_ = unix.Shutdown(fd, unix.SHUT_RDWR)
			}

			e.mu.Unlock()
		}

		return true
	})
}

func (s *Server) shutdown() {
	s.conns.Range(func(_ int, e *entry) bool {
		e.mu.Lock()
		s.closeConn(e)
		e.mu.Unlock()

		return true
	})

	_ = unix.Close(s.listenFd)
	_ = unix.Close(s.epollFd)
	// workers may still be finishing their tasks, so only the listener is marked as closed
	s.listenFd = -1

	s.log.Info().Msg("server stopped")
}
