package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lookup is the read side of the register cache.
type Lookup interface {
	Get(reg types.Register) (types.Payload, bool)
}

type ServerOptions struct {
	// ReadTimeout closes connections idle for longer than this. Zero disables it.
	ReadTimeout    time.Duration
	MaxConnections int
}

// Server answers read-register requests from the cache, one goroutine per connection.
type Server struct {
	address  string
	cache    Lookup
	opts     ServerOptions
	logger   *zap.Logger
	listener net.Listener

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	running  bool
	closing  bool
	wg       sync.WaitGroup
	requests atomic.Uint64
}

func NewServer(address string, cache Lookup, opts ServerOptions, logger *zap.Logger) *Server {
	return &Server{
		address: address,
		cache:   cache,
		opts:    opts,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start opens the listener and runs the accept loop in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	s.listener = lis
	s.running = true
	s.closing = false
	s.wg.Add(1)

	go s.acceptLoop()

	s.logger.Info("Bus server listening",
		zap.String("address", lis.Addr().String()),
		zap.Duration("read_timeout", s.opts.ReadTimeout))

	return nil
}

// Addr returns the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.track(conn) {
			s.logger.Warn("Connection rejected",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.Int("max_connections", s.opts.MaxConnections))
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.ServeConn(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	if s.opts.MaxConnections > 0 && len(s.conns) >= s.opts.MaxConnections {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// ServeConn runs the request loop on conn until the peer goes away or an I/O
// error occurs, then closes conn.
func (s *Server) ServeConn(conn net.Conn) {
	id := uuid.New().String()
	logger := s.logger.With(
		zap.String("conn_id", id),
		zap.String("remote_addr", conn.RemoteAddr().String()))

	logger.Info("Bus client connected")
	defer func() {
		conn.Close()
		logger.Info("Bus client disconnected")
	}()

	buf := make([]byte, 1+maxRequestBodyBytes)

	for {
		// WAIT_LENGTH
		s.armDeadline(conn)
		if _, err := io.ReadFull(conn, buf[:1]); err != nil {
			logClose(logger, err)
			return
		}

		// READ_BODY
		length := int(buf[0])
		s.armDeadline(conn)
		if _, err := io.ReadFull(conn, buf[1:1+length]); err != nil {
			logClose(logger, err)
			return
		}

		req := Request{Length: buf[0], Body: buf[1 : 1+length]}
		reg, _ := req.Register()

		// DISPATCH
		response := Respond(s.cache, req)
		s.requests.Add(1)

		logger.Debug("Bus request",
			zap.String("q", Hex(buf[:1+length])),
			zap.String("reg", reg.String()),
			zap.String("a", Hex(response)))

		// RESPOND
		if _, err := conn.Write(response); err != nil {
			logClose(logger, err)
			return
		}
	}
}

func (s *Server) armDeadline(conn net.Conn) {
	if s.opts.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
}

func logClose(logger *zap.Logger, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		logger.Warn("Short read, closing connection")
		return
	}
	logger.Warn("Connection fault", zap.Error(err))
}

// Respond computes the answer to req: the cached payload for a well-formed
// read of a known register, the error sentinel otherwise.
func Respond(cache Lookup, req Request) types.Payload {
	reg, ok := req.Register()
	if !ok {
		return ErrorSentinel
	}
	payload, ok := cache.Get(reg)
	if !ok {
		return ErrorSentinel
	}
	return payload
}

// ActiveConnections returns the number of open client connections
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// RequestCount returns the number of requests answered since start
func (s *Server) RequestCount() uint64 {
	return s.requests.Load()
}

// Shutdown stops accepting, closes every open connection and waits for the
// handlers to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("bus server shutdown: %w", ctx.Err())
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Bus server stopped")

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
