// Package tcpserver accepts newline-delimited JSON log records over TCP.
package tcpserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/ingest"
	"github.com/tinytelemetry/logops/internal/model"
)

var log = logrus.WithField("component", "tcpserver")

const (
	// DefaultAddr is used when no listen address is configured.
	DefaultAddr = "127.0.0.1:4000"

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single log line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB

	// DefaultBatchSize is the number of records handed to the sink at once.
	DefaultBatchSize = 200

	// DefaultFlushInterval bounds how long a partial batch waits.
	DefaultFlushInterval = time.Second

	// SourceTCP labels records received by this server.
	SourceTCP = "tcp"
)

// Sink accepts decoded records. It returns how many were accepted.
type Sink interface {
	Ingest(source string, records []model.LogRecord) (int, error)
}

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	MaxLineSize   int
	BatchSize     int
	FlushInterval time.Duration
}

// Server listens for JSON-lines log records, either flat objects or OTLP JSON
// exports, and forwards them to a Sink in batches.
type Server struct {
	listener      net.Listener
	addr          string
	sink          Sink
	maxLineSize   int
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer creates a new TCP server.
func NewServer(addr string, sink Sink, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	maxLineSize := DefaultMaxLineSize
	batchSize := DefaultBatchSize
	flushInterval := DefaultFlushInterval
	if len(conf) > 0 {
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:          addr,
		sink:          sink,
		maxLineSize:   maxLineSize,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		conns:         make(map[net.Conn]struct{}),
	}
}

// Start begins accepting TCP connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					continue
				}
			}
			if !s.track(conn) {
				conn.Close()
				return
			}
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()

	log.WithField("addr", listener.Addr().String()).Info("tcp ingest listening")
	return nil
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
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

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), s.maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			if len(line) == 0 {
				continue
			}
			lines <- line
		}
		scanErr <- scanner.Err()
	}()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	remote := conn.RemoteAddr().String()
	batch := make([]model.LogRecord, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if _, err := s.sink.Ingest(SourceTCP, batch); err != nil {
			log.WithError(err).WithField("remote", remote).Warn("rejected records")
		}
		batch = make([]model.LogRecord, 0, s.batchSize)
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				flush()
				if err := <-scanErr; err != nil {
					if errors.Is(err, bufio.ErrTooLong) {
						log.WithField("remote", remote).Warnf("dropped connection due to line exceeding max size (%d bytes)", s.maxLineSize)
					} else if s.ctx.Err() == nil {
						log.WithError(err).WithField("remote", remote).Warn("scanner error")
					}
				}
				return
			}
			records, err := ingest.DecodeLine(line, s.now)
			if err != nil {
				log.WithError(err).WithField("remote", remote).Debug("skipping undecodable line")
				continue
			}
			batch = append(batch, records...)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Stop closes the listener and every open connection, flushing partial
// batches, and waits for connection handlers to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.cancel()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
