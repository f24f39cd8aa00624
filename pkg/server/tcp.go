package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/peterlharding/dserver/pkg/protocol"
)

func (s *Server) serveTCP(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept timeout", "error", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("TCP accept: %w", err)
		}
		s.handlers.Go(func() { s.handleTCP(conn) })
	}
}

// handleTCP serves one connection until the client disconnects, the idle
// timeout expires or the server stops.
func (s *Server) handleTCP(conn net.Conn) {
	sess := protocol.NewSession(TransportTCP, conn.RemoteAddr().String())
	s.conns.add(sess, conn)
	defer func() {
		s.conns.remove(sess)
		_ = conn.Close()
	}()

	log := s.logger.With("session", sess.ID.String(), "remote", sess.RemoteAddr)
	log.Debug("connection opened")

	limiter := s.newLimiter()
	f := &framer{max: s.cfg.MaxMessageSize}
	buf := make([]byte, s.cfg.MaxMessageSize)

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 {
			requests, overflow := f.feed(buf[:n])
			for _, req := range requests {
				if limiter != nil {
					if werr := limiter.Wait(s.ctx); werr != nil {
						log.Debug("connection closed", "reason", werr)
						return
					}
				}
				reply := s.dispatcher.Process(sess, req)
				if _, werr := io.WriteString(conn, reply+f.terminator()); werr != nil {
					log.Debug("connection closed", "reason", werr)
					return
				}
			}
			if overflow {
				log.Warn("request exceeds maximum message size", "max", s.cfg.MaxMessageSize)
				if _, werr := io.WriteString(conn, protocol.TokenBadMessage+f.terminator()); werr != nil {
					return
				}
			}
		}
		if err != nil {
			var ne net.Error
			switch {
			case errors.Is(err, io.EOF):
				log.Debug("connection closed by client", "requests", sess.Requests())
			case errors.As(err, &ne) && ne.Timeout():
				log.Debug("connection idle timeout", "timeout", s.cfg.ReadTimeout)
			default:
				log.Debug("connection closed", "reason", err)
			}
			return
		}
	}
}

// framer splits a TCP byte stream into requests.
//
// Until a newline is seen each read is taken as one whole request, the way
// legacy clients send them. After the first newline the stream is split on
// newlines and replies are newline terminated.
type framer struct {
	max     int
	line    bool
	pending []byte
}

// feed consumes one read. overflow reports that an unterminated line grew
// past max and was discarded.
func (f *framer) feed(chunk []byte) (requests []string, overflow bool) {
	if !f.line {
		if bytes.IndexByte(chunk, '\n') < 0 {
			return []string{strings.TrimRight(string(chunk), "\r")}, false
		}
		f.line = true
	}

	f.pending = append(f.pending, chunk...)
	for {
		i := bytes.IndexByte(f.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(f.pending[:i]), "\r")
		f.pending = f.pending[i+1:]
		if line != "" {
			requests = append(requests, line)
		}
	}
	if len(f.pending) == 0 {
		f.pending = nil
	} else if len(f.pending) > f.max {
		f.pending = nil
		overflow = true
	}
	return requests, overflow
}

// terminator returns what follows each reply in the current mode.
func (f *framer) terminator() string {
	if f.line {
		return "\n"
	}
	return ""
}
