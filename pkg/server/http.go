package server

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/peterlharding/dserver/pkg/metrics"
	"github.com/peterlharding/dserver/pkg/protocol"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s.recoverer(mux)
}

// handleRoot answers protocol requests passed in msg on any path, and
// renders the status page for / without one.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	msg, ok := queryParam(r.URL.RawQuery, "msg")
	if !ok {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		s.handleStatus(w, r)
		return
	}

	metrics.ConnectionOpened(TransportHTTP)
	defer metrics.ConnectionClosed(TransportHTTP)

	sess := protocol.NewSession(TransportHTTP, r.RemoteAddr)
	if lang, ok := queryParam(r.URL.RawQuery, "lang"); ok && lang != "" {
		sess.SetLanguage(lang)
	}
	reply := s.dispatcher.Process(sess, msg)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(reply)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, reply)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reg := s.metrics
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	if reg == nil {
		http.NotFound(w, r)
		return
	}
	reg.Handler().ServeHTTP(w, r)
}

// recoverer turns a handler panic into *ERROR* so that one bad request
// cannot take the transport down.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic serving HTTP request", "path", r.URL.Path, "panic", rec)
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, protocol.TokenError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// queryParam returns the first value of key in a raw query string. Values
// are percent-decoded but '+' is kept literally, since requests routinely
// carry data such as phone numbers.
func queryParam(rawQuery, key string) (string, bool) {
	for part := range strings.SplitSeq(rawQuery, "&") {
		k, v, _ := strings.Cut(part, "=")
		if k != key {
			continue
		}
		decoded, err := url.PathUnescape(v)
		if err != nil {
			return v, true
		}
		return decoded, true
	}
	return "", false
}

// queryEscape escapes a request for use as a msg parameter.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
