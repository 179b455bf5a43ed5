// Package responder answers every HTTP request on port 8080 with the same
// fixed response.
package responder

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/pkg/errors"
)

const (
	// Port is the fixed TCP port the responder binds on every interface.
	Port = 8080
	// Addr is Port in listen-address form.
	Addr = ":8080"
	// Body is the response body sent for every request.
	Body = "Hello World!"
)

// Handler returns the request handler. Each request produces one line on
// out naming its request target, followed by a 200 response carrying Body.
// Method, headers and request body are never consulted.
func Handler(out io.Writer) http.Handler {
	var mu sync.Mutex
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RequestURI is the request target exactly as it appeared on the
		// request line.
		line := fmt.Sprintf("Received request for URL: %s\n", r.RequestURI)
		mu.Lock()
		io.WriteString(out, line)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(Body))
	})
}

// Server owns the listener for the life of the process.
type Server struct {
	Addr string

	srv *http.Server
}

// New creates the server. Request lines are written to out.
func New(out io.Writer) *Server {
	srv := &http.Server{
		Handler: Handler(out),
		// Otherwise net/http answers "OPTIONS *" itself.
		DisableGeneralOptionsHandler: true,
	}
	return &Server{Addr: Addr, srv: srv}
}

// ListenAndServe binds s.Addr and serves on it. It only returns on error;
// a failure to bind is returned as is, with no retry.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.Addr)
	}
	return s.Serve(l)
}

// Serve accepts connections on l. net/http handles each connection on its
// own goroutine, so a slow client never holds up another.
func (s *Server) Serve(l net.Listener) error {
	return errors.WithStack(s.srv.Serve(l))
}

// Close drops the listener and every open connection immediately.
func (s *Server) Close() error {
	return errors.WithStack(s.srv.Close())
}
