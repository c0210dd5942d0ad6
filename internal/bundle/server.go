package bundle

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"framecast/internal/pkg/logger"
	"framecast/internal/pkg/middleware"
)

// Server serves one bundle on a loopback port for the lifetime of a render.
type Server struct {
	srv  *http.Server
	ln   net.Listener
	done chan error
}

// Serve starts a static file server for b on 127.0.0.1 with a random port.
func Serve(b *Bundle, log *logger.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	log = log.WithComponent("bundle-server")
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Handle("/*", noCache(http.FileServer(http.Dir(b.Dir))))

	s := &Server{
		srv:  &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second},
		ln:   ln,
		done: make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	log.Debug("bundle server listening", "addr", ln.Addr().String(), "dir", b.Dir)
	return s, nil
}

// BaseURL is the http root of the served bundle.
func (s *Server) BaseURL() string {
	return "http://" + s.ln.Addr().String()
}

// IndexURL is the served index page.
func (s *Server) IndexURL() string {
	return s.BaseURL() + "/" + IndexFile
}

// Close stops the server and waits for it to exit.
func (s *Server) Close(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
