package acquirer

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"authz/pkg/logging"
)

//go:embed templates/success.html
var successHTML string

//go:embed templates/error.html
var errorHTML string

var (
	successTemplate = template.Must(template.New("success").Parse(successHTML))
	errorTemplate   = template.Must(template.New("error").Parse(errorHTML))
)

// callbackResult is what the authorization server put on the redirect.
type callbackResult struct {
	Code             string
	Error            string
	ErrorDescription string
}

// callbackServer is a temporary 127.0.0.1 HTTP server that waits for a
// single redirect carrying the expected state.
type callbackServer struct {
	path  string
	state string

	server   *http.Server
	listener net.Listener
	port     int

	resultCh chan callbackResult
	errorCh  chan error
	once     sync.Once
	stopOnce sync.Once
}

func newCallbackServer(path, state string) *callbackServer {
	if path == "" {
		path = "/"
	}
	return &callbackServer{
		path:     path,
		state:    state,
		resultCh: make(chan callbackResult, 1),
		errorCh:  make(chan error, 1),
	}
}

// start listens on 127.0.0.1:port. Port 0 picks a free port.
func (s *callbackServer) start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler:           http.HandlerFunc(s.handleCallback),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	logging.Debug("Acquirer", "Callback server listening on 127.0.0.1:%d%s", s.port, s.path)
	return nil
}

// wait returns the first valid redirect, a server failure or ctx's error.
func (s *callbackServer) wait(ctx context.Context) (callbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return callbackResult{}, err
	case <-ctx.Done():
		return callbackResult{}, ctx.Err()
	}
}

func (s *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	if r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	if query.Get("state") != s.state {
		logging.Warn("Acquirer", "Ignoring callback with mismatched state")
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	result := callbackResult{
		Code:             query.Get("code"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
	if result.Code == "" && result.Error == "" {
		http.Error(w, "Missing code parameter", http.StatusBadRequest)
		return
	}

	handled := false
	s.once.Do(func() {
		handled = true
		s.render(w, result)
		s.resultCh <- result
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *callbackServer) render(w http.ResponseWriter, result callbackResult) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var err error
	if result.Error != "" {
		w.WriteHeader(http.StatusBadRequest)
		err = errorTemplate.Execute(w, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})
	} else {
		err = successTemplate.Execute(w, nil)
	}
	if err != nil {
		logging.Error("Acquirer", err, "Failed to render callback page")
	}
}

// stop shuts the server down, giving in-flight responses a moment to finish.
func (s *callbackServer) stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
