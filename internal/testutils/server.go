package testutils

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RecordedRequest is one request received by the APIServer.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	RequestID     string
	ContentType   string
	Body          []byte
	At            time.Time
}

// Reply is a scripted response.
type Reply struct {
	Status int
	// Body is JSON encoded unless it is a string, which is written verbatim.
	Body any
	// Delay postpones the reply; it is cut short when the client goes away.
	Delay time.Duration
	// Wait, when non-nil, blocks the reply until the channel is closed.
	Wait <-chan struct{}
}

// APIServer is a fake portal API.
type APIServer struct {
	*httptest.Server

	t        testing.TB
	mu       sync.RWMutex
	router   chi.Router
	reqMu    sync.Mutex
	requests []RecordedRequest
}

// NewAPIServer starts a fake API and registers its shutdown with t.Cleanup.
func NewAPIServer(t testing.TB) *APIServer {
	t.Helper()

	s := &APIServer{t: t}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found"})
	})
	s.router = r
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *APIServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.router.ServeHTTP(w, r)
}

func (s *APIServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.reqMu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          strings.TrimPrefix(r.URL.Path, "/api"),
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			ContentType:   r.Header.Get("Content-Type"),
			Body:          body,
			At:            time.Now(),
		})
		s.reqMu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// BaseURL is the API root to hand to the client's host resolver.
func (s *APIServer) BaseURL() string { return s.URL + "/api" }

// Route converts an endpoint locator into the exact path the server sees.
func Route(path string) string {
	p := "/" + strings.Trim(path, "/")
	if p == "/" {
		return "/api/"
	}
	last := p[strings.LastIndex(p, "/")+1:]
	if !strings.Contains(last, ".") {
		p += "/"
	}
	return "/api" + p
}

// Handle registers (or replaces) a handler. path may use chi patterns such
// as "disciplines/{id}".
func (s *APIServer) Handle(method, path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.router.MethodFunc(method, Route(path), h)
}

// JSON answers every matching request with the same status and body.
func (s *APIServer) JSON(method, path string, status int, body any) {
	s.Sequence(method, path, Reply{Status: status, Body: body})
}

// Sequence answers matching requests with the replies in order; the last
// reply repeats once the script is exhausted.
func (s *APIServer) Sequence(method, path string, replies ...Reply) {
	if len(replies) == 0 {
		s.t.Fatalf("Sequence(%s %s) needs at least one reply", method, path)
	}
	var mu sync.Mutex
	next := 0
	s.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reply := replies[next]
		if next < len(replies)-1 {
			next++
		}
		mu.Unlock()
		WriteReply(w, r, reply)
	})
}

// WriteReply writes a scripted reply.
func WriteReply(w http.ResponseWriter, r *http.Request, reply Reply) {
	if reply.Wait != nil {
		select {
		case <-reply.Wait:
		case <-r.Context().Done():
			return
		}
	}
	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-r.Context().Done():
			return
		}
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	if s, ok := reply.Body.(string); ok {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, s)
		return
	}
	if reply.Body == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, reply.Body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Requests returns a copy of every request received so far.
func (s *APIServer) Requests() []RecordedRequest {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestsTo returns the requests made to method and path (given as for
// Handle, without chi patterns).
func (s *APIServer) RequestsTo(method, path string) []RecordedRequest {
	want := strings.TrimPrefix(Route(path), "/api")
	var out []RecordedRequest
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == want {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many requests were made to method and path.
func (s *APIServer) Count(method, path string) int {
	return len(s.RequestsTo(method, path))
}

// Reset forgets recorded requests.
func (s *APIServer) Reset() {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	s.requests = nil
}
