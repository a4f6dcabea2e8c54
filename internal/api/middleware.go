package api

import (
    "bufio"
    "errors"
    "fmt"
    "net"
    "net/http"
    "runtime/debug"
    "strconv"
    "time"

    "github.com/go-chi/chi/v5"

    "mdvrp/internal/metrics"
)

// ResponseWriter captures the status code for logging and metrics.
type ResponseWriter struct {
    http.ResponseWriter
    StatusCode int
}

func (rw *ResponseWriter) WriteHeader(statusCode int) {
    rw.StatusCode = statusCode
    rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := rw.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("hijack not supported") }
    if rw.StatusCode == 0 { rw.StatusCode = http.StatusSwitchingProtocols }
    return h.Hijack()
}

func (rw *ResponseWriter) Flush() {
    if f, ok := rw.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (s *Server) logger(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rw := &ResponseWriter{ResponseWriter: w}
        next.ServeHTTP(rw, r)
        if rw.StatusCode == 0 { rw.StatusCode = http.StatusOK }
        duration := time.Since(start)
        path := r.URL.Path
        if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
            path = rc.RoutePattern()
        }
        status := strconv.Itoa(rw.StatusCode)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(duration.Seconds())
        s.Log.Info("request handled", "status", rw.StatusCode, "ip", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "duration", duration)
    })
}

func (s *Server) recoverer(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if err := recover(); err != nil {
                s.Log.Error("panic", "err", fmt.Sprint(err), "path", r.URL.Path, "stack", string(debug.Stack()))
                writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "", r.URL.Path)
            }
        }()
        next.ServeHTTP(w, r)
    })
}

// rateLimit applies the shared token bucket to API calls.
func (s *Server) rateLimit(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if s.limiter != nil && !s.limiter.Allow() {
            w.Header().Set("Retry-After", "1")
            writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}
