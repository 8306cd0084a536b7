package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/target/portal-api/internal/errors"
	"github.com/target/portal-api/internal/observability/metrics"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware so that the first entry is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// routeInfo is filled in by the matched route so outer middleware can label by pattern.
type routeInfo struct {
	pattern string
}

type routeInfoKey struct{}

// withRoute records the ServeMux pattern that matched r.
func withRoute(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := r.Context().Value(routeInfoKey{}).(*routeInfo); ok {
			info.pattern = r.Pattern
		}
		h.ServeHTTP(w, r)
	})
}

// Logging returns a middleware that logs HTTP requests and records request metrics.
func Logging(logger *slog.Logger, rec *metrics.Recorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			info := &routeInfo{}
			r = r.WithContext(context.WithValue(r.Context(), routeInfoKey{}, info))

			next.ServeHTTP(ww, r)

			d := time.Since(start)
			rec.RecordHTTPRequest(r.Method, info.pattern, ww.status, d)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", info.pattern),
				slog.Int("status", ww.status),
				slog.Duration("duration", d),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *respWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteErrorCode(w, apperrors.ErrCodeInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets conservative response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// SecurityEvents logs rejected requests and counts them by reason.
// Only request metadata is logged; credentials never are.
type SecurityEvents struct {
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
	TrustProxy bool
}

// Record logs a security event for r.
func (s *SecurityEvents) Record(r *http.Request, reason apperrors.ErrorCode) {
	if s == nil {
		return
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(r.Context(), "request rejected",
		slog.String("event", "security"),
		slog.String("reason", string(reason)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", clientIP(r, s.TrustProxy)),
		slog.String("user_agent", r.UserAgent()),
	)
	s.Metrics.RecordSecurityEvent(string(reason))
}

// AllowedHosts rejects requests whose Host header is not listed. An empty list allows any host.
func AllowedHosts(hosts []string, events *SecurityEvents) Middleware {
	allowed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := strings.ToLower(r.Host)
			if h, _, err := net.SplitHostPort(host); err == nil {
				host = h
			}
			if _, ok := allowed[host]; !ok {
				events.Record(r, apperrors.ErrCodeInvalidHost)
				WriteErrorCode(w, apperrors.ErrCodeInvalidHost)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	PerSecond  float64
	Burst      int
	TrustProxy bool
	// IdleTTL drops buckets of clients not seen for this long.
	IdleTTL time.Duration
	Now     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	cfg       RateLimitConfig
	lastSweep time.Time
}

func (s *limiterSet) allow(key string) bool {
	now := s.cfg.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > s.cfg.IdleTTL {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > s.cfg.IdleTTL {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(s.cfg.PerSecond), s.cfg.Burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// RateLimit applies a token bucket per client IP.
func RateLimit(cfg RateLimitConfig, events *SecurityEvents) Middleware {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	set := &limiterSet{buckets: make(map[string]*bucket), cfg: cfg, lastSweep: cfg.Now()}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !set.allow(clientIP(r, cfg.TrustProxy)) {
				events.Record(r, apperrors.ErrCodeRateLimited)
				w.Header().Set("Retry-After", "1")
				WriteErrorCode(w, apperrors.ErrCodeRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the caller address. X-Forwarded-For is honoured only behind a trusted proxy.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

// isSecureRequest reports whether the request arrived over TLS, directly or through a trusted proxy.
func isSecureRequest(r *http.Request, trustProxy bool) bool {
	if r.TLS != nil {
		return true
	}
	if !trustProxy {
		return false
	}
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}
