package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	gateway "github.com/bambooai/panda-gateway"
	"github.com/bambooai/panda-gateway/auth"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
)

// Server is the HTTP front of the gateway.
type Server struct {
	gw  *gateway.Gateway
	cfg config.ServerConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	http *http.Server
}

func New(gw *gateway.Gateway) *Server {
	s := &Server{
		gw:       gw,
		cfg:      gw.Config.Server,
		limiters: make(map[string]*rate.Limiter),
	}
	s.http = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("POST /v1/chat/completions", s.authenticated(s.handleChatCompletions))
	mux.Handle("GET /v1/models", s.authenticated(s.handleModels))
	mux.Handle("POST /v1/summary", s.authenticated(s.handleSummary))
	return s.cors(mux)
}

// Run serves until the context is cancelled, then drains.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logger.Infof("server: listening on %s", s.cfg.Addr)
		errc <- s.http.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return s.gw.Close()
}

type ctxKey int

const identityKey ctxKey = 0

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey).(auth.Identity)
	return id
}

// authenticated verifies the bearer token and applies the per-client rate
// limit before invoking the handler.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := s.gw.Auth.Authenticate(r)
		if err != nil {
			logger.Warnf("server: auth failed from %s: %v", r.RemoteAddr, err)
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !s.allow(clientKey(r, ident)) {
			writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey, ident)))
	})
}

func clientKey(r *http.Request, ident auth.Identity) string {
	if ident.UserID != "" {
		return ident.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allow(key string) bool {
	if s.cfg.RatePerMinute <= 0 {
		return true
	}
	s.mu.Lock()
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.RatePerMinute/60), s.cfg.RateBurst)
		s.limiters[key] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{"error": {"message": msg}})
}

func writeJSONErrorBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
