// Package httpapi serves the synchronous HTTP ingress. A configurable alias
// table maps verb+path routes onto action keys; request bodies, query and
// path parameters become invocation parameters, and the dispatcher's envelope
// renders as the JSON response with the status derived from its error code.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/dispatch"
	"github.com/vietddude/relay/internal/metrics"
)

const defaultMaxBodyBytes = 1 << 20

// Route aliases one verb+path pair to an action key.
type Route struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
	Action string `yaml:"action"`
}

// Config holds the HTTP ingress settings.
type Config struct {
	Port           int      `yaml:"port"`
	Routes         []Route  `yaml:"routes"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultRoutes is the REST alias table for the sample service, used when no
// routes are configured.
func DefaultRoutes() []Route {
	return []Route{
		{Method: http.MethodGet, Path: "/sample", Action: "sample.list"},
		{Method: http.MethodPost, Path: "/sample", Action: "sample.create"},
		{Method: http.MethodGet, Path: "/sample/{id}", Action: "sample.get"},
		{Method: http.MethodPut, Path: "/sample/{id}", Action: "sample.update"},
		{Method: http.MethodDelete, Path: "/sample/{id}", Action: "sample.remove"},
	}
}

// Server is the HTTP ingress adapter.
type Server struct {
	cfg      Config
	dispatch *dispatch.Router
	server   *http.Server
	handler  http.Handler
	log      *slog.Logger
}

// NewServer builds the ingress with its route table resolved. Malformed
// routes abort startup.
func NewServer(cfg Config, d *dispatch.Router) (*Server, error) {
	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		cfg:      cfg,
		dispatch: d,
		log:      slog.Default().With("component", "httpapi"),
	}

	r := mux.NewRouter()
	for _, route := range cfg.Routes {
		key, err := domain.ParseActionKey(route.Action)
		if err != nil {
			return nil, fmt.Errorf("invalid route %s %s: %w", route.Method, route.Path, err)
		}
		r.HandleFunc(route.Path, s.handle(route, key)).Methods(route.Method)
	}

	s.handler = s.withCORS(r)
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("HTTP ingress listening", "addr", lis.Addr())
	return s.server.Serve(lis)
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handle builds the handler for one route.
func (s *Server) handle(route Route, key domain.ActionKey) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := map[string]any{}
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					s.write(w, r, route, domain.Fail(domain.PayloadTooLargef("request body exceeds limit of %d bytes", s.cfg.MaxBodyBytes)))
					return
				}
				s.write(w, r, route, domain.Fail(domain.Validationf("unreadable request body")))
				return
			}
			if len(raw) > 0 {
				if !mergeJSONBody(params, raw) {
					s.write(w, r, route, domain.Fail(domain.Validationf("request body is not valid JSON")))
					return
				}
			}
		}

		// Path variables win over query and body fields.
		for k, v := range mux.Vars(r) {
			params[k] = v
		}

		meta := map[string]any{
			domain.MetaTransport: "http",
			"http_method":        r.Method,
			"path":               route.Path,
		}
		if cid := r.Header.Get("X-Correlation-Id"); cid != "" {
			meta[domain.MetaCorrelationID] = cid
		}

		inv := domain.NewInvocation(key, params, meta)
		env := s.dispatch.Invoke(r.Context(), inv)
		s.write(w, r, route, env)
	}
}

// mergeJSONBody merges a JSON object's fields over params; other JSON values
// land under "body". Reports false on unparseable input.
func mergeJSONBody(params map[string]any, raw []byte) bool {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false
	}
	if obj, ok := decoded.(map[string]any); ok {
		for k, v := range obj {
			params[k] = v
		}
		return true
	}
	params["body"] = decoded
	return true
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, route Route, env domain.Envelope) {
	status := http.StatusOK
	switch {
	case env.Success && r.Method == http.MethodPost:
		status = http.StatusCreated
	case !env.Success:
		status = domain.Kind(env.Error.Code).HTTPStatus()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.log.Warn("Failed to write response", "error", err)
	}

	metrics.HTTPRequestsTotal.WithLabelValues(route.Method+" "+route.Path, strconv.Itoa(status)).Inc()
}

// withCORS sets the CORS headers on every response and answers preflights.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Correlation-Id")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}
