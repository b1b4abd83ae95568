package cheat_report

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/r4g3baby/cheat-report/config"
	"github.com/r4g3baby/cheat-report/database"
	"go.uber.org/zap"
)

type (
	contextKey int

	// Server exposes the report, moderation, account and bind operations
	// over HTTP.
	Server struct {
		cfg       *config.Config
		accounts  *AccountService
		pipeline  *Pipeline
		moderator *Moderator
		bridge    *Bridge
		progress  *ProgressHub
		providers []IdentityProvider
		log       *zap.SugaredLogger

		router *mux.Router
	}

	statusRecorder struct {
		http.ResponseWriter
		status int
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

const accountKey contextKey = iota

func NewServer(cfg *config.Config, log *zap.SugaredLogger, accounts *AccountService, pipeline *Pipeline, moderator *Moderator, bridge *Bridge, progress *ProgressHub, providers ...IdentityProvider) *Server {
	server := &Server{
		cfg:       cfg,
		accounts:  accounts,
		pipeline:  pipeline,
		moderator: moderator,
		bridge:    bridge,
		progress:  progress,
		providers: providers,
		log:       log,
		router:    mux.NewRouter(),
	}
	server.routes()
	return server
}

func (server *Server) routes() {
	r := server.router
	r.Use(server.logRequests)

	r.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/register", server.register).Methods(http.MethodPost)
	r.HandleFunc("/login", server.login).Methods(http.MethodPost)

	r.Handle("/report", server.user(server.submitReport)).Methods(http.MethodPost)
	r.Handle("/reports", server.user(server.listReports)).Methods(http.MethodGet)

	r.Handle("/admin/reports", server.admin(server.adminReports)).Methods(http.MethodGet)
	r.Handle("/admin/reports/{id:[0-9]+}/approve", server.admin(server.approveReport)).Methods(http.MethodPost)
	r.Handle("/admin/reports/{id:[0-9]+}", server.admin(server.rejectReport)).Methods(http.MethodDelete)

	r.Handle("/users", server.admin(server.listAccounts)).Methods(http.MethodGet)
	r.Handle("/users/{id:[0-9]+}/approve", server.admin(server.approveAccount)).Methods(http.MethodPost)
	r.Handle("/users/{id:[0-9]+}/promote", server.admin(server.promoteAccount)).Methods(http.MethodPost)
	r.Handle("/users/{id:[0-9]+}", server.admin(server.deleteAccount)).Methods(http.MethodDelete)

	for _, provider := range server.providers {
		platform := string(provider.Platform())
		r.Handle("/auth/"+platform, server.bridge.BeginHandler(provider)).Methods(http.MethodGet)
		r.Handle(provider.CallbackPath(), server.bridge.CallbackHandler(provider)).Methods(http.MethodGet)
	}

	if server.progress != nil {
		r.Handle("/ws", server.progress)
	}

	if server.cfg.Web.Static != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(server.cfg.Web.Static))).Methods(http.MethodGet, http.MethodHead)
	}
}

// ServeHTTP answers CORS preflights before routing so that method matching
// never rejects them.
func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := server.cfg.Bind.Origin
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	server.router.ServeHTTP(w, r)
}

func (server *Server) user(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
		if token == "" || token == header {
			writeError(w, ErrUnauthenticated)
			return
		}

		account, err := server.accounts.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				server.log.Errorw("failed to authenticate request",
					"url", r.URL.Path,
					"error", err,
				)
			}
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, account)))
	})
}

func (server *Server) admin(next http.HandlerFunc) http.Handler {
	return server.user(func(w http.ResponseWriter, r *http.Request) {
		if !currentAccount(r).IsAdmin {
			writeError(w, ErrNotAdmin)
			return
		}
		next(w, r)
	})
}

func (server *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		server.log.Debugw("handled request",
			"method", r.Method,
			"url", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(start),
		)
	})
}

func currentAccount(r *http.Request) *database.Account {
	account, _ := r.Context().Value(accountKey).(*database.Account)
	return account
}

func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMissingToken):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotApproved), errors.Is(err, ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyApproved), errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrIdentityTaken):
		return http.StatusConflict
	case errors.Is(err, ErrIdentityFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (recorder *statusRecorder) WriteHeader(status int) {
	recorder.status = status
	recorder.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade through the recorder.
func (recorder *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := recorder.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	recorder.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (recorder *statusRecorder) Unwrap() http.ResponseWriter {
	return recorder.ResponseWriter
}
