package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/notify"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
	defaultRecentLimit   = 50
	maxRecentLimit       = 200
	maxRequestBody       = 1 << 20
)

// Store is the read/write surface the user API needs.
type Store interface {
	Ping(ctx context.Context) error
	GetUserByAddress(ctx context.Context, address string) (*model.UserLink, error)
	LinkChannel(ctx context.Context, address, channelID string, username *string) (*model.UserLink, error)
	SetNotificationEnabled(ctx context.Context, address string, enabled bool) (bool, error)
	GetUserActivity(ctx context.Context, address string, limit, offset int) ([]model.ActivityItem, error)
	GetRecentTransfers(ctx context.Context, limit int) ([]model.StoredTransfer, error)
}

type Server struct {
	store   Store
	sender  notify.Sender
	version string
	logger  *zap.Logger
}

// NewServer builds the user API. sender may be nil, then no welcome message
// is sent on link.
func NewServer(store Store, sender notify.Sender, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, sender: sender, version: version, logger: logger}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

type linkRequest struct {
	WalletAddress string  `json:"walletAddress"`
	ChatID        string  `json:"chatId"`
	Username      *string `json:"username"`
}

type notificationsRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/telegram/link", s.link).Methods(http.MethodPost)
	api.HandleFunc("/users/{address}", s.user).Methods(http.MethodGet)
	api.HandleFunc("/users/{address}/activity", s.activity).Methods(http.MethodGet)
	api.HandleFunc("/users/{address}/notifications", s.notifications).Methods(http.MethodPost)
	api.HandleFunc("/transfers/recent", s.recent).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(notFound)
}

// Wrap adds CORS and panic recovery around the router.
func Wrap(h http.Handler, origins []string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(true),
	)
	return cors(recovery(h))
}

type recoveryLogger struct {
	logger *zap.Logger
}

func (l recoveryLogger) Println(args ...interface{}) {
	l.logger.Sugar().Error(args...)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Timestamp: time.Now().UTC(), Version: s.version}
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check: storage unreachable", zap.Error(err))
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.WalletAddress == "" || req.ChatID == "" {
		writeErrorJSON(w, http.StatusBadRequest, "Missing walletAddress or chatId")
		return
	}
	if !model.ValidStacksAddress(req.WalletAddress) {
		writeErrorJSON(w, http.StatusBadRequest, "Invalid wallet address")
		return
	}

	user, err := s.store.LinkChannel(r.Context(), req.WalletAddress, req.ChatID, req.Username)
	if err != nil {
		s.internalError(w, "link channel", err)
		return
	}

	if s.sender != nil {
		if _, err := s.sender.SendMessage(r.Context(), req.ChatID, notify.WelcomeMessage(req.WalletAddress)); err != nil {
			s.logger.Warn("welcome message failed", zap.String("wallet", req.WalletAddress), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Telegram linked successfully",
		"user":    user,
	})
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	user, err := s.store.GetUserByAddress(r.Context(), address)
	if err != nil {
		s.internalError(w, "get user", err)
		return
	}
	if user == nil {
		writeErrorJSON(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) activity(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	limit := queryInt(r, "limit", defaultActivityLimit, maxActivityLimit)
	offset := queryInt(r, "offset", 0, -1)

	items, err := s.store.GetUserActivity(r.Context(), address, limit, offset)
	if err != nil {
		s.internalError(w, "get activity", err)
		return
	}
	if items == nil {
		items = []model.ActivityItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": items})
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	var req notificationsRequest
	if err := decodeJSONBody(w, r, &req); err != nil || req.Enabled == nil {
		writeErrorJSON(w, http.StatusBadRequest, "enabled must be a boolean")
		return
	}

	found, err := s.store.SetNotificationEnabled(r.Context(), address, *req.Enabled)
	if err != nil {
		s.internalError(w, "set notifications", err)
		return
	}
	if !found {
		writeErrorJSON(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "enabled": *req.Enabled})
}

func (s *Server) recent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultRecentLimit, maxRecentLimit)
	transfers, err := s.store.GetRecentTransfers(r.Context(), limit)
	if err != nil {
		s.internalError(w, "recent transfers", err)
		return
	}
	if transfers == nil {
		transfers = []model.StoredTransfer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("api request failed", zap.String("op", op), zap.Error(err))
	writeErrorJSON(w, http.StatusInternalServerError, "Internal server error")
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeErrorJSON(w, http.StatusNotFound, "Not found")
}

// queryInt parses a non-negative query parameter. When max > 0 the value is
// a page size: zero falls back to def and larger values are capped.
func queryInt(r *http.Request, key string, def, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (n == 0 && max > 0) {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
