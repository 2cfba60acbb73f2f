package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coinbot/internal/auth"
	"coinbot/internal/economy"
)

type Server struct {
	log      *slog.Logger
	keys     *auth.KeyVerifier
	engine   *economy.Engine
	gatherer prometheus.Gatherer
	clock    func() time.Time
	mux      *chi.Mux
}

type Option func(*Server)

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

func New(logger *slog.Logger, keys *auth.KeyVerifier, engine *economy.Engine, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:      logger,
		keys:     keys,
		engine:   engine,
		gatherer: prometheus.DefaultGatherer,
		clock:    time.Now,
		mux:      chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.apiKeyMiddleware)
		r.Get("/shop", s.handleShop)
		r.Get("/users/{id}/balance", s.handleBalance)
		r.Post("/users/{id}/earn", s.handleEarn)
		r.Post("/users/{id}/purchases", s.handlePurchase)
		r.Post("/users/{id}/transfers", s.handleTransfer)
		r.Get("/users/{id}/inventory", s.handleInventory)
	})
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := s.keys.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

type shopItemView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PriceMinor  int64  `json:"price_minor"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

func (s *Server) handleShop(w http.ResponseWriter, _ *http.Request) {
	items := s.engine.Shop()
	out := make([]shopItemView, 0, len(items))
	for _, item := range items {
		out = append(out, shopItemView{
			ID:          item.ID,
			Name:        item.Name,
			PriceMinor:  int64(item.Price),
			Price:       item.Price.String(),
			Description: item.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	bal, err := s.engine.CheckBalance(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       userID,
		"balance_minor": int64(bal),
		"balance":       bal.String(),
	})
}

func (s *Server) handleEarn(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	res, err := s.engine.Earn(r.Context(), userID, s.clock())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":                res,
		"cooldown_remaining_ms": res.CooldownRemaining.Milliseconds(),
	})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	var in struct {
		Item string `json:"item"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Item) == "" {
		writeError(w, http.StatusBadRequest, "item is required")
		return
	}
	res, err := s.engine.Purchase(r.Context(), userID, in.Item, s.clock())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	var in struct {
		Recipient string      `json:"recipient"`
		Amount    json.Number `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Out-of-range amounts are a rejection, not a malformed request.
	amount, _ := economy.ParseAmount(in.Amount.String())
	res, err := s.engine.Transfer(r.Context(), userID, strings.TrimSpace(in.Recipient), amount, s.clock())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

type inventoryLine struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	counts, err := s.engine.Inventory(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]inventoryLine, 0, len(counts))
	for _, item := range s.engine.Shop() {
		if n := counts[item.ID]; n > 0 {
			out = append(out, inventoryLine{ID: item.ID, Name: item.Name, Count: n})
			delete(counts, item.ID)
		}
	}
	rest := make([]string, 0, len(counts))
	for id := range counts {
		rest = append(rest, id)
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, inventoryLine{ID: id, Name: id, Count: counts[id]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "items": out})
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	switch {
	case errors.Is(err, economy.ErrStorageIO), errors.Is(err, economy.ErrCorruptTable):
		writeError(w, http.StatusServiceUnavailable, "profile storage unavailable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func userParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return "", false
	}
	return id, true
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
