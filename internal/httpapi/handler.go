// Package httpapi exposes the registry over HTTP. Handlers decode requests,
// call the registry, and translate domain errors; they hold no business logic.
package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"unitledger/docs/schema/openapi"
	"unitledger/internal/core"
	"unitledger/pkg/domain"
)

// AccountHeader carries the acting identity of a request.
const AccountHeader = "X-Account"

const requestTimeout = 30 * time.Second

// Registry is the subset of core.Service the handlers call.
type Registry interface {
	Create(ctx context.Context, caller domain.AccountID, opts core.CreateOptions) (domain.Unit, error)
	Transfer(ctx context.Context, caller, to domain.AccountID, id domain.UnitID, opts core.TransferOptions) error
	Breed(ctx context.Context, caller domain.AccountID, parentA, parentB domain.UnitID, opts core.BreedOptions) (domain.Unit, error)
	Unit(ctx context.Context, id domain.UnitID) (domain.OwnedUnit, error)
	UnitsOf(ctx context.Context, owner domain.AccountID) ([]domain.UnitID, error)
	Parents(ctx context.Context, id domain.UnitID) (domain.ParentPair, bool, error)
	HasChild(ctx context.Context, parent, child domain.UnitID) (bool, error)
	AreMates(ctx context.Context, a, b domain.UnitID) (bool, error)
}

// Handler serves the registry routes.
type Handler struct {
	registry Registry
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// New creates a Handler. A nil logger uses slog.Default; a nil gatherer
// serves the default Prometheus registry.
func New(registry Registry, logger *slog.Logger, gatherer prometheus.Gatherer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{registry: registry, logger: logger, gatherer: gatherer}
}

// Router returns a chi router with every route registered.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	r.Get("/openapi.yaml", h.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(h.logRequests)

		r.Post("/units", h.handleCreate)
		r.Post("/units/breed", h.handleBreed)
		r.Post("/units/{id}/transfer", h.handleTransfer)
		r.Get("/units/{id}", h.handleGetUnit)
		r.Get("/units/{id}/lineage", h.handleLineage)
		r.Get("/accounts/{account}/units", h.handleListUnits)
	})
}

type createRequest struct {
	Stake domain.Balance `json:"stake"`
}

type transferRequest struct {
	To     domain.AccountID `json:"to"`
	Amount domain.Balance   `json:"amount"`
}

type breedRequest struct {
	ParentA domain.UnitID  `json:"parent_a"`
	ParentB domain.UnitID  `json:"parent_b"`
	Stake   domain.Balance `json:"stake"`
}

// UnitResponse is the JSON form of a unit.
type UnitResponse struct {
	ID    domain.UnitID    `json:"id"`
	DNA   string           `json:"dna"`
	Owner domain.AccountID `json:"owner,omitempty"`
}

// LineageResponse is the JSON form of a unit's recorded ancestry.
type LineageResponse struct {
	ID       domain.UnitID      `json:"id"`
	Parents  *domain.ParentPair `json:"parents"`
	HasChild *bool              `json:"has_child,omitempty"`
	MateOf   *bool              `json:"mate_of,omitempty"`
}

// AccountUnitsResponse lists an account's collection in acquisition order.
type AccountUnitsResponse struct {
	Account domain.AccountID `json:"account"`
	Units   []domain.UnitID  `json:"units"`
}

func caller(r *http.Request) domain.AccountID {
	return domain.AccountID(r.Header.Get(AccountHeader))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.Spec())
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	unit, err := h.registry.Create(r.Context(), caller(r), core.CreateOptions{Stake: req.Stake})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UnitResponse{ID: unit.ID, DNA: hex.EncodeToString(unit.DNA[:]), Owner: caller(r)})
}

func (h *Handler) handleBreed(w http.ResponseWriter, r *http.Request) {
	var req breedRequest
	if !h.decode(w, r, &req) {
		return
	}
	unit, err := h.registry.Breed(r.Context(), caller(r), req.ParentA, req.ParentB, core.BreedOptions{Stake: req.Stake})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UnitResponse{ID: unit.ID, DNA: hex.EncodeToString(unit.DNA[:]), Owner: caller(r)})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.unitID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.registry.Transfer(r.Context(), caller(r), req.To, id, core.TransferOptions{Amount: req.Amount}); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.unitID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	unit, err := h.registry.Unit(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnitResponse{ID: unit.ID, DNA: hex.EncodeToString(unit.DNA[:]), Owner: unit.Owner})
}

// handleLineage returns the parent pair. Optional `child` and `mate` query
// parameters add has_child and mate_of answers for the given unit.
func (h *Handler) handleLineage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.unitID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx := r.Context()
	pair, recorded, err := h.registry.Parents(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := LineageResponse{ID: id}
	if recorded {
		resp.Parents = &pair
	}
	if raw := r.URL.Query().Get("child"); raw != "" {
		child, ok := h.unitID(w, r, raw)
		if !ok {
			return
		}
		has, err := h.registry.HasChild(ctx, id, child)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.HasChild = &has
	}
	if raw := r.URL.Query().Get("mate"); raw != "" {
		mate, ok := h.unitID(w, r, raw)
		if !ok {
			return
		}
		mates, err := h.registry.AreMates(ctx, id, mate)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.MateOf = &mates
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	account := domain.AccountID(chi.URLParam(r, "account"))
	ids, err := h.registry.UnitsOf(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []domain.UnitID{}
	}
	writeJSON(w, http.StatusOK, AccountUnitsResponse{Account: account, Units: ids})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err.Error(),
		)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeInvalidRequest, Message: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) unitID(w http.ResponseWriter, r *http.Request, raw string) (domain.UnitID, bool) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid unit id", "value", raw)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeInvalidRequest, Message: "unit id must be an unsigned 32-bit integer"})
		return 0, false
	}
	return domain.UnitID(n), true
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.DebugContext(r.Context(), "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
