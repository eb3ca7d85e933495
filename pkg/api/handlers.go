package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/ledger"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/internal/profile"
	"github.com/goran-ethernal/HolderLedger/internal/store"
	"github.com/goran-ethernal/HolderLedger/internal/synchronizer"
)

const maxBodyBytes = 1 << 16

// HolderService is the part of the synchronizer the API serves.
type HolderService interface {
	Contracts() []*profile.Profile
	Profile(key string) (*profile.Profile, error)
	State(key string) (*store.CacheState, error)
	Snapshot(ctx context.Context, key, wallet string) (*ledger.Ledger, *store.CacheState, error)
	Trigger(ctx context.Context, key string, opts synchronizer.Options, wait time.Duration) (synchronizer.Status, error)
}

// CacheHealth reports whether the cache runs without its remote tier.
type CacheHealth interface {
	Degraded() bool
}

// Paging bounds holder pagination.
type Paging struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Handler handles HTTP requests for the API.
type Handler struct {
	service  HolderService
	cache    CacheHealth
	paging   Paging
	syncWait time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewHandler creates a new API handler. cache may be nil.
func NewHandler(service HolderService, cache CacheHealth, paging Paging, syncWait time.Duration,
	log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Handler{
		service:  service,
		cache:    cache,
		paging:   paging,
		syncWait: syncWait,
		log:      log,
		now:      time.Now,
	}
}

// ListContracts returns every configured contract.
// @Summary List contracts
// @Description Get the configured contracts with their tier and reward settings
// @Tags Contracts
// @Produce json
// @Success 200 {array} ContractInfo "List of contracts"
// @Router /contracts [get]
func (h *Handler) ListContracts(w http.ResponseWriter, _ *http.Request) {
	profiles := h.service.Contracts()

	infos := make([]ContractInfo, 0, len(profiles))
	for _, p := range profiles {
		multipliers := make([]uint64, p.MaxTier)
		for tier := 1; tier <= p.MaxTier; tier++ {
			multipliers[tier-1] = p.Multiplier(tier)
		}

		infos = append(infos, ContractInfo{
			Key:               p.Key,
			Address:           p.Address.Hex(),
			DeploymentBlock:   p.DeploymentBlock,
			RewardKind:        p.RewardKind,
			MaxTier:           p.MaxTier,
			Multipliers:       multipliers,
			VerifyOwnership:   p.VerifyOwnership,
			TierMutable:       p.TierMutable,
			RequiredFunctions: p.RequiredFunctions(),
			Endpoints:         []string{fmt.Sprintf("/holders/%s", p.Key)},
		})
	}

	respondJSON(w, http.StatusOK, infos)
}

// GetHolders returns a page of the holder ledger.
// @Summary Get holders of a contract
// @Description Serve a page of the cached holder ledger. While a synchronization runs, or when
// @Description nothing is cached yet, the progress of the run is returned with status 202.
// @Tags Holders
// @Produce json
// @Param contract path string true "Contract key"
// @Param page query int false "Page number, starting at 1" default(1)
// @Param pageSize query int false "Holders per page" default(100)
// @Param wallet query string false "Serve the ledger of a wallet scoped synchronization"
// @Success 200 {object} HoldersResponse "Holder page"
// @Success 202 {object} PopulatingResponse "Synchronization in progress"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 404 {object} ErrorResponse "Contract not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /holders/{contract} [get]
func (h *Handler) GetHolders(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("contract")

	p, err := h.service.Profile(key)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	page, pageSize, err := h.parsePaging(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wallet := r.URL.Query().Get("wallet")

	l, state, err := h.service.Snapshot(r.Context(), key, wallet)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if state.IsPopulating {
		respondJSON(w, http.StatusAccepted, populating(state))
		return
	}

	if l == nil {
		status, err := h.service.Trigger(r.Context(), key, synchronizer.Options{Wallet: wallet}, 0)
		if err != nil {
			h.log.Warnw("background synchronization failed", "contract", key, "error", err)
		}
		h.log.Debugw("nothing cached, synchronization started", "contract", key, "status", status)

		if state, err = h.service.State(key); err != nil {
			h.respondServiceError(w, err)
			return
		}
		resp := populating(state)
		resp.IsCachePopulating = true
		respondJSON(w, http.StatusAccepted, resp)
		return
	}

	totalTokens := 0
	for _, holder := range l.Holders {
		totalTokens += holder.Total
	}

	totalPages := (len(l.Holders) + pageSize - 1) / pageSize
	start := min((page-1)*pageSize, len(l.Holders))
	end := min(start+pageSize, len(l.Holders))

	respondJSON(w, http.StatusOK, HoldersResponse{
		Holders:       slices.Clone(l.Holders[start:end]),
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
		TotalTokens:   totalTokens,
		TotalBurned:   l.TotalBurned,
		Summary:       ledger.Metrics(l, state.GlobalMetrics.TotalMinted, p.LedgerPolicy()),
		GlobalMetrics: state.GlobalMetrics,
		Timestamp:     l.Timestamp,
	})
}

// SyncHolders starts a synchronization of a contract.
// @Summary Synchronize holders of a contract
// @Description Start a synchronization and wait a bounded time for it. A run that takes longer
// @Description keeps going in the background and in_progress is returned.
// @Tags Holders
// @Accept json
// @Produce json
// @Param contract path string true "Contract key"
// @Param request body SyncRequest false "Synchronization options"
// @Success 200 {object} SyncResponse "Synchronization status"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 404 {object} ErrorResponse "Contract not found"
// @Failure 500 {object} SyncResponse "Synchronization failed"
// @Router /holders/{contract} [post]
func (h *Handler) SyncHolders(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("contract")

	var req SyncRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	status, err := h.service.Trigger(r.Context(), key, synchronizer.Options{
		ForceUpdate: req.ForceUpdate,
		Wallet:      req.Wallet,
	}, h.syncWait)

	switch {
	case errors.Is(err, synchronizer.ErrUnknownContract), errors.Is(err, synchronizer.ErrInvalidWallet):
		h.respondServiceError(w, err)
	case err != nil:
		h.log.Errorw("synchronization failed", "contract", key, "error", err)
		respondJSON(w, http.StatusInternalServerError, SyncResponse{
			Status: string(synchronizer.StatusError),
			Error:  err.Error(),
		})
	default:
		respondJSON(w, http.StatusOK, SyncResponse{Status: string(status)})
	}
}

// Health returns the health status of the service.
// @Summary Health check
// @Description Check the cache health and the synchronization state of every contract. A contract
// @Description whose ledger misses skipped log ranges reports rebuildNeeded and degrades the status.
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service health status"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC(),
		Contracts: []ContractStatus{},
	}

	if h.cache != nil && h.cache.Degraded() {
		resp.Status = "degraded"
		resp.CacheDegraded = true
	}

	for _, p := range h.service.Contracts() {
		state, err := h.service.State(p.Key)
		if err != nil {
			continue
		}

		resp.Contracts = append(resp.Contracts, ContractStatus{
			Key:                p.Key,
			IsPopulating:       state.IsPopulating,
			Step:               state.ProgressState.Step,
			LastProcessedBlock: state.LastProcessedBlock,
			LastUpdated:        state.LastUpdated,
			Error:              state.ProgressState.Error,
			RebuildNeeded:      state.NeedsRebuild(),
			UnappliedRanges:    state.UnappliedRanges,
		})

		if state.NeedsRebuild() {
			resp.Status = "degraded"
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) parsePaging(r *http.Request) (int, int, error) {
	page, pageSize := 1, h.paging.DefaultPageSize

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid page: must be a positive integer")
		}
		page = n
	}

	if v := r.URL.Query().Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > h.paging.MaxPageSize {
			return 0, 0, fmt.Errorf("invalid pageSize: must be between 1 and %d", h.paging.MaxPageSize)
		}
		pageSize = n
	}

	return page, pageSize, nil
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, synchronizer.ErrUnknownContract):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, synchronizer.ErrInvalidWallet):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Errorw("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func populating(state *store.CacheState) PopulatingResponse {
	return PopulatingResponse{
		IsCachePopulating: state.IsPopulating,
		ProgressState:     state.ProgressState,
		GlobalMetrics:     state.GlobalMetrics,
	}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// encode first so a failure can still change the status
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
