package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/keeper"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/state"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var webLogger = logger.GetForComponent("web_server")

// Options wires the server to the running deployment. Every field except
// Runtime is optional.
type Options struct {
	Port       string
	Runtime    *chain.Runtime
	Keeper     *keeper.Keeper
	Vault      *vault.Vault
	Multi      *vault.MultiStrategyVault
	MultiNames []string
	Positions  []keeper.PositionSource
	Gatherer   prometheus.Gatherer // nil serves the default registry
}

// WebServer serves the vault state, the event log and the keeper history.
// Persisted data is read from the state store when it is connected, otherwise
// from the runtime and the keeper's memory.
type WebServer struct {
	router *mux.Router
	port   string
	opts   Options
	server *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(opts Options) *WebServer {
	if opts.Port == "" {
		opts.Port = "8080"
	}
	ws := &WebServer{
		router: mux.NewRouter(),
		port:   opts.Port,
		opts:   opts,
	}
	ws.setupRoutes()
	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return ws
}

// Handler exposes the routes, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	gatherer := ws.opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	ws.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/strategy/position", ws.handleGetPositions).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/cycles/{id:[0-9]+}", ws.handleGetCycle).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

// handleHealth reports the process, the store and the last keeper cycle.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	cycleInfo := map[string]interface{}{
		"current_cycle":     0,
		"last_cycle_time":   nil,
		"last_cycle_errors": []string{},
	}
	if cycles, err := ws.recentCycles(1); err == nil && len(cycles) > 0 {
		c := cycles[0]
		cycleInfo["current_cycle"] = c.CycleNumber
		cycleInfo["last_cycle_time"] = c.Timestamp
		cycleInfo["last_cycle_errors"] = c.Errors
		hasErrors = len(c.Errors) > 0
	}

	dbStatus := "disabled"
	if state.Enabled() {
		dbStatus = "healthy"
		if err := state.TestDBConnection(r.Context()); err != nil {
			dbStatus = "unhealthy"
			hasErrors = true
		}
	}

	var reverts uint64
	if ws.opts.Runtime != nil {
		reverts = ws.opts.Runtime.Reverts()
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "levvault-keeper",
			"version": "1.0.0",
		},
		"keeper_status": map[string]interface{}{
			"database":          dbStatus,
			"has_recent_errors": hasErrors,
			"reverted_ops":      reverts,
			"cycle_info":        cycleInfo,
		},
	})
}

// VaultSummary is the live state of one vault.
type VaultSummary struct {
	Name              string                `json:"name"`
	Address           common.Address        `json:"address"`
	Asset             string                `json:"asset"`
	TotalAssets       sdkmath.Int           `json:"total_assets"`
	TotalSupply       sdkmath.Int           `json:"total_supply"`
	TokenPerAsset     sdkmath.Int           `json:"token_per_asset"`
	PerformanceFeeBps uint64                `json:"performance_fee_bps"`
	WithdrawalFeeBps  uint64                `json:"withdrawal_fee_bps"`
	Strategies        []StrategyHolding     `json:"strategies,omitempty"`
	Idle              *sdkmath.Int          `json:"idle,omitempty"`
	Scores            []types.StrategyScore `json:"scores,omitempty"`
}

// StrategyHolding is one allocation of a multi-strategy vault.
type StrategyHolding struct {
	Name      string      `json:"name"`
	WeightBps uint64      `json:"weight_bps"`
	Holdings  sdkmath.Int `json:"holdings"`
}

type settingsView interface {
	Name() string
	Address() common.Address
	Asset() string
	TotalAssets() sdkmath.Int
	TotalSupply() sdkmath.Int
	TokenPerAsset() sdkmath.Int
	Settings() vault.Settings
}

func summarize(v settingsView) VaultSummary {
	s := v.Settings()
	return VaultSummary{
		Name:              v.Name(),
		Address:           v.Address(),
		Asset:             v.Asset(),
		TotalAssets:       v.TotalAssets(),
		TotalSupply:       v.TotalSupply(),
		TokenPerAsset:     v.TokenPerAsset(),
		PerformanceFeeBps: s.PerformanceFeeBps,
		WithdrawalFeeBps:  s.WithdrawalFeeBps,
	}
}

// view reads live state between runtime transactions.
func (ws *WebServer) view(fn func()) {
	if ws.opts.Runtime == nil {
		fn()
		return
	}
	ws.opts.Runtime.View(fn)
}

// handleGetVaultSummary returns the live vaults and the cycle history summary
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	var vaults []VaultSummary
	ws.view(func() {
		if ws.opts.Vault != nil {
			vaults = append(vaults, summarize(ws.opts.Vault))
		}
		if m := ws.opts.Multi; m != nil {
			s := summarize(m)
			idle := m.Idle()
			s.Idle = &idle
			weights, holdings := m.Weights(), m.Holdings()
			for i := range weights {
				name := strconv.Itoa(i)
				if i < len(ws.opts.MultiNames) {
					name = ws.opts.MultiNames[i]
				}
				s.Strategies = append(s.Strategies, StrategyHolding{Name: name, WeightBps: weights[i], Holdings: holdings[i]})
			}
			vaults = append(vaults, s)
		}
	})
	if ws.opts.Multi != nil && ws.opts.Keeper != nil {
		vaults[len(vaults)-1].Scores = ws.opts.Keeper.Scores()
	}

	summary, err := ws.cycleSummary()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get cycle summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"vaults":  vaults,
		"cycles":  summary,
		"updated": time.Now().UTC(),
	})
}

// cycleSummary aggregates the stored cycles, or the in-memory ones without a store.
func (ws *WebServer) cycleSummary() (*state.CycleSummary, error) {
	if state.Enabled() {
		return state.GetCycleSummary()
	}
	summary := &state.CycleSummary{
		TotalVaultPnl:       sdkmath.ZeroInt(),
		TotalMultiPnl:       sdkmath.ZeroInt(),
		LatestTotalAssets:   sdkmath.ZeroInt(),
		LatestTokenPerAsset: sdkmath.ZeroInt(),
	}
	if ws.opts.Keeper == nil {
		return summary, nil
	}
	cycles := ws.opts.Keeper.RecentCycles(0)
	for _, c := range cycles {
		summary.TotalCycles++
		if len(c.Errors) > 0 {
			summary.FailedCycles++
		}
		if !c.VaultPnl.IsNil() {
			summary.TotalVaultPnl = summary.TotalVaultPnl.Add(c.VaultPnl)
		}
		if !c.MultiPnl.IsNil() {
			summary.TotalMultiPnl = summary.TotalMultiPnl.Add(c.MultiPnl)
		}
	}
	if len(cycles) > 0 {
		latest := cycles[0]
		summary.LatestTotalAssets = latest.FinalVault.TotalAssets
		summary.LatestTokenPerAsset = latest.FinalVault.TokenPerAsset
		summary.LastUpdated = &latest.Timestamp
	}
	return summary, nil
}

// PositionView is the live position of a leveraged strategy.
type PositionView struct {
	Strategy string                  `json:"strategy"`
	Position types.Position          `json:"position"`
	Equity   sdkmath.Int             `json:"equity"`
	Policy   *types.PolicyParameters `json:"policy,omitempty"`
}

// handleGetPositions returns every leveraged position
func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	views := make([]PositionView, 0, len(ws.opts.Positions))
	ws.view(func() {
		for _, p := range ws.opts.Positions {
			pos := p.Position()
			v := PositionView{Strategy: p.Name(), Position: pos, Equity: pos.Equity()}
			if withPolicy, ok := p.(interface{ Policy() types.PolicyParameters }); ok {
				policy := withPolicy.Policy()
				v.Policy = &policy
			}
			views = append(views, v)
		}
	})
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"positions": views,
		"count":     len(views),
	})
}

// handleGetEvents returns the latest events, newest first
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, 1000)
	kind := events.Kind(r.URL.Query().Get("kind"))

	var (
		list []events.Event
		err  error
	)
	switch {
	case state.Enabled():
		list, err = state.GetEvents(limit, kind)
	case ws.opts.Runtime != nil:
		list = ws.opts.Runtime.Events().Recent(limit, kind)
	}
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}
	if list == nil {
		list = []events.Event{}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": list,
		"count":  len(list),
		"limit":  limit,
	})
}

func (ws *WebServer) recentCycles(limit int) ([]types.CycleSnapshot, error) {
	if state.Enabled() {
		return state.GetRecentCycles(limit)
	}
	if ws.opts.Keeper == nil {
		return nil, nil
	}
	return ws.opts.Keeper.RecentCycles(limit), nil
}

// handleGetCycles returns the latest cycles, newest first
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 100)

	cycles, err := ws.recentCycles(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}
	if cycles == nil {
		cycles = []types.CycleSnapshot{}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	})
}

// handleGetCycle returns a specific cycle by ID
func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}

	if state.Enabled() {
		cycle, err := state.GetCycleByID(id)
		if errors.Is(err, state.ErrCycleNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Cycle not found")
			return
		}
		if err != nil {
			webLogger.Error().Err(err).Int64("cycleId", id).Msg("Failed to get cycle")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycle")
			return
		}
		ws.writeJSONResponse(w, http.StatusOK, cycle)
		return
	}

	if ws.opts.Keeper != nil {
		if cycle, ok := ws.opts.Keeper.Cycle(id); ok {
			ws.writeJSONResponse(w, http.StatusOK, cycle)
			return
		}
	}
	ws.writeErrorResponse(w, http.StatusNotFound, "Cycle not found")
}

// handleGetLatestCycle returns the most recent cycle
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	cycles, err := ws.recentCycles(1)
	if err != nil || len(cycles) == 0 {
		if err != nil {
			webLogger.Error().Err(err).Msg("Failed to get latest cycle")
		}
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycles[0])
}

func parseLimit(r *http.Request, fallback, upper int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= upper {
			return n
		}
	}
	return fallback
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
