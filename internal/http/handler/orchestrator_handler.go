package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/your-org/strategy-runner/internal/engine"
	"github.com/your-org/strategy-runner/internal/orchestrator"
)

// Runner is the orchestrator surface exposed over HTTP.
type Runner interface {
	Start(ctx context.Context, strategyID string, opts orchestrator.StartOptions) (string, error)
	Stop(instanceID string) bool
	Status(instanceID string) (orchestrator.InstanceInfo, bool)
	Instances() []orchestrator.InstanceInfo
	DeadLetters() []orchestrator.DeadLetter
	ClearDeadLetters() int
	ResetCircuitBreaker(strategyID string)
	CircuitState(strategyID string) orchestrator.CircuitState
	RateWindowCount(strategyID string) int
}

// OrchestratorHandler はストラテジーインスタンスの操作を処理します。
type OrchestratorHandler struct {
	runner    Runner
	validator *SchemaValidator
}

// NewOrchestratorHandler creates an OrchestratorHandler.
func NewOrchestratorHandler(runner Runner) *OrchestratorHandler {
	return &OrchestratorHandler{runner: runner, validator: mustSchemaValidator(startRequestSchema)}
}

// RegisterRoutes registers the instance, dead-letter and breaker routes.
func (h *OrchestratorHandler) RegisterRoutes(r chi.Router) {
	r.Get("/instances", h.ListInstances)
	r.Get("/instances/{instanceID}", h.GetInstance)
	r.Post("/instances/{instanceID}/stop", h.StopInstance)
	r.Post("/strategies/{strategyID}/start", h.StartStrategy)
	r.Get("/strategies/{strategyID}/guards", h.GetGuards)
	r.Post("/strategies/{strategyID}/circuit/reset", h.ResetCircuit)
	r.Get("/dead-letters", h.ListDeadLetters)
	r.Delete("/dead-letters", h.ClearDeadLetters)
}

const maxStartBody = 1 << 20

// StartRequest is the body of a start request. All fields are optional.
type StartRequest struct {
	OwnerID        string                `json:"owner_id"`
	MaxRetries     int                   `json:"max_retries"`
	RestartDelay   string                `json:"restart_delay"`
	TokenAddress   string                `json:"token_address"`
	PaperSessionID string                `json:"paper_session_id"`
	Session        *engine.SessionConfig `json:"session"`
	Vars           map[string]any        `json:"vars"`
}

func (req StartRequest) options() (orchestrator.StartOptions, error) {
	opts := orchestrator.StartOptions{
		OwnerID:        req.OwnerID,
		MaxRetries:     req.MaxRetries,
		TokenAddress:   req.TokenAddress,
		PaperSessionID: req.PaperSessionID,
		Session:        req.Session,
		Vars:           req.Vars,
	}
	if req.RestartDelay != "" {
		d, err := time.ParseDuration(req.RestartDelay)
		if err != nil {
			return opts, err
		}
		opts.RestartDelay = d
	}
	return opts, nil
}

// StartStrategy starts a new instance of a strategy.
func (h *OrchestratorHandler) StartStrategy(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxStartBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.validator.ValidateBytes(body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	opts, err := req.options()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := h.runner.Start(r.Context(), chi.URLParam(r, "strategyID"), opts)
	if err != nil {
		writeError(w, startStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"instance_id": id})
}

// ListInstances returns every instance ordered by start time.
func (h *OrchestratorHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runner.Instances())
}

// GetInstance returns one instance.
func (h *OrchestratorHandler) GetInstance(w http.ResponseWriter, r *http.Request) {
	info, ok := h.runner.Status(chi.URLParam(r, "instanceID"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("instance not found"))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// StopInstance stops a running instance. Stopping twice is not an error.
func (h *OrchestratorHandler) StopInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")
	if _, ok := h.runner.Status(id); !ok {
		writeError(w, http.StatusNotFound, errors.New("instance not found"))
		return
	}
	stopped := h.runner.Stop(id)
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

type guardsResponse struct {
	StrategyID    string                    `json:"strategy_id"`
	Circuit       orchestrator.CircuitState `json:"circuit"`
	RateWindowCnt int                       `json:"rate_window_count"`
}

// GetGuards returns the breaker state and rate window usage of a strategy.
func (h *OrchestratorHandler) GetGuards(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "strategyID")
	writeJSON(w, http.StatusOK, guardsResponse{
		StrategyID:    id,
		Circuit:       h.runner.CircuitState(id),
		RateWindowCnt: h.runner.RateWindowCount(id),
	})
}

// ResetCircuit closes a tripped breaker.
func (h *OrchestratorHandler) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	h.runner.ResetCircuitBreaker(chi.URLParam(r, "strategyID"))
	w.WriteHeader(http.StatusNoContent)
}

// ListDeadLetters returns the dead-letter queue, oldest first.
func (h *OrchestratorHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runner.DeadLetters())
}

// ClearDeadLetters empties the dead-letter queue.
func (h *OrchestratorHandler) ClearDeadLetters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": h.runner.ClearDeadLetters()})
}

func startStatus(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrStrategyNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrCapacityExceeded),
		errors.Is(err, orchestrator.ErrOwnerLimitExceeded),
		errors.Is(err, orchestrator.ErrDailyLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, orchestrator.ErrCircuitOpen), errors.Is(err, orchestrator.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, orchestrator.ErrValidation), errors.Is(err, orchestrator.ErrTooManyVars),
		errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
