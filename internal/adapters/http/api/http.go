// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/internal/domain/types"
	"github.com/okian/paycast/pkg/logger"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PredictionDependencies
	CustomerDependencies
	SettlementDependencies
	TrainingDependencies
	DemoDependencies
	ModelInfoProvider
}

// ModelInfoProvider reports the served bundle.
type ModelInfoProvider interface {
	ModelInfo() types.ModelInfo
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	predictHandler    *PredictHandler
	customerHandler   *CustomerHandler
	settlementHandler *SettlementHandler
	trainingHandler   *TrainingHandler
	demoHandler       *DemoHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(deps),
		statsHandler:      NewStatsHandler(statsProvider),
		predictHandler:    NewPredictHandler(deps),
		customerHandler:   NewCustomerHandler(deps),
		settlementHandler: NewSettlementHandler(deps),
		trainingHandler:   NewTrainingHandler(deps),
		demoHandler:       NewDemoHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleMetrics, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /train", MetricsMiddleware(s.trainingHandler.HandleTrain, "train"))
	mux.HandleFunc("GET /train/status", MetricsMiddleware(s.trainingHandler.HandleStatus, "train_status"))
	mux.HandleFunc("POST /predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
	mux.HandleFunc("POST /forecast", MetricsMiddleware(s.predictHandler.HandleForecast, "forecast"))
	mux.HandleFunc("GET /customer-risk/{entity}", MetricsMiddleware(s.customerHandler.HandleRisk, "customer_risk"))
	mux.HandleFunc("GET /history/{entity}", MetricsMiddleware(s.customerHandler.HandleHistory, "history"))
	mux.HandleFunc("POST /settlements", MetricsMiddleware(s.settlementHandler.HandlePostSettlement, "settlements"))
	mux.HandleFunc("POST /demo/{entity}/setup", MetricsMiddleware(s.demoHandler.HandleSetup, "demo_setup"))
	mux.HandleFunc("POST /demo/{entity}/improve", MetricsMiddleware(s.demoHandler.HandleImprove, "demo_improve"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if e, ok := v.(errorResponse); ok {
		w.Header().Set(errorCodeHeader, e.Code)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// writeServiceError maps domain errors onto status codes: bad input is
// 400, a missing bundle or full queue 503, a running training job 409 and
// anything else 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	var (
		verr *model.ValidationError
		ferr *model.FeatureComputationError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "validation_error", Message: err.Error(), Field: verr.Field})
	case errors.As(err, &ferr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "feature_error", Message: err.Error(), Field: ferr.Field})
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, model.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "model_not_ready", err)
	case errors.Is(err, model.ErrIngestionUnavailable):
		writeError(w, http.StatusServiceUnavailable, "backpressure", err)
	case errors.Is(err, model.ErrTrainingInProgress):
		writeError(w, http.StatusConflict, "training_in_progress", err)
	default:
		logger.Get().Named("api").Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: internal error", op))
	}
}
