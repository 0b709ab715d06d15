package api

import (
	"context"
	"net/http"

	"github.com/okian/paycast/internal/domain/types"
)

// TrainingDependencies starts and reports training runs.
type TrainingDependencies interface {
	Train(ctx context.Context) (runID string, err error)
	TrainStatus() types.TrainingStatus
}

type trainResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// TrainingHandler handles training requests.
type TrainingHandler struct {
	deps TrainingDependencies
}

// NewTrainingHandler creates a new training handler.
func NewTrainingHandler(deps TrainingDependencies) *TrainingHandler {
	return &TrainingHandler{deps: deps}
}

// HandleTrain handles POST /train. The run continues in the background;
// poll GET /train/status for its outcome.
func (h *TrainingHandler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	const op = "api.train"
	runID, err := h.deps.Train(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, trainResponse{RunID: runID, Status: string(types.TrainingRunning)})
}

// HandleStatus handles GET /train/status.
func (h *TrainingHandler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.TrainStatus())
}
