package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/okian/paycast/internal/domain/model"
	"github.com/okian/paycast/internal/domain/training"
	"github.com/okian/paycast/internal/domain/types"
	"github.com/okian/paycast/pkg/logger"
	"github.com/okian/paycast/pkg/metrics"
)

// Train starts a background training run on the configured corpus and
// returns its id. Only one run may be active; a concurrent call gets
// model.ErrTrainingInProgress. Inference keeps serving the previous
// bundle until the new one is swapped in.
func (s *Service) Train(ctx context.Context) (string, error) {
	c, err := s.running()
	if err != nil {
		return "", err
	}
	if !s.trainSem.TryAcquire(1) {
		return "", model.ErrTrainingInProgress
	}

	runID := uuid.NewString()
	started := time.Now().UTC()
	s.setStatus(types.TrainingStatus{
		RunID:     runID,
		State:     types.TrainingRunning,
		StartedAt: &started,
		MaxEpochs: s.trainingCfg.Epochs,
	})
	s.logger.Info(ctx, "training run accepted", logger.String("run_id", runID))

	s.trainWG.Add(1)
	go s.runTraining(c, runID)
	return runID, nil
}

func (s *Service) runTraining(c *components, runID string) {
	defer s.trainWG.Done()
	defer s.trainSem.Release(1)

	ctx := c.ctx
	log := s.logger.Named("training")
	start := time.Now()

	res, err := s.train(ctx, c, log)
	finished := time.Now().UTC()
	if err != nil {
		metrics.RecordTrainingRun(metrics.OutcomeFailed, time.Since(start).Seconds())
		stage := stageCorpus
		var tf *model.TrainingFailure
		if errors.As(err, &tf) {
			stage = tf.Stage
		}
		s.updateStatus(func(st *types.TrainingStatus) {
			st.State = types.TrainingFailed
			st.FinishedAt = &finished
			st.Stage = stage
			st.Error = err.Error()
		})
		log.Error(ctx, "training run failed",
			logger.String("run_id", runID),
			logger.String("stage", stage),
			logger.Error(err))
		return
	}

	metrics.RecordTrainingRun(metrics.OutcomeSucceeded, time.Since(start).Seconds())
	version := ""
	if snap := c.registry.Current(); snap != nil {
		version = snap.Bundle.Version
	}
	m := res.Metrics
	s.updateStatus(func(st *types.TrainingStatus) {
		st.State = types.TrainingSucceeded
		st.FinishedAt = &finished
		st.Metrics = &m
		st.ModelVersion = version
	})
	log.Info(ctx, "training run succeeded",
		logger.String("run_id", runID),
		logger.String("version", version),
		logger.Float64("mae", m.MAE),
		logger.Float64("r2", m.R2))
}

func (s *Service) train(ctx context.Context, c *components, log logger.Logger) (*training.Result, error) {
	rows, err := s.corpus(ctx)
	if err != nil {
		return nil, err
	}
	tr := training.New(
		training.WithConfig(s.trainingCfg),
		training.WithLogger(log),
		training.WithEpochHook(func(r training.EpochReport) {
			s.updateStatus(func(st *types.TrainingStatus) {
				st.Epoch = r.Epoch
				st.TrainLoss = r.TrainLoss
				st.ValLoss = r.ValLoss
				st.LearningRate = r.LearningRate
			})
		}),
	)
	return tr.Train(ctx, rows, c.publisher)
}

// TrainStatus returns a copy of the latest run's status.
func (s *Service) TrainStatus() types.TrainingStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st := s.status
	if st.Metrics != nil {
		m := *st.Metrics
		st.Metrics = &m
	}
	return st
}

func (s *Service) setStatus(st types.TrainingStatus) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

func (s *Service) updateStatus(fn func(*types.TrainingStatus)) {
	s.statusMu.Lock()
	fn(&s.status)
	s.statusMu.Unlock()
}
