package service

import (
	"time"

	"gochat/model"
)

// SweepService reconciles the degraded state a non-transactional cascade
// delete can leave behind: assistant responses whose parent user message is
// gone.
type SweepService struct {
	store *model.MessageStore
}

func NewSweepService(store *model.MessageStore) *SweepService {
	return &SweepService{store: store}
}

func (s *SweepService) SweepOrphanResponses() (int64, error) {
	logger.Infof("[%s] Start scheduled task SweepOrphanResponses", "scheduled task")
	startTime := time.Now()

	removed, err := s.store.DeleteOrphanResponses()
	if err != nil {
		logger.Warnf("[%s] sweep orphan responses error, %s", "scheduled task", err)
		return 0, err
	}

	logger.Infof("[%s] Finished scheduled task SweepOrphanResponses removed %d rows cost %v",
		"scheduled task", removed, time.Since(startTime))
	return removed, nil
}
