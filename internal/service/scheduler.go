package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// cronParser accepts five-field expressions, an optional leading seconds
// field, and descriptors such as @daily.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler reruns the ABC classification on a cron expression.
type Scheduler struct {
	cron           *cron.Cron
	classification *ClassificationService
	spec           string
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewScheduler validates spec and registers the classification job.
func NewScheduler(classification *ClassificationService, spec string) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:           cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		classification: classification,
		spec:           spec,
		ctx:            ctx,
		cancel:         cancel,
	}

	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid reclassify schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	log.Info().Str("schedule", s.spec).Msg("starting classification scheduler")
	s.cron.Start()
}

// Stop cancels a running job and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Info().Msg("classification scheduler stopped")
}

func (s *Scheduler) runOnce() {
	if _, err := s.classification.Run(s.ctx); err != nil {
		log.Error().Err(err).Msg("scheduled classification failed")
	}
}
