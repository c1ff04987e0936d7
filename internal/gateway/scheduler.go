package gateway

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// job is a named unit of scheduled work, mirroring the teacher's
// scheduler.Job interface. A failed run is logged and not retried; the job
// runs again at its next scheduled firing.
type job interface {
	Run() error
	Name() string
}

// scheduler wraps robfig/cron, logging job outcomes through zerolog the
// same way the teacher's scheduler package does.
type scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func newScheduler(log zerolog.Logger) *scheduler {
	return &scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *scheduler) start() { s.cron.Start() }

func (s *scheduler) stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *scheduler) addJob(spec string, j job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := j.Run(); err != nil {
			s.log.Error().Err(err).Str("job", j.Name()).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", j.Name()).Msg("job completed")
	})
	return err
}

// checkpointJob periodically exports the orchestrator's live state to disk
// and caches the latest snapshot in Redis.
type checkpointJob struct {
	srv *Server
}

func (j *checkpointJob) Name() string { return "checkpoint-export" }

func (j *checkpointJob) Run() error {
	return j.srv.exportCheckpoint()
}
