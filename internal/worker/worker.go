// Package worker runs the background side of the library: delivering queued
// mail and syncing the staff/student roster from the HR source.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/unilib/apiserver/internal/log"
	"github.com/unilib/apiserver/internal/mail"
	"github.com/unilib/apiserver/internal/mq"
	"github.com/unilib/apiserver/types"
)

const syncTimeout = 10 * time.Minute

// RosterSyncer imports the HR roster.
type RosterSyncer interface {
	Sync(ctx context.Context) (types.ImportResult, error)
}

type Config struct {
	MailChannel  string
	SyncSchedule string
}

type Worker struct {
	cfg     Config
	backend mq.Backend
	mailer  mail.Sender
	syncer  RosterSyncer
	logger  zerolog.Logger
}

// New builds a worker. A nil backend disables the mail consumer and an empty
// schedule disables the roster sync.
func New(cfg Config, backend mq.Backend, mailer mail.Sender, syncer RosterSyncer) *Worker {
	return &Worker{
		cfg:     cfg,
		backend: backend,
		mailer:  mailer,
		syncer:  syncer,
		logger:  log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled or the mail consumer fails.
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.SyncSchedule != "" {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := c.AddFunc(w.cfg.SyncSchedule, func() { w.syncRoster(ctx) }); err != nil {
			return fmt.Errorf("invalid sync schedule %q: %w", w.cfg.SyncSchedule, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		w.logger.Info().Str("schedule", w.cfg.SyncSchedule).Msg("roster sync scheduled")
	}

	if w.backend == nil {
		w.logger.Info().Msg("no message queue configured, mail consumer disabled")
		<-ctx.Done()
		return nil
	}

	w.logger.Info().Str("channel", w.cfg.MailChannel).Msg("consuming mail queue")
	err := mail.Consume(ctx, w.backend, w.cfg.MailChannel, w.mailer)
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Worker) syncRoster(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	start := time.Now()
	result, err := w.syncer.Sync(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("roster sync failed")
		return
	}
	w.logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Dur("duration", time.Since(start)).
		Msg("roster sync finished")
}
