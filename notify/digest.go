package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"courier/database"
)

// DigestJobTimeout bounds one digest run.
const DigestJobTimeout = 10 * time.Minute

// DigestSource lists the recipients that have unread messages.
type DigestSource interface {
	ListUnreadDigests(ctx context.Context) ([]database.UnreadDigest, error)
}

// DigestSender queues a digest email.
type DigestSender interface {
	SendDigest(ctx context.Context, digest database.UnreadDigest) error
}

// DigestJob periodically emails every user a summary of unread messages.
type DigestJob struct {
	ctab     *crontab.Crontab
	source   DigestSource
	sender   DigestSender
	schedule string
	log      zerolog.Logger
}

func NewDigestJob(schedule string, source DigestSource, sender DigestSender, log zerolog.Logger) *DigestJob {
	return &DigestJob{
		ctab:     crontab.New(),
		source:   source,
		sender:   sender,
		schedule: schedule,
		log:      log.With().Str("component", "digest").Logger(),
	}
}

// Run schedules the job and blocks until ctx is done. An empty schedule
// disables the digest.
func (j *DigestJob) Run(ctx context.Context) error {
	defer j.ctab.Shutdown()
	if j.schedule == "" {
		j.log.Info().Msg("unread digest disabled")
		<-ctx.Done()
		return nil
	}

	if err := j.ctab.AddJob(j.schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), DigestJobTimeout)
		defer cancel()
		if _, err := j.RunOnce(jobCtx); err != nil {
			j.log.Error().Err(err).Msg("unread digest run failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule unread digest %q: %w", j.schedule, err)
	}
	j.log.Info().Str("schedule", j.schedule).Msg("unread digest scheduled")

	<-ctx.Done()
	return nil
}

// RunOnce queues one digest per recipient and returns how many were queued.
func (j *DigestJob) RunOnce(ctx context.Context) (int, error) {
	digests, err := j.source.ListUnreadDigests(ctx)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, d := range digests {
		if err := j.sender.SendDigest(ctx, d); err != nil {
			return queued, fmt.Errorf("queue digest for user %d: %w", d.RecipientID, err)
		}
		queued++
	}
	j.log.Info().Int("recipients", queued).Msg("unread digest queued")
	return queued, nil
}
