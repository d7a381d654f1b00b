package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"courier/apperrors"
	"courier/config"
	"courier/database"
	"courier/metrics"
	"courier/models"
)

// UserLookup loads the users a notification is addressed to or about.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Dispatcher runs notifications in the background, at most a fixed number
// at a time. Failures are logged and counted, never returned to the caller
// whose action triggered the notification.
type Dispatcher struct {
	notifier Notifier
	users    UserLookup
	render   *Renderer
	sem      *semaphore.Weighted
	timeout  time.Duration
	enabled  bool
	log      zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher delivering through notifier.
func NewDispatcher(cfg *config.Config, notifier Notifier, users UserLookup, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		users:    users,
		render:   NewRenderer(cfg.AppName, cfg.AppURL),
		sem:      semaphore.NewWeighted(cfg.NotifyConcurrency),
		timeout:  cfg.NotifyTimeout,
		enabled:  cfg.EnableEmailNotifications,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// NewNotifier picks SendGrid when an API key is configured and falls back
// to logging otherwise.
func NewNotifier(cfg *config.Config, log zerolog.Logger) Notifier {
	if cfg.SendGridConfigured() {
		return NewSendGridNotifier(cfg)
	}
	return NewLogNotifier(log)
}

// MessageSent notifies the receiver of msg. It never blocks; when every
// delivery slot is busy the notification is dropped.
func (d *Dispatcher) MessageSent(msg models.Message) {
	d.tryDispatch(KindNewMessage, func(ctx context.Context) (*Email, error) {
		sender, err := d.users.GetUserByID(ctx, msg.SenderID)
		if err != nil {
			return nil, err
		}
		receiver, err := d.users.GetUserByID(ctx, msg.ReceiverID)
		if err != nil {
			return nil, err
		}
		return d.render.NewMessage(sender, receiver, msg.Content)
	})
}

// UserRegistered sends the welcome email.
func (d *Dispatcher) UserRegistered(user models.User) {
	d.tryDispatch(KindWelcome, func(context.Context) (*Email, error) {
		return d.render.Welcome(&user)
	})
}

// SendDigest queues a digest email, waiting for a free slot. It returns
// early only when ctx is done or the dispatcher is closed.
func (d *Dispatcher) SendDigest(ctx context.Context, digest database.UnreadDigest) error {
	if !d.enabled {
		metrics.RecordNotification(KindDigest, "disabled")
		return nil
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if !d.start() {
		d.sem.Release(1)
		return errDispatcherClosed
	}
	go d.deliver(KindDigest, func(context.Context) (*Email, error) {
		return d.render.Digest(digest)
	})
	return nil
}

var errDispatcherClosed = errors.New("dispatcher closed")

func (d *Dispatcher) tryDispatch(kind string, build func(ctx context.Context) (*Email, error)) {
	if !d.enabled {
		metrics.RecordNotification(kind, "disabled")
		return
	}
	if !d.sem.TryAcquire(1) {
		metrics.RecordNotification(kind, "dropped")
		d.log.Warn().Str("kind", kind).Msg("notification dropped: dispatcher saturated")
		return
	}
	if !d.start() {
		d.sem.Release(1)
		metrics.RecordNotification(kind, "dropped")
		return
	}
	go d.deliver(kind, build)
}

// start registers an in-flight delivery unless the dispatcher is closed.
func (d *Dispatcher) start() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	d.wg.Add(1)
	return true
}

// deliver runs with a context of its own: the request that triggered the
// notification may already be gone.
func (d *Dispatcher) deliver(kind string, build func(ctx context.Context) (*Email, error)) {
	defer d.wg.Done()
	defer d.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	email, err := build(ctx)
	if err == nil {
		err = d.notifier.Send(ctx, email)
	}

	switch {
	case err == nil:
		metrics.RecordNotification(kind, "sent")
		d.log.Info().Str("kind", kind).Str("to", email.ToEmail).Msg("notification sent")
	case errors.Is(err, ErrNotConfigured):
		metrics.RecordNotification(kind, "skipped")
	default:
		err = apperrors.NotificationFailure(err)
		metrics.RecordNotification(kind, "failed")
		d.log.Error().Err(err).Str("kind", kind).Msg("notification failed")
	}
}

// Close stops accepting notifications and waits for in-flight ones until
// ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
