package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invoicesync/internal/config"
	"invoicesync/internal/database"
	"invoicesync/internal/domain"
	"invoicesync/internal/lexware"
	"invoicesync/internal/metrics"
	"invoicesync/internal/models"

	"github.com/rs/zerolog"
)

// LockKey guards the processing cycle across the scheduler, manual triggers and instances.
const LockKey = "invoicesync:processor"

const lockPollInterval = 50 * time.Millisecond

var (
	// ErrClaimLost means another worker claimed the task first.
	ErrClaimLost = errors.New("task was claimed by another worker")

	// ErrNotEligible is returned for completed tasks and tasks out of attempts.
	ErrNotEligible = errors.New("task is not eligible for processing")
)

// TaskError is a processing failure that has been recorded on the task.
type TaskError struct {
	TaskID   int64
	Attempts int
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d attempt %d: %v", e.TaskID, e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Processor moves queued tasks through the accounting API, one task per call.
type Processor struct {
	db          *database.DB
	store       domain.Storefront
	client      domain.AccountingClient
	settings    domain.SettingsProvider
	locker      domain.Locker
	alerter     domain.Alerter
	emailer     domain.InvoiceEmailer
	deadLetters domain.DeadLetterQueue
	policy      RetryPolicy
	wake        chan struct{}
	logger      *zerolog.Logger
}

type Option func(*Processor)

func WithAlerter(a domain.Alerter) Option {
	return func(p *Processor) { p.alerter = a }
}

func WithEmailer(e domain.InvoiceEmailer) Option {
	return func(p *Processor) { p.emailer = e }
}

func WithDeadLetters(d domain.DeadLetterQueue) Option {
	return func(p *Processor) { p.deadLetters = d }
}

func NewProcessor(
	db *database.DB,
	store domain.Storefront,
	client domain.AccountingClient,
	settings domain.SettingsProvider,
	locker domain.Locker,
	policy RetryPolicy,
	logger *zerolog.Logger,
	opts ...Option,
) *Processor {
	p := &Processor{
		db:       db,
		store:    store,
		client:   client,
		settings: settings,
		locker:   locker,
		policy:   policy.withDefaults(),
		wake:     make(chan struct{}, 1),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wake asks the scheduler to run a cycle now instead of waiting for the next tick.
func (p *Processor) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start runs the scheduler until ctx is done.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info().Dur("interval", p.policy.Interval).Msg("processor started")
	defer p.logger.Info().Msg("processor stopped")

	ticker := time.NewTicker(p.policy.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		p.tick(ctx)
	}
}

func (p *Processor) tick(ctx context.Context) {
	_, err := p.ProcessNext(ctx)
	var taskErr *TaskError
	switch {
	case err == nil, errors.Is(err, database.ErrNoTask), errors.As(err, &taskErr):
	case errors.Is(err, domain.ErrLocked), errors.Is(err, ErrClaimLost):
		p.logger.Debug().Err(err).Msg("cycle skipped")
	case ctx.Err() != nil:
		return
	default:
		p.logger.Error().Err(err).Msg("processing cycle failed")
	}
	p.reportDepth(ctx)
}

func (p *Processor) reportDepth(ctx context.Context) {
	counts, err := p.db.CountByStatus(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("queue depth unavailable")
		return
	}
	for _, st := range []models.TaskStatus{models.TaskPending, models.TaskFailed, models.TaskCompleted} {
		metrics.SetQueueDepth(string(st), counts[st])
	}
}

// ProcessNext processes the oldest eligible task. It returns database.ErrNoTask
// when the queue is idle and a *TaskError when the task failed.
func (p *Processor) ProcessNext(ctx context.Context) (*models.SyncTask, error) {
	release, err := p.locker.Acquire(ctx, LockKey, p.policy.LockTTL)
	if err != nil {
		return nil, err
	}

	res, err := func() (runResult, error) {
		defer p.release(release)

		s, err := p.settings.Snapshot(ctx)
		if err != nil {
			return runResult{}, fmt.Errorf("load settings: %w", err)
		}
		task, err := p.db.NextPending(ctx, s.MaxAttempts)
		if err != nil {
			return runResult{}, err
		}
		return p.run(ctx, s, task)
	}()
	p.sendInvoice(ctx, res)
	return res.task, err
}

// ProcessTask processes one specific task, as requested by an operator. Unlike
// the scheduler it waits up to LockWait for a running cycle to finish.
func (p *Processor) ProcessTask(ctx context.Context, taskID int64) (*models.SyncTask, error) {
	release, err := p.acquireWait(ctx)
	if err != nil {
		return nil, err
	}

	res, err := func() (runResult, error) {
		defer p.release(release)

		s, err := p.settings.Snapshot(ctx)
		if err != nil {
			return runResult{}, fmt.Errorf("load settings: %w", err)
		}
		task, err := p.db.GetTask(ctx, taskID)
		if err != nil {
			return runResult{}, err
		}
		if task.Status == models.TaskCompleted || task.Exhausted(s.MaxAttempts) {
			return runResult{task: task}, ErrNotEligible
		}
		return p.run(ctx, s, task)
	}()
	p.sendInvoice(ctx, res)
	return res.task, err
}

func (p *Processor) acquireWait(ctx context.Context) (func(context.Context) error, error) {
	deadline := time.Now().Add(p.policy.LockWait)
	for {
		release, err := p.locker.Acquire(ctx, LockKey, p.policy.LockTTL)
		if !errors.Is(err, domain.ErrLocked) || time.Now().After(deadline) {
			return release, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (p *Processor) release(release func(context.Context) error) {
	// The cycle context may already be cancelled; the lock must still go.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := release(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("release processor lock")
	}
}

// runResult is a processed task plus the order whose new invoice still has to
// be e-mailed once the processor lock is released.
type runResult struct {
	task  *models.SyncTask
	email *models.Order
}

func (p *Processor) run(ctx context.Context, s config.SyncSettings, task *models.SyncTask) (runResult, error) {
	claimed, err := p.db.ClaimAttempt(ctx, task.ID, task.Attempts)
	if err != nil {
		return runResult{}, err
	}
	if !claimed {
		return runResult{}, ErrClaimLost
	}
	task.Attempts++

	log := p.logger.With().
		Int64("task_id", task.ID).
		Int64("order_id", task.OrderID).
		Str("action", string(task.Action)).
		Int("attempt", task.Attempts).
		Logger()
	log.Debug().Msg("processing task")

	res, procErr := p.dispatch(ctx, s, task)
	if procErr != nil {
		p.fail(ctx, s, task, procErr, &log)
		return runResult{task: p.reload(ctx, task)}, &TaskError{TaskID: task.ID, Attempts: task.Attempts, Err: procErr}
	}

	if err := p.db.MarkCompleted(ctx, task.ID, res.externalID); err != nil {
		return runResult{}, err
	}
	metrics.IncProcessed(string(task.Action), "completed")
	log.Info().Str("external_id", res.externalID).Bool("noop", !res.created).Msg("task completed")

	out := runResult{task: p.reload(ctx, task)}
	if task.Action == models.ActionCreateInvoice && res.created && s.AutoSendEmail && p.emailer != nil {
		out.email = res.order
	}
	return out, nil
}

// sendInvoice e-mails a freshly created invoice. Failures are logged only.
func (p *Processor) sendInvoice(ctx context.Context, res runResult) {
	if res.email == nil {
		return
	}
	if err := p.emailer.EmailInvoice(ctx, res.email); err != nil {
		p.logger.Warn().Err(err).Int64("task_id", res.task.ID).Int64("order_id", res.email.ID).
			Msg("invoice email failed")
	}
}

func (p *Processor) reload(ctx context.Context, task *models.SyncTask) *models.SyncTask {
	fresh, err := p.db.GetTask(ctx, task.ID)
	if err != nil {
		return task
	}
	return fresh
}

func (p *Processor) fail(ctx context.Context, s config.SyncSettings, task *models.SyncTask, cause error, log *zerolog.Logger) {
	msg := cause.Error()
	kind := lexware.KindOf(cause)

	if err := p.db.MarkFailed(ctx, task.ID, msg); err != nil {
		log.Error().Err(err).Msg("mark task failed")
	}
	metrics.IncProcessed(string(task.Action), "failed")
	temporary := lexware.IsTemporary(cause)
	log.Error().Err(cause).Str("kind", string(kind)).Bool("temporary", temporary).Msg("task failed")

	title := fmt.Sprintf("Synchronisierung fehlgeschlagen: %s", task.Action)
	details := fmt.Sprintf("task_id=%d order_id=%d attempt=%d/%d kind=%s temporary=%t",
		task.ID, task.OrderID, task.Attempts, s.MaxAttempts, kind, temporary)
	if err := p.db.AddErrorLog(ctx, database.ErrorLogEntry{Title: title, Message: msg, Context: details}); err != nil {
		log.Warn().Err(err).Msg("error log write failed")
	}

	if s.NotifyOnError && p.alerter != nil {
		p.alerter.Alert(ctx, title, fmt.Sprintf("Bestellung %d: %s\n%s", task.OrderID, msg, details))
	}

	if task.Exhausted(s.MaxAttempts) {
		metrics.IncDeadLettered(string(task.Action))
		log.Warn().Msg("task out of attempts")
		if p.deadLetters != nil {
			dead := *task
			dead.Status = models.TaskFailed
			dead.ErrorMessage = &msg
			if err := p.deadLetters.PushDeadLetter(ctx, dead); err != nil {
				log.Warn().Err(err).Msg("dead letter push failed")
			}
		}
	}
}
