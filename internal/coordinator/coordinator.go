// Package coordinator runs reconciliation: it takes the lock, fetches pending
// bank messages and turns each statement into persisted match outcomes.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tuleva/camt-reconciler/internal/camtparser"
	"tuleva/camt-reconciler/internal/idempotency"
	"tuleva/camt-reconciler/internal/lock"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/matcher"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/normalizer"
	"tuleva/camt-reconciler/internal/parsererror"
	"tuleva/camt-reconciler/internal/source"
	"tuleva/camt-reconciler/internal/store"
)

// Defaults applied to zero Config values
const (
	DefaultLockName         = "camt-reconciliation"
	DefaultLeaseDuration    = 5 * time.Minute
	DefaultConcurrency      = 4
	DefaultOperationTimeout = 30 * time.Second
)

// Ledger is the persistence the coordinator needs
type Ledger interface {
	idempotency.Repository
	matcher.History
	// ClaimedContributions maps contribution ids that already have a persisted
	// MATCHED outcome to the dedup key of that outcome.
	ClaimedContributions(ctx context.Context, contributionIDs []string) (map[string]string, error)
}

// Config controls one coordinator
type Config struct {
	LockName      string
	LeaseDuration time.Duration
	// RenewInterval defaults to a third of LeaseDuration
	RenewInterval    time.Duration
	Concurrency      int
	OperationTimeout time.Duration
	Matching         matcher.Config
}

func (c Config) withDefaults() Config {
	if c.LockName == "" {
		c.LockName = DefaultLockName
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = DefaultLeaseDuration
	}
	if c.RenewInterval <= 0 {
		c.RenewInterval = c.LeaseDuration / 3
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	return c
}

// Dependencies are the collaborators of a coordinator
type Dependencies struct {
	Codec         *camtparser.Codec
	Normalizer    *normalizer.Normalizer
	Ledger        Ledger
	Contributions store.ContributionStore
	Source        source.Source
	Locks         lock.Service
	Logger        logging.Logger
}

func (d Dependencies) validate() error {
	var missing []error
	if d.Codec == nil {
		missing = append(missing, errors.New("codec is required"))
	}
	if d.Normalizer == nil {
		missing = append(missing, errors.New("normalizer is required"))
	}
	if d.Ledger == nil {
		missing = append(missing, errors.New("ledger is required"))
	}
	if d.Contributions == nil {
		missing = append(missing, errors.New("contribution store is required"))
	}
	if d.Source == nil {
		missing = append(missing, errors.New("source is required"))
	}
	if d.Locks == nil {
		missing = append(missing, errors.New("lock service is required"))
	}
	if d.Logger == nil {
		missing = append(missing, errors.New("logger is required"))
	}
	return errors.Join(missing...)
}

// Coordinator owns the reconciliation run
type Coordinator struct {
	cfg    Config
	deps   Dependencies
	guard  *idempotency.Guard
	logger logging.Logger
	now    func() time.Time

	// OnStateChange, when set, is called synchronously on every state transition
	OnStateChange func(runID string, from, to State)
}

// New creates a coordinator
func New(cfg Config, deps Dependencies) (*Coordinator, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid coordinator dependencies: %w", err)
	}
	return &Coordinator{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		guard:  idempotency.NewGuard(deps.Ledger, deps.Logger),
		logger: deps.Logger.WithField(logging.FieldComponent, "coordinator"),
		now:    time.Now,
	}, nil
}

// run is the state of one RunReconciliation call
type run struct {
	id      string
	state   State
	summary *RunSummary
	logger  logging.Logger
	claims  *matcher.ClaimSet
	matcher *matcher.Matcher
}

// statementWork carries one envelope from PROCESSING to PERSISTING
type statementWork struct {
	envelope source.Envelope
	result   StatementResult
	token    *idempotency.Token
	outcomes []models.MatchOutcome
	started  bool
	// ack is nil when the envelope must stay in the source for a later run
	ack *bool
}

func ackWith(failed bool) *bool {
	return &failed
}

// RunReconciliation performs one run. A lock held elsewhere yields a SKIPPED
// summary and a nil error. The error is non-nil only for run-level failures:
// lock service, fetch, or persistence.
func (c *Coordinator) RunReconciliation(ctx context.Context) (*RunSummary, error) {
	r := &run{
		id:     uuid.NewString(),
		state:  StateIdle,
		claims: matcher.NewClaimSet(),
	}
	r.logger = c.logger.WithField(logging.FieldRunID, r.id)
	r.summary = &RunSummary{RunID: r.id, StartedAt: c.now().UTC(), State: StateIdle}
	r.matcher = matcher.New(c.deps.Ledger, r.claims, c.cfg.Matching, r.logger)

	err := c.execute(ctx, r)

	r.summary.FinishedAt = c.now().UTC()
	r.summary.State = r.state
	if err != nil {
		r.summary.Status = RunFailed
		r.summary.Error = err.Error()
	}

	totals := r.summary.Totals()
	r.logger.Info("Reconciliation run finished",
		logging.F(logging.FieldStatus, r.summary.Status),
		logging.F(logging.FieldCount, len(r.summary.Statements)),
		logging.F("matched", totals.Matched),
		logging.F("ambiguous", totals.Ambiguous),
		logging.F("unmatched", totals.Unmatched),
		logging.F("duplicate", totals.Duplicate),
		logging.F("errored", totals.Errored),
		logging.F(logging.FieldDuration, r.summary.Duration().Milliseconds()))
	return r.summary, err
}

func (c *Coordinator) execute(ctx context.Context, r *run) (err error) {
	defer func() {
		if err != nil {
			c.transition(r, StateFailed)
		}
	}()

	c.transition(r, StateLockAcquiring)
	lease, err := c.deps.Locks.TryAcquire(ctx, c.cfg.LockName, c.cfg.LeaseDuration)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	if lease == nil {
		r.logger.Info("Lock held by another instance, skipping run",
			logging.F(logging.FieldLockName, c.cfg.LockName))
		r.summary.Status = RunSkipped
		c.transition(r, StateReleased)
		return nil
	}

	keeper := lock.StartKeeper(c.deps.Locks, *lease, c.cfg.LeaseDuration, c.cfg.RenewInterval, r.logger)
	released := false
	defer func() {
		if !released {
			c.release(ctx, r, keeper)
		}
	}()

	c.transition(r, StateFetching)
	envelopes, err := c.deps.Source.FetchPending(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	r.summary.Fetched = len(envelopes)
	r.logger.Info("Fetched pending messages", logging.F(logging.FieldCount, len(envelopes)))

	c.transition(r, StateProcessing)
	work, err := c.processAll(ctx, r, keeper, envelopes)
	if err != nil {
		c.discard(r, work)
		r.summary.Statements = results(work)
		return err
	}

	if err := keeper.Check(); err != nil {
		return c.abandon(r, work, err)
	}

	c.transition(r, StatePersisting)
	err = c.persistAll(ctx, r, keeper, work)
	r.summary.Statements = results(work)
	if err != nil {
		return err
	}

	r.summary.Status = r.summary.finalStatus()
	c.release(ctx, r, keeper)
	released = true
	c.transition(r, StateReleased)
	return nil
}

// release stops the keeper and gives the lease back. It runs even when the
// caller's context is already cancelled.
func (c *Coordinator) release(ctx context.Context, r *run, keeper *lock.Keeper) {
	keeper.Stop()
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.OperationTimeout)
	defer cancel()
	if err := c.deps.Locks.Release(releaseCtx, keeper.Lease()); err != nil {
		r.logger.Warn("Failed to release lock",
			logging.F(logging.FieldLockName, c.cfg.LockName),
			logging.F(logging.FieldError, err))
	}
}

func (c *Coordinator) transition(r *run, to State) {
	from := r.state
	if !CanTransition(from, to) {
		r.logger.Error("Invalid state transition",
			logging.F("from", from),
			logging.F(logging.FieldState, to))
		return
	}
	r.state = to
	r.summary.State = to
	r.logger.Info("Run state changed",
		logging.F("from", from),
		logging.F(logging.FieldState, to))
	if c.OnStateChange != nil {
		c.OnStateChange(r.id, from, to)
	}
}

// processAll decodes and matches envelopes on a bounded group. Dequeuing
// stops when the caller cancels, the lease is lost or a statement hits an
// infrastructure failure; statements already started always finish.
func (c *Coordinator) processAll(ctx context.Context, r *run, keeper *lock.Keeper, envelopes []source.Envelope) ([]*statementWork, error) {
	work := make([]*statementWork, len(envelopes))
	for i, env := range envelopes {
		work[i] = &statementWork{
			envelope: env,
			result: StatementResult{
				EnvelopeID: env.ID,
				MessageID:  env.MessageID,
				Status:     StatementDeferred,
			},
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	// in-flight statements must not see the caller's cancellation
	detached := context.WithoutCancel(ctx)

dequeue:
	for _, w := range work {
		if gctx.Err() != nil {
			break dequeue
		}
		if err := keeper.Check(); err != nil {
			r.logger.Error("Lock lease lost, no further statements are started",
				logging.F(logging.FieldLockName, c.cfg.LockName),
				logging.F(logging.FieldError, err))
			break dequeue
		}

		w.started = true
		g.Go(func() error {
			return c.processStatement(detached, r, w)
		})
	}

	if err := g.Wait(); err != nil {
		return work, err
	}
	if ctx.Err() != nil {
		r.logger.Warn("Run cancelled, remaining statements are left for the next run",
			logging.F(logging.FieldError, ctx.Err()))
	}
	return work, nil
}

// processStatement returns an error only for failures that must abort the run
func (c *Coordinator) processStatement(ctx context.Context, r *run, w *statementWork) error {
	logger := r.logger.WithFields(
		logging.F(logging.FieldEnvelopeID, w.envelope.ID),
		logging.F(logging.FieldMessageID, w.envelope.MessageID))

	msg, err := c.decode(w.envelope)
	if err != nil {
		c.rejectMessage(logger, w, err)
		return nil
	}
	w.result.MessageID = msg.MessageID
	w.result.Errored = len(msg.EntryErrors)
	logger = logger.WithField(logging.FieldMessageID, msg.MessageID)
	for _, entryErr := range msg.EntryErrors {
		logger.Warn("Skipping malformed entry",
			logging.F(logging.FieldEntryIndex, entryErr.EntryIndex),
			logging.F(logging.FieldError, entryErr))
	}

	hash, err := idempotency.ContentHash(msg)
	if err != nil {
		c.failStatement(logger, w, StatementFailed, err)
		return nil
	}
	w.result.ContentHash = hash

	token, err := withTimeout(ctx, c.cfg.OperationTimeout, func(opCtx context.Context) (*idempotency.Token, error) {
		return c.guard.Begin(opCtx, msg.MessageID, hash)
	})
	if err != nil {
		var already *idempotency.AlreadyProcessedError
		if errors.As(err, &already) {
			logger.Info("Statement already processed",
				logging.F(logging.FieldContentHash, hash))
			w.result.Status = StatementAlreadyProcessed
			w.ack = ackWith(false)
			return nil
		}
		if timedOut(err) {
			c.failStatement(logger, w, StatementFailed, err)
			return nil
		}
		return c.fatal(logger, w, err)
	}
	w.token = token

	candidates, err := c.candidates(ctx, logger, msg)
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			return c.fatal(logger, w, err)
		}
		// the record stays INCOMPLETE and the envelope in the source
		c.failStatement(logger, w, StatementFailed, err)
		w.token = nil
		return nil
	}

	for _, raw := range msg.Entries {
		tx := c.deps.Normalizer.Normalize(raw, msg.MessageID)
		outcome, err := withTimeout(ctx, c.cfg.OperationTimeout, func(opCtx context.Context) (models.MatchOutcome, error) {
			return r.matcher.Match(opCtx, tx, candidates)
		})
		if err != nil {
			if timedOut(err) {
				// the record stays INCOMPLETE and the envelope in the source
				c.discard(r, []*statementWork{w})
				w.token = nil
				c.failStatement(logger, w, StatementFailed, err)
				return nil
			}
			return c.fatal(logger, w, err)
		}
		w.outcomes = append(w.outcomes, outcome)
		w.result.count(outcome.Status)
	}

	logger.Debug("Statement matched",
		logging.F(logging.FieldCount, len(w.outcomes)),
		logging.F("resumed", token.Resumed))
	return nil
}

func (c *Coordinator) decode(env source.Envelope) (*models.StatementMessage, error) {
	// an unlabelled envelope is typed from its namespace by the codec
	return c.deps.Codec.Decode(env.Payload, env.Type)
}

// candidates lists the pending contributions of the statement's account minus
// those already claimed by persisted outcomes. A claimed contribution still
// pending in the store missed its markMatched call; it is marked again here.
func (c *Coordinator) candidates(ctx context.Context, logger logging.Logger, msg *models.StatementMessage) ([]models.ExpectedContribution, error) {
	pending, err := withTimeout(ctx, c.cfg.OperationTimeout, func(opCtx context.Context) ([]models.ExpectedContribution, error) {
		return c.deps.Contributions.ListPending(opCtx, store.Scope{Account: msg.AccountIBAN})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending contributions: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}
	claimed, err := withTimeout(ctx, c.cfg.OperationTimeout, func(opCtx context.Context) (map[string]string, error) {
		return c.deps.Ledger.ClaimedContributions(opCtx, ids)
	})
	if err != nil {
		if timedOut(err) {
			return nil, fmt.Errorf("failed to load claimed contributions: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	available := make([]models.ExpectedContribution, 0, len(pending))
	for _, p := range pending {
		dedupKey, ok := claimed[p.ID]
		if !ok {
			available = append(available, p)
			continue
		}
		logger.Info("Re-marking contribution matched by an earlier run",
			logging.F(logging.FieldContributionID, p.ID),
			logging.F(logging.FieldDedupKey, dedupKey))
		c.markMatched(ctx, logger, p.ID, dedupKey)
	}
	return available, nil
}

// persistAll completes every matched statement and acknowledges envelopes.
// Nothing more is written once the lease is lost or a persistence failure
// aborted the run.
func (c *Coordinator) persistAll(ctx context.Context, r *run, keeper *lock.Keeper, work []*statementWork) error {
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	detached := context.WithoutCancel(ctx)

	var (
		mu    sync.Mutex
		fatal error
	)
	abort := func(err error) (first bool) {
		mu.Lock()
		defer mu.Unlock()
		if fatal == nil {
			fatal = err
			return true
		}
		return false
	}

	for _, w := range work {
		if !w.started {
			continue
		}
		g.Go(func() error {
			mu.Lock()
			aborted := fatal != nil
			mu.Unlock()
			if aborted {
				c.deferStatement(r, w)
				return nil
			}

			if err := keeper.Check(); err != nil {
				c.deferStatement(r, w)
				if abort(err) {
					r.logger.Error("Lock lease lost, remaining statements are not persisted",
						logging.F(logging.FieldLockName, c.cfg.LockName),
						logging.F(logging.FieldError, err))
				}
				return err
			}

			if err := c.persistStatement(detached, r, w); err != nil {
				abort(err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) persistStatement(ctx context.Context, r *run, w *statementWork) error {
	logger := r.logger.WithFields(
		logging.F(logging.FieldEnvelopeID, w.envelope.ID),
		logging.F(logging.FieldMessageID, w.result.MessageID))

	if w.token != nil {
		_, err := withTimeout(ctx, c.cfg.OperationTimeout, func(opCtx context.Context) (struct{}, error) {
			return struct{}{}, c.guard.Complete(opCtx, w.token, w.outcomes...)
		})
		if err != nil {
			contentHash := w.token.ContentHash
			c.discard(r, []*statementWork{w})
			var stale *idempotency.StaleTokenError
			if errors.As(err, &stale) {
				logger.Warn("Statement or one of its contributions completed by another run, outcomes discarded",
					logging.F(logging.FieldContentHash, contentHash))
				w.result.Status = StatementStale
				return nil
			}
			if timedOut(err) {
				c.failStatement(logger, w, StatementFailed, err)
				return nil
			}
			return c.fatal(logger, w, err)
		}
		w.result.Status = StatementProcessed
		w.ack = ackWith(false)

		for _, o := range w.outcomes {
			if o.Status == models.MatchStatusMatched {
				c.markMatched(ctx, logger, o.ContributionID, o.DedupKey)
			}
		}
		logger.Info("Statement persisted",
			logging.F(logging.FieldContentHash, w.token.ContentHash),
			logging.F(logging.FieldCount, len(w.outcomes)),
			logging.F("matched", w.result.Matched),
			logging.F("ambiguous", w.result.Ambiguous),
			logging.F("unmatched", w.result.Unmatched),
			logging.F("duplicate", w.result.Duplicate))
	}

	if w.ack != nil {
		failed := *w.ack
		_, err := withTimeout(ctx, c.cfg.OperationTimeout, func(opCtx context.Context) (struct{}, error) {
			return struct{}{}, c.deps.Source.Acknowledge(opCtx, w.envelope.ID, failed)
		})
		if err != nil {
			logger.Warn("Failed to acknowledge message", logging.F(logging.FieldError, err))
		}
	}
	return nil
}

// markMatched failures are retried by the next run's claimed-contribution sync
func (c *Coordinator) markMatched(ctx context.Context, logger logging.Logger, contributionID, dedupKey string) {
	_, err := withTimeout(ctx, c.cfg.OperationTimeout, func(opCtx context.Context) (struct{}, error) {
		return struct{}{}, c.deps.Contributions.MarkMatched(opCtx, contributionID, dedupKey)
	})
	if err != nil {
		logger.Warn("Failed to mark contribution as matched",
			logging.F(logging.FieldContributionID, contributionID),
			logging.F(logging.FieldDedupKey, dedupKey),
			logging.F(logging.FieldError, err))
	}
}

// discard drops unpersisted outcomes and returns their claims to the run
func (c *Coordinator) discard(r *run, work []*statementWork) {
	for _, w := range work {
		if w == nil || len(w.outcomes) == 0 {
			continue
		}
		keys := make([]string, len(w.outcomes))
		for i, o := range w.outcomes {
			keys[i] = o.DedupKey
		}
		r.claims.Release(keys...)
		w.outcomes = nil
		w.token = nil
		w.result.clearCounts()
	}
}

// abandon ends a run whose lease was lost after matching. No outcome is
// persisted and every envelope stays in the source.
func (c *Coordinator) abandon(r *run, work []*statementWork, err error) error {
	r.logger.Error("Lock lease lost, matched outcomes are not persisted",
		logging.F(logging.FieldLockName, c.cfg.LockName),
		logging.F(logging.FieldError, err))
	for _, w := range work {
		c.deferStatement(r, w)
	}
	r.summary.Statements = results(work)
	return err
}

// deferStatement leaves a statement for a later run: matched outcomes are
// dropped and the envelope is not acknowledged.
func (c *Coordinator) deferStatement(r *run, w *statementWork) {
	if w.token != nil {
		c.discard(r, []*statementWork{w})
		w.result.Status = StatementDeferred
	}
	w.ack = nil
}

// rejectMessage records a message that cannot be decoded. Unsupported versions
// are raised as operational alerts.
func (c *Coordinator) rejectMessage(logger logging.Logger, w *statementWork, err error) {
	var unsupported *parsererror.UnsupportedMessageVersionError
	if errors.As(err, &unsupported) {
		logger.Error("Unsupported message version",
			logging.F(logging.FieldAlert, true),
			logging.F("version", unsupported.Version),
			logging.F(logging.FieldError, err))
		w.result.Status = StatementUnsupported
		w.result.Error = err.Error()
		w.ack = ackWith(true)
		return
	}

	var malformed *parsererror.MalformedMessageError
	if !errors.As(err, &malformed) {
		err = &parsererror.MalformedMessageError{MessageID: w.envelope.MessageID, Reason: "undecodable payload", Err: err}
	}
	logger.Error("Malformed message skipped", logging.F(logging.FieldError, err))
	w.result.Status = StatementMalformed
	w.result.Error = err.Error()
	w.ack = ackWith(true)
}

func (c *Coordinator) failStatement(logger logging.Logger, w *statementWork, status StatementStatus, err error) {
	logger.Error("Statement failed", logging.F(logging.FieldError, err))
	w.result.Status = status
	w.result.Error = err.Error()
}

func (c *Coordinator) fatal(logger logging.Logger, w *statementWork, err error) error {
	if !errors.Is(err, ErrPersistence) {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	c.failStatement(logger, w, StatementFailed, err)
	return err
}

// withTimeout bounds one collaborator call. An error returned after the
// deadline passed wraps context.DeadlineExceeded even when the collaborator
// reported it differently.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(opCtx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return v, err
}

// timedOut reports a per-call deadline. Statements run on a context without
// cancellation, so the deadline is always the OperationTimeout of one call.
func timedOut(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func results(work []*statementWork) []StatementResult {
	out := make([]StatementResult, len(work))
	for i, w := range work {
		out[i] = w.result
	}
	return out
}
