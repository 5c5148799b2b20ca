// Package checkout runs a terminal session's checkout: it guards against a
// double submit, derives the transaction from the saved draft, persists it and
// clears the draft only when persistence succeeded.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"bakerypos/backend/internal/billing"
	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/lock"
	"bakerypos/backend/internal/phone"
)

const DefaultTimeout = 15 * time.Second

type DraftStore interface {
	Load(ctx context.Context, session string) (domain.Draft, error)
	Save(ctx context.Context, session string, d domain.Draft) error
	Clear(ctx context.Context, session string) error
}

type Repository interface {
	AddTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	UpsertCustomer(ctx context.Context, profile domain.CustomerProfile) error
	DecrementStock(ctx context.Context, adjustments []domain.StockAdjustment) error
}

type Options struct {
	// Timeout bounds the persistence calls so a stuck store releases the session.
	Timeout     time.Duration
	PhoneRegion string
	Locker      lock.Locker
	Now         func() time.Time
}

type Orchestrator struct {
	drafts   DraftStore
	repo     Repository
	sessions *Sessions
	locker   lock.Locker
	timeout  time.Duration
	region   string
	now      func() time.Time
	logger   *log.Entry
}

func NewOrchestrator(drafts DraftStore, repo Repository, opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocalLocker()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if strings.TrimSpace(opts.PhoneRegion) == "" {
		opts.PhoneRegion = "IN"
	}
	return &Orchestrator{
		drafts:   drafts,
		repo:     repo,
		sessions: NewSessions(),
		locker:   opts.Locker,
		timeout:  opts.Timeout,
		region:   opts.PhoneRegion,
		now:      opts.Now,
		logger:   log.WithField("component", "checkout"),
	}
}

// State reports where the session's checkout is.
func (o *Orchestrator) State(session string) State {
	return o.sessions.State(session)
}

func (o *Orchestrator) lockKey(session string) string {
	return "lock:checkout:" + session
}

// obtain takes the session lock that checkout and draft edits share.
func (o *Orchestrator) obtain(ctx context.Context, session string) (lock.Lease, error) {
	lease, err := o.locker.Obtain(ctx, o.lockKey(session), 2*o.timeout)
	if errors.Is(err, lock.ErrNotObtained) {
		return nil, ErrCheckoutInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("obtain checkout lock: %w", err)
	}
	return lease, nil
}

func (o *Orchestrator) release(lease lock.Lease, session string) {
	if err := lease.Release(context.Background()); err != nil {
		o.logger.WithError(err).WithField("session", session).Warn("release checkout lock")
	}
}

// Edit applies fn to the session's draft under the checkout lock. It fails
// with ErrCheckoutInProgress while a checkout of the session is running, here
// or on another replica. A nil draft from fn clears the session.
func (o *Orchestrator) Edit(ctx context.Context, session string, fn func(domain.Draft) (*domain.Draft, error)) (domain.Draft, error) {
	if o.sessions.State(session) != StateIdle {
		return domain.Draft{}, ErrCheckoutInProgress
	}
	lease, err := o.obtain(ctx, session)
	if err != nil {
		return domain.Draft{}, err
	}
	defer o.release(lease, session)

	draft, err := o.drafts.Load(ctx, session)
	if err != nil {
		return domain.Draft{}, fmt.Errorf("load draft: %w", err)
	}
	next, err := fn(draft)
	if err != nil {
		return domain.Draft{}, err
	}
	if next == nil {
		if err := o.drafts.Clear(ctx, session); err != nil {
			return domain.Draft{}, fmt.Errorf("clear draft: %w", err)
		}
		return domain.Draft{}, nil
	}
	if err := o.drafts.Save(ctx, session, *next); err != nil {
		return domain.Draft{}, fmt.Errorf("save draft: %w", err)
	}
	return o.drafts.Load(ctx, session)
}

// Submit checks out the session's draft. Validation and persistence failures
// leave the draft as it was so the operator can retry.
func (o *Orchestrator) Submit(ctx context.Context, session string) (*domain.Transaction, error) {
	machine := o.sessions.Acquire(session)
	defer o.sessions.Done(session)
	if err := machine.Begin(); err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		machine.Finish(ok)
		machine.Release()
	}()

	lease, err := o.obtain(ctx, session)
	if err != nil {
		return nil, err
	}
	defer o.release(lease, session)

	draft, err := o.drafts.Load(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	tx, err := billing.Derive(billing.InputFromDraft(draft), o.now())
	if err != nil {
		return nil, err
	}

	persistCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	saved, err := o.repo.AddTransaction(persistCtx, tx)
	if err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}
	entry := o.logger.WithFields(log.Fields{"session": session, "transaction_id": saved.ID})

	if profile, ok := o.profileFor(saved); ok {
		if err := o.repo.UpsertCustomer(persistCtx, profile); err != nil {
			entry.WithError(err).Warn("upsert customer profile")
		}
	}
	if adjustments := StockAdjustments(saved.Items); len(adjustments) > 0 {
		if err := o.repo.DecrementStock(persistCtx, adjustments); err != nil {
			entry.WithError(err).Warn("decrement stock")
		}
	}
	if err := o.drafts.Clear(ctx, session); err != nil {
		entry.WithError(err).Warn("clear draft")
	}

	ok = true
	entry.WithFields(log.Fields{"type": saved.Type, "amount": saved.Amount}).Info("checkout completed")
	return saved, nil
}

func (o *Orchestrator) profileFor(tx *domain.Transaction) (domain.CustomerProfile, bool) {
	if tx.Customer == nil || tx.Customer.Phone == "" {
		return domain.CustomerProfile{}, false
	}
	normalized, err := phone.Normalize(tx.Customer.Phone, o.region)
	if err != nil {
		o.logger.WithField("transaction_id", tx.ID).Warn("customer phone could not be normalized")
		return domain.CustomerProfile{}, false
	}
	return domain.CustomerProfile{
		Phone:       normalized,
		Name:        tx.Customer.Name,
		Note:        tx.Customer.Note,
		Orders:      1,
		LastOrderAt: tx.Date,
	}, true
}

// StockAdjustments lists what a sale removes from tracked stock.
func StockAdjustments(items []domain.CartLine) []domain.StockAdjustment {
	adjustments := make([]domain.StockAdjustment, 0, len(items))
	for _, item := range items {
		if !item.TrackStock || item.Qty <= 0 {
			continue
		}
		adjustments = append(adjustments, domain.StockAdjustment{ItemID: item.ItemID, VariantID: item.VariantID, Qty: item.Qty})
	}
	return adjustments
}
