// Package verify lets a registered user review and sign another user's
// unverified session logs.
package verify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"epoch/internal/logger"
	"epoch/internal/model"
)

var ErrUnknownTransaction = errors.New("unknown transaction")

type UnknownTransactionError struct {
	ID int64
}

func (e *UnknownTransactionError) Error() string {
	return fmt.Sprintf("Unknown transaction #%d!", e.ID)
}

func (e *UnknownTransactionError) Is(target error) bool { return target == ErrUnknownTransaction }

type Store interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
	ListUnverifiedLogs(ctx context.Context, userID string, from, to time.Time) ([]model.SessionLog, error)
	ApproveSessionLogs(ctx context.Context, ids []int64, verifier string) (int64, error)
}

type Workflow struct {
	store  Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Workflow)

func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }
func WithTTL(ttl time.Duration) Option      { return func(w *Workflow) { w.ttl = ttl } }

func NewWorkflow(st Store, secret string, opts ...Option) *Workflow {
	w := &Workflow{store: st, secret: []byte(secret), ttl: time.Hour, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open lists the target's unverified logs started in [from, to) as seen by
// verifier. Both users must be registered.
func (w *Workflow) Open(ctx context.Context, verifierID, targetID string, from, to time.Time) (*Pending, error) {
	if _, err := w.store.UserByID(ctx, verifierID); err != nil {
		return nil, fmt.Errorf("verifier %s: %w", verifierID, err)
	}
	if _, err := w.store.UserByID(ctx, targetID); err != nil {
		return nil, fmt.Errorf("target %s: %w", targetID, err)
	}
	logs, err := w.store.ListUnverifiedLogs(ctx, targetID, from, to)
	if err != nil {
		return nil, err
	}
	return &Pending{w: w, Verifier: verifierID, Target: targetID, From: from, To: to, logs: logs}, nil
}

// Pending is the set of logs a verifier may still sign. Ids outside the set
// are rejected without touching the store.
type Pending struct {
	w        *Workflow
	Verifier string
	Target   string
	From, To time.Time
	logs     []model.SessionLog
}

func (p *Pending) Logs() []model.SessionLog { return slices.Clone(p.logs) }

func (p *Pending) IDs() []int64 {
	ids := make([]int64, len(p.logs))
	for i, l := range p.logs {
		ids[i] = l.ID
	}
	return ids
}

func (p *Pending) Len() int { return len(p.logs) }

func (p *Pending) Sign(ctx context.Context, id int64) error {
	i := slices.IndexFunc(p.logs, func(l model.SessionLog) bool { return l.ID == id })
	if i < 0 {
		return &UnknownTransactionError{ID: id}
	}
	if _, err := p.w.store.ApproveSessionLogs(ctx, []int64{id}, p.Verifier); err != nil {
		return fmt.Errorf("sign #%d: %w", id, err)
	}
	p.logs = slices.Delete(p.logs, i, i+1)
	logger.InfoContext(ctx, "verify.signed", "log_id", id, "verifier", p.Verifier, "target", p.Target)
	return nil
}

// SignIDs signs each id in turn. Unknown ids are collected rather than
// aborting the batch; a store error stops it.
func (p *Pending) SignIDs(ctx context.Context, ids []int64) (signed, unknown []int64, err error) {
	for _, id := range ids {
		err := p.Sign(ctx, id)
		switch {
		case err == nil:
			signed = append(signed, id)
		case errors.Is(err, ErrUnknownTransaction):
			unknown = append(unknown, id)
		default:
			return signed, unknown, err
		}
	}
	return signed, unknown, nil
}

func (p *Pending) SignAll(ctx context.Context) ([]int64, error) {
	signed, _, err := p.SignIDs(ctx, p.IDs())
	return signed, err
}
