package comms

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the per-recipient result of a delivery.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeBlocked   Outcome = "blocked"
)

// Observer receives delivery events, typically to update metrics.
type Observer interface {
	// RecordStored is called once per successful append.
	RecordStored(kind Kind, took time.Duration)

	// RecipientOutcome is called once per recipient.
	RecipientOutcome(kind Kind, outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) RecordStored(Kind, time.Duration) {}
func (nopObserver) RecipientOutcome(Kind, Outcome) {}

// Envelope is one send request after recipients are resolved and the body is formatted.
type Envelope struct {
	Kind       Kind
	Sender     Actor
	Recipients []Actor

	// Body is what gets stored and shown in history
	Body string

	// Text is what recipients see; Body is used when empty
	Text string
}

// Blocked pairs a recipient with the reason delivery was refused.
type Blocked struct {
	Actor  Actor
	Reason string
}

// Report is the result of one Deliver call.
type Report struct {
	Record    Record
	Delivered []Actor
	Deferred  []Actor
	Blocked   []Blocked
}

// Reached returns the recipients that were not blocked, delivered first.
func (r Report) Reached() []Actor {
	reached := make([]Actor, 0, len(r.Delivered)+len(r.Deferred))
	reached = append(reached, r.Delivered...)
	return append(reached, r.Deferred...)
}

// Dispatcher stores one record per send and fans the text out to recipients.
type Dispatcher struct {
	store    Store
	log      *zap.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithObserver sets the delivery observer.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher creates a dispatcher that appends to store.
func NewDispatcher(store Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		log:      zap.NewNop(),
		observer: nopObserver{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver appends the record for env and then attempts every recipient.
//
// The record is durable before any recipient sees the text. A failed append
// returns an error and nothing is delivered. After that, recipients are
// handled independently: a blocked or offline recipient never stops the rest.
func (d *Dispatcher) Deliver(ctx context.Context, env Envelope) (Report, error) {
	if env.Sender == nil {
		return Report{}, ErrNoSender
	}
	if len(env.Recipients) == 0 {
		return Report{}, ErrNoRecipients
	}

	rec := Record{
		ID:        d.newID(),
		Kind:      env.Kind,
		Sender:    RefOf(env.Sender),
		Receivers: make([]Ref, len(env.Recipients)),
		Body:      env.Body,
		CreatedAt: d.now().UTC(),
	}
	for i, r := range env.Recipients {
		rec.Receivers[i] = RefOf(r)
	}

	started := time.Now()
	if err := d.store.Append(ctx, &rec); err != nil {
		return Report{}, fmt.Errorf("failed to store %s from %s: %w", env.Kind, rec.Sender.Key, err)
	}
	d.observer.RecordStored(env.Kind, time.Since(started))

	text := env.Text
	if text == "" {
		text = env.Body
	}

	report := Report{Record: rec}
	for _, recipient := range env.Recipients {
		outcome := d.deliverOne(env.Sender, recipient, text)
		switch outcome {
		case OutcomeBlocked:
			report.Blocked = append(report.Blocked, Blocked{Actor: recipient, Reason: ReasonNotAllowed})
		case OutcomeDeferred:
			report.Deferred = append(report.Deferred, recipient)
		default:
			report.Delivered = append(report.Delivered, recipient)
		}
		d.observer.RecipientOutcome(env.Kind, outcome)
	}

	d.log.Debug("message dispatched",
		zap.String("kind", string(env.Kind)),
		zap.String("id", rec.ID),
		zap.Uint64("seq", rec.Seq),
		zap.String("sender", rec.Sender.Key),
		zap.Int("delivered", len(report.Delivered)),
		zap.Int("deferred", len(report.Deferred)),
		zap.Int("blocked", len(report.Blocked)),
	)

	return report, nil
}

// deliverOne checks permission, enqueues text and classifies the result.
func (d *Dispatcher) deliverOne(sender, recipient Actor, text string) Outcome {
	if !recipient.CanReceive(sender, VerbMsg) {
		return OutcomeBlocked
	}

	err := recipient.Deliver(text)
	if err != nil {
		d.log.Debug("recipient channel unavailable",
			zap.String("recipient", recipient.Key()),
			zap.Error(err),
		)
		return OutcomeDeferred
	}
	if !recipient.IsOnline() {
		return OutcomeDeferred
	}
	return OutcomeDelivered
}
