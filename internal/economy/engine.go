package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "coinbot/economy"

// Observer receives one call per finished operation. outcome is "ok", a
// Reason, or "error".
type Observer interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
}

type Engine struct {
	store   ProfileStore
	catalog *Catalog
	cfg     Config
	log     *slog.Logger
	obs     Observer
	tracer  trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(e *Engine) {
		e.obs = obs
	}
}

func NewEngine(store ProfileStore, catalog *Catalog, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("economy: nil profile store")
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("economy: cooldown must not be negative, got %s", cfg.Cooldown)
	}
	if !cfg.Reward.Valid() {
		return nil, fmt.Errorf("economy: reward must be positive, got %s", cfg.Reward)
	}
	e := &Engine{
		store:   store,
		catalog: catalog,
		cfg:     cfg,
		log:     slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Shop lists the catalog in definition order.
func (e *Engine) Shop() []ShopItem {
	return e.catalog.All()
}

func (e *Engine) CheckBalance(ctx context.Context, userID string) (Amount, error) {
	op := e.begin(ctx, "balance", userID)
	p, err := e.store.GetOrCreate(op.ctx, userID)
	if err != nil {
		op.end(ReasonNone, err)
		return 0, err
	}
	op.end(ReasonNone, nil)
	return p.Balance, nil
}

func (e *Engine) Earn(ctx context.Context, userID string, now time.Time) (EarnResult, error) {
	op := e.begin(ctx, "earn", userID)
	var out EarnResult
	err := e.store.Update(op.ctx, func(tx Tx) error {
		out = EarnResult{}
		p, err := tx.Get(userID)
		if err != nil {
			return err
		}
		if p.HasEarned() {
			elapsed := now.Sub(p.LastEarnAt)
			if elapsed < 0 {
				elapsed = 0
			}
			if elapsed < e.cfg.Cooldown {
				out.Reason = ReasonCooldownActive
				out.NewBalance = p.Balance
				out.CooldownRemaining = e.cfg.Cooldown - elapsed
				return nil
			}
		}
		if p.Balance > MaxAmount-e.cfg.Reward {
			out.Reason = ReasonInvalidAmount
			out.NewBalance = p.Balance
			return nil
		}
		p.Balance += e.cfg.Reward
		if now.After(p.LastEarnAt) {
			p.LastEarnAt = now
		}
		tx.Put(userID, p)

		out.Granted = true
		out.Reward = e.cfg.Reward
		out.NewBalance = p.Balance
		return nil
	})
	op.end(out.Reason, err)
	if err != nil {
		return EarnResult{}, err
	}
	return out, nil
}

func (e *Engine) Purchase(ctx context.Context, userID, itemQuery string, now time.Time) (PurchaseResult, error) {
	op := e.begin(ctx, "purchase", userID)
	item, ok := e.catalog.FindByNameOrID(itemQuery)
	if !ok {
		op.end(ReasonItemNotFound, nil)
		return PurchaseResult{Reason: ReasonItemNotFound}, nil
	}

	var out PurchaseResult
	err := e.store.Update(op.ctx, func(tx Tx) error {
		out = PurchaseResult{Item: &item}
		p, err := tx.Get(userID)
		if err != nil {
			return err
		}
		out.Balance = p.Balance
		if p.Balance < item.Price {
			out.Reason = ReasonInsufficientFunds
			return nil
		}
		p.Balance -= item.Price
		p.Inventory = append(p.Inventory, item.ID)
		tx.Put(userID, p)

		out.OK = true
		out.Balance = p.Balance
		out.NewBalance = p.Balance
		return nil
	})
	op.end(out.Reason, err, attribute.String("item", item.ID))
	if err != nil {
		return PurchaseResult{}, err
	}
	return out, nil
}

func (e *Engine) Transfer(ctx context.Context, senderID, recipientID string, amount Amount, now time.Time) (TransferResult, error) {
	op := e.begin(ctx, "transfer", senderID)
	reject := func(r Reason) (TransferResult, error) {
		op.end(r, nil)
		return TransferResult{Reason: r, Amount: amount}, nil
	}
	switch {
	case recipientID == "":
		return reject(ReasonRecipientNotFound)
	case !amount.Valid():
		return reject(ReasonInvalidAmount)
	case recipientID == senderID:
		return reject(ReasonSelfTransfer)
	}

	var out TransferResult
	err := e.store.Update(op.ctx, func(tx Tx) error {
		out = TransferResult{Amount: amount}
		sender, err := tx.Get(senderID)
		if err != nil {
			return err
		}
		recipient, err := tx.Get(recipientID)
		if err != nil {
			return err
		}
		out.SenderBalance = sender.Balance
		out.RecipientBalance = recipient.Balance
		if sender.Balance < amount {
			out.Reason = ReasonInsufficientFunds
			return nil
		}
		if recipient.Balance > MaxAmount-amount {
			out.Reason = ReasonInvalidAmount
			return nil
		}
		sender.Balance -= amount
		recipient.Balance += amount
		tx.Put(senderID, sender)
		tx.Put(recipientID, recipient)

		out.OK = true
		out.SenderBalance = sender.Balance
		out.RecipientBalance = recipient.Balance
		return nil
	})
	op.end(out.Reason, err, attribute.String("recipient", recipientID))
	if err != nil {
		return TransferResult{}, err
	}
	return out, nil
}

// Inventory groups the user's items by id.
func (e *Engine) Inventory(ctx context.Context, userID string) (map[string]int, error) {
	op := e.begin(ctx, "inventory", userID)
	p, err := e.store.GetOrCreate(op.ctx, userID)
	if err != nil {
		op.end(ReasonNone, err)
		return nil, err
	}
	counts := make(map[string]int, len(p.Inventory))
	for _, id := range p.Inventory {
		counts[id]++
	}
	op.end(ReasonNone, nil)
	return counts, nil
}

type operation struct {
	e       *Engine
	ctx     context.Context
	span    trace.Span
	name    string
	id      string
	userID  string
	started time.Time
}

func (e *Engine) begin(ctx context.Context, name, userID string) *operation {
	ctx, span := e.tracer.Start(ctx, "economy."+name, trace.WithAttributes(attribute.String("user_id", userID)))
	return &operation{
		e:       e,
		ctx:     ctx,
		span:    span,
		name:    name,
		id:      uuid.NewString(),
		userID:  userID,
		started: time.Now(),
	}
}

func (o *operation) end(reason Reason, err error, attrs ...attribute.KeyValue) {
	elapsed := time.Since(o.started)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
		o.e.log.Error("economy operation failed", "op", o.name, "op_id", o.id, "user_id", o.userID, "err", err)
	case reason != ReasonNone:
		outcome = string(reason)
		o.e.log.Info("economy operation rejected", "op", o.name, "op_id", o.id, "user_id", o.userID, "reason", reason)
	default:
		o.e.log.Debug("economy operation committed", "op", o.name, "op_id", o.id, "user_id", o.userID, "elapsed", elapsed)
	}
	o.span.SetAttributes(append(attrs, attribute.String("outcome", outcome))...)
	o.span.End()
	if o.e.obs != nil {
		o.e.obs.ObserveOperation(o.name, outcome, elapsed)
	}
}
