package core

import (
	"context"
	"errors"
	"fmt"

	"unitledger/internal/entropy"
	"unitledger/internal/infra/persistence/memory"
	"unitledger/internal/lineage"
	"unitledger/internal/units"
	"unitledger/pkg/domain"
)

const defaultCallsPerBlock = 256

// Operation names reported to loggers, metrics, and tracers.
const (
	OpCreate   = "create"
	OpTransfer = "transfer"
	OpBreed    = "breed"
)

// CreateOptions tune a create command.
type CreateOptions struct {
	// Stake is reserved from the caller's balance; zero skips the reservation.
	Stake domain.Balance
}

// TransferOptions tune a transfer command.
type TransferOptions struct {
	// Amount of stake moved from the caller to the recipient alongside the unit.
	Amount domain.Balance
}

// BreedOptions tune a breed command.
type BreedOptions struct {
	Stake domain.Balance
}

// Service runs the registry commands. Each command is one store transaction:
// either every KV write and the balance call land, or nothing does.
type Service struct {
	store    PersistentStore
	units    *units.Store
	lineage  *lineage.Tracker
	balances Balances
	entropy  Entropy
	events   EventSink
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	clock    Clock
}

// ServiceOption configures optional collaborators and observability hooks.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	clock     Clock
	balances  Balances
	entropy   Entropy
	events    EventSink
	startID   domain.UnitID
	walkLimit int
}

// WithLogger routes service logs to logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder observes every operation.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer opens a span per operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock overrides the clock used to time operations.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithBalances enables stake handling. Without it stake amounts are ignored.
func WithBalances(balances Balances) ServiceOption {
	return func(o *serviceOptions) { o.balances = balances }
}

// WithEntropy replaces the default crypto/rand backed randomness.
func WithEntropy(source Entropy) ServiceOption {
	return func(o *serviceOptions) {
		if source != nil {
			o.entropy = source
		}
	}
}

// WithEvents publishes committed commands to sink.
func WithEvents(sink EventSink) ServiceOption {
	return func(o *serviceOptions) { o.events = sink }
}

// WithStartID offsets the first identifier handed out on an empty store.
func WithStartID(id domain.UnitID) ServiceOption {
	return func(o *serviceOptions) { o.startID = id }
}

// WithWalkLimit bounds collection enumeration.
func WithWalkLimit(n int) ServiceOption {
	return func(o *serviceOptions) { o.walkLimit = n }
}

// NewService constructs a service over store and installs the built-in rules
// on the store's rules engine when it exposes one.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	cfg := serviceOptions{
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		clock:   ClockFunc(nil),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.entropy == nil {
		cfg.entropy = entropy.NewCrypto(defaultCallsPerBlock)
	}
	installDefaultRules(extractRulesEngine(store))

	unitOpts := []units.Option{units.WithStartID(cfg.startID)}
	if cfg.walkLimit > 0 {
		unitOpts = append(unitOpts, units.WithWalkLimit(cfg.walkLimit))
	}
	return &Service{
		store:    store,
		units:    units.NewStore(unitOpts...),
		lineage:  lineage.NewTracker(),
		balances: cfg.balances,
		entropy:  cfg.entropy,
		events:   cfg.events,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		tracer:   cfg.tracer,
		clock:    cfg.clock,
	}
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run wraps an operation with tracing, timing, metrics, and logging.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := s.clock.Now()
	err := fn(ctx)
	elapsed := s.clock.Now().Sub(started)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	span.End(err)
	switch {
	case err == nil:
		s.logger.Debug("operation succeeded", "operation", op, "duration", elapsed)
	case isRejection(err):
		s.logger.Warn("operation rejected", "operation", op, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "error", err)
	}
	return err
}

// isRejection reports errors caused by the command rather than the system.
func isRejection(err error) bool {
	var violation RuleViolationError
	if errors.As(err, &violation) {
		return true
	}
	for _, target := range []error{
		domain.ErrInvalidUnitID,
		domain.ErrNotOwner,
		domain.ErrRequireDifferentParents,
		domain.ErrCounterOverflow,
		domain.ErrInsufficientBalance,
		domain.ErrTransferFailure,
		domain.ErrInvalidAccount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) derive(ctx context.Context, caller domain.AccountID) (domain.DNA, error) {
	seed, err := s.entropy.Seed(ctx)
	if err != nil {
		return domain.DNA{}, fmt.Errorf("entropy seed: %w", err)
	}
	return DeriveDNA(seed, caller, s.entropy.CallIndex())
}

// reserve holds stake for account; it reports whether anything was reserved.
func (s *Service) reserve(ctx context.Context, account domain.AccountID, amount domain.Balance) (bool, error) {
	if amount == 0 || s.balances == nil {
		return false, nil
	}
	if err := s.balances.Reserve(ctx, account, amount); err != nil {
		return false, err
	}
	return true, nil
}

// release undoes a reservation whose transaction did not commit.
func (s *Service) release(ctx context.Context, op string, account domain.AccountID, amount domain.Balance) {
	if err := s.balances.Unreserve(ctx, account, amount); err != nil {
		s.logger.Error("stake release failed", "operation", op, "account", string(account), "amount", uint64(amount), "error", err)
	}
}

func (s *Service) publish(ctx context.Context, event domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("event publish failed", "kind", string(event.Kind), "unit_id", uint32(event.UnitID), "error", err)
	}
}

// Create mints a unit owned by caller with DNA derived from the entropy
// source. When a stake is requested it is reserved before commit; a failed
// reservation persists nothing.
func (s *Service) Create(ctx context.Context, caller domain.AccountID, opts CreateOptions) (Unit, error) {
	var created Unit
	err := s.run(ctx, OpCreate, func(ctx context.Context) error {
		if !caller.Valid() {
			return fmt.Errorf("caller: %w", domain.ErrInvalidAccount)
		}
		reserved := false
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			dna, err := s.derive(ctx, caller)
			if err != nil {
				return err
			}
			id, err := s.units.Create(tx, caller, dna)
			if err != nil {
				return err
			}
			if reserved, err = s.reserve(ctx, caller, opts.Stake); err != nil {
				return err
			}
			created = Unit{ID: id, DNA: dna}
			return nil
		})
		if err != nil {
			if reserved {
				s.release(ctx, OpCreate, caller, opts.Stake)
			}
			created = Unit{}
			return err
		}
		s.publish(ctx, domain.Created(caller, created.ID))
		return nil
	})
	return created, err
}

// Transfer moves id from caller to to. Ownership is always re-checked inside
// the transaction. Transferring to oneself moves the unit to the tail of the
// same collection.
func (s *Service) Transfer(ctx context.Context, caller, to domain.AccountID, id domain.UnitID, opts TransferOptions) error {
	return s.run(ctx, OpTransfer, func(ctx context.Context) error {
		if !caller.Valid() {
			return fmt.Errorf("caller: %w", domain.ErrInvalidAccount)
		}
		if !to.Valid() {
			return fmt.Errorf("recipient: %w", domain.ErrInvalidAccount)
		}
		moved := false
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			owner, err := s.units.OwnerOf(tx, id)
			if err != nil {
				return err
			}
			if owner != caller {
				return fmt.Errorf("unit %d: %w", id, domain.ErrNotOwner)
			}
			if err := s.units.SetOwner(tx, id, caller, to); err != nil {
				return err
			}
			if opts.Amount == 0 || s.balances == nil {
				return nil
			}
			if err := s.balances.Transfer(ctx, caller, to, opts.Amount); err != nil {
				return err
			}
			moved = true
			return nil
		})
		if err != nil {
			if moved {
				if rerr := s.balances.Transfer(ctx, to, caller, opts.Amount); rerr != nil {
					s.logger.Error("stake refund failed", "operation", OpTransfer, "from", string(to), "to", string(caller), "amount", uint64(opts.Amount), "error", rerr)
				}
			}
			return err
		}
		s.publish(ctx, domain.Transferred(caller, to, id))
		return nil
	})
}

// Breed creates a unit owned by caller whose DNA mixes the two parents bit by
// bit, and records its lineage.
func (s *Service) Breed(ctx context.Context, caller domain.AccountID, parentA, parentB domain.UnitID, opts BreedOptions) (Unit, error) {
	var child Unit
	err := s.run(ctx, OpBreed, func(ctx context.Context) error {
		if !caller.Valid() {
			return fmt.Errorf("caller: %w", domain.ErrInvalidAccount)
		}
		reserved := false
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			a, err := s.units.Get(tx, parentA)
			if err != nil {
				return err
			}
			b, err := s.units.Get(tx, parentB)
			if err != nil {
				return err
			}
			if parentA == parentB {
				return fmt.Errorf("unit %d: %w", parentA, domain.ErrRequireDifferentParents)
			}
			selector, err := s.derive(ctx, caller)
			if err != nil {
				return err
			}
			dna := CombineDNA(selector, a.DNA, b.DNA)
			id, err := s.units.Create(tx, caller, dna)
			if err != nil {
				return err
			}
			if err := s.lineage.Record(tx, id, ParentPair{A: parentA, B: parentB}); err != nil {
				return err
			}
			if reserved, err = s.reserve(ctx, caller, opts.Stake); err != nil {
				return err
			}
			child = Unit{ID: id, DNA: dna}
			return nil
		})
		if err != nil {
			if reserved {
				s.release(ctx, OpBreed, caller, opts.Stake)
			}
			child = Unit{}
			return err
		}
		s.publish(ctx, domain.Created(caller, child.ID))
		return nil
	})
	return child, err
}

func (s *Service) view(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

// Unit returns the payload and current owner of id.
func (s *Service) Unit(ctx context.Context, id domain.UnitID) (domain.OwnedUnit, error) {
	var out domain.OwnedUnit
	err := s.view(ctx, func(v TransactionView) error {
		unit, err := s.units.Get(v, id)
		if err != nil {
			return err
		}
		owner, err := s.units.OwnerOf(v, id)
		if err != nil {
			return err
		}
		out = domain.OwnedUnit{Unit: unit, Owner: owner}
		return nil
	})
	return out, err
}

// OwnerOf returns the current owner of id.
func (s *Service) OwnerOf(ctx context.Context, id domain.UnitID) (domain.AccountID, error) {
	var owner domain.AccountID
	err := s.view(ctx, func(v TransactionView) error {
		var err error
		owner, err = s.units.OwnerOf(v, id)
		return err
	})
	return owner, err
}

// UnitsOf lists owner's collection in acquisition order.
func (s *Service) UnitsOf(ctx context.Context, owner domain.AccountID) ([]domain.UnitID, error) {
	var ids []domain.UnitID
	err := s.view(ctx, func(v TransactionView) error {
		var err error
		ids, err = s.units.OwnedBy(v, owner)
		return err
	})
	return ids, err
}

// Parents returns the parent pair of id; ok is false for created units.
func (s *Service) Parents(ctx context.Context, id domain.UnitID) (ParentPair, bool, error) {
	var (
		pair ParentPair
		ok   bool
	)
	err := s.view(ctx, func(v TransactionView) error {
		exists, err := s.units.Exists(v, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("unit %d: %w", id, domain.ErrInvalidUnitID)
		}
		pair, ok, err = s.lineage.Parents(v, id)
		return err
	})
	return pair, ok, err
}

// HasChild reports whether child was bred from parent.
func (s *Service) HasChild(ctx context.Context, parent, child domain.UnitID) (bool, error) {
	var ok bool
	err := s.view(ctx, func(v TransactionView) error {
		var err error
		ok, err = s.lineage.HasChild(v, parent, child)
		return err
	})
	return ok, err
}

// AreMates reports whether a and b have been bred together, in either order.
func (s *Service) AreMates(ctx context.Context, a, b domain.UnitID) (bool, error) {
	var ok bool
	err := s.view(ctx, func(v TransactionView) error {
		var err error
		ok, err = s.lineage.AreMates(v, a, b)
		return err
	})
	return ok, err
}

// Count returns how many units exist.
func (s *Service) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.view(ctx, func(v TransactionView) error {
		var err error
		n, err = s.units.Count(v)
		return err
	})
	return n, err
}
