package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
	"github.com/roach88/kelsen/internal/store"
)

// DefaultMaxSteps is the default number of nested calls one top-level call
// may issue.
const DefaultMaxSteps = 64

// Request is one externally issued call.
type Request struct {
	// Flow correlates the call's records. Empty means a fresh token.
	Flow string

	Caller ir.Principal
	Target ir.Principal
	Action string
	Args   ir.Object

	// At is the caller-supplied unix time. Zero means "same as the last
	// call"; earlier times are clamped forward.
	At int64
}

// Outcome is what applying a Request produced. Err is the governance
// failure, if any; the completion records it either way.
type Outcome struct {
	Record ir.Record
	Nested []ir.Record
	Err    error
}

// Result returns the completion result of the top-level call.
func (o Outcome) Result() ir.Object {
	return o.Record.Completion.Result
}

// Records returns the top-level record followed by its nested calls.
func (o Outcome) Records() []ir.Record {
	out := make([]ir.Record, 0, 1+len(o.Nested))
	out = append(out, o.Record)
	return append(out, o.Nested...)
}

// Engine is the single writer over a World.
//
// Apply is serialized by a mutex and may be called from any goroutine.
// Run offers the same thing as a queue: Enqueue from anywhere, one Run
// goroutine drains in FIFO order.
//
// A journal write failure stops the engine. Memory already holds the
// effects of the unjournaled call, so every later call is refused.
type Engine struct {
	mu       sync.Mutex
	world    *World
	store    *store.Store
	clock    *Clock
	time     timeline
	flowGen  FlowTokenGenerator
	logger   *slog.Logger
	maxSteps int
	failed   error

	queue *requestQueue
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSteps sets the nested call quota per top-level call. Zero forbids
// nested calls; negative values are ignored.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Engine) {
		if maxSteps >= 0 {
			e.maxSteps = maxSteps
		}
	}
}

// WithFlowGenerator replaces the UUIDv7 flow token generator.
func WithFlowGenerator(gen FlowTokenGenerator) Option {
	return func(e *Engine) {
		e.flowGen = gen
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an in-memory engine over an empty world owned by owner.
// Nothing is journaled; use Open for a durable engine.
func New(owner ir.Principal, opts ...Option) *Engine {
	e := &Engine{
		world:    NewWorld(owner),
		clock:    NewClock(),
		flowGen:  UUIDv7Generator{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxSteps: DefaultMaxSteps,
		queue:    newRequestQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// World returns the engine's world. Callers must not mutate it, and reads
// race with concurrent Apply calls; use View for a consistent read.
func (e *Engine) World() *World {
	return e.world
}

// View runs fn with the engine locked.
func (e *Engine) View(fn func(w *World) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.world)
}

// Seq returns the last issued sequence number.
func (e *Engine) Seq() int64 {
	return e.clock.Current()
}

// Now returns the latest call time the engine has seen.
func (e *Engine) Now() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.time.Now()
}

// Owner returns the world owner.
func (e *Engine) Owner() ir.Principal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Owner()
}

// RegistryAddress returns the address of the world's factory registry.
func (e *Engine) RegistryAddress() ir.Principal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Registry().Address()
}

// NewFlow generates a new flow token.
func (e *Engine) NewFlow() string {
	return e.flowGen.Generate()
}

// Apply executes one call and journals it together with its nested calls.
//
// Governance failures are reported in Outcome.Err and journaled. The
// returned error is reserved for faults: unknown actions, a cancelled
// context, journal failures and a stopped engine.
func (e *Engine) Apply(ctx context.Context, req Request) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(ctx, req, true)
}

func (e *Engine) apply(ctx context.Context, req Request, journal bool) (Outcome, error) {
	if e.failed != nil {
		return Outcome{}, newStoppedError(e.failed)
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	h, ok := handlers[req.Action]
	if !ok {
		return Outcome{}, NewUnknownActionError(req.Action)
	}

	flow := req.Flow
	if flow == "" {
		flow = e.flowGen.Generate()
	}
	args := req.Args.Clone()
	if args == nil {
		args = ir.Object{}
	}
	inv, err := e.stamp(ir.Invocation{
		FlowToken: flow,
		Caller:    req.Caller,
		Target:    req.Target,
		Action:    req.Action,
		Args:      args,
		At:        e.time.stamp(req.At),
	})
	if err != nil {
		return Outcome{}, err
	}

	c := &call{engine: e, inv: inv, quota: NewQuotaEnforcer(e.maxSteps)}
	result, callErr := h(c, inv)
	rec, err := e.complete(inv, result, callErr)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Record: rec, Nested: c.records, Err: callErr}

	if journal && e.store != nil {
		if err := e.store.WriteBatch(ctx, out.Records()); err != nil {
			e.failed = err
			e.logger.Error("journal write failed, engine stopped",
				"flow_token", flow,
				"seq", inv.Seq,
				"action", inv.Action,
				"error", err,
			)
			return Outcome{}, NewJournalError(flow, err)
		}
	}

	e.logger.Info("call applied",
		"flow_token", flow,
		"seq", inv.Seq,
		"action", inv.Action,
		"caller", inv.Caller.Hex(),
		"target", inv.Target.Hex(),
		"output_case", rec.Completion.OutputCase,
		"nested", len(c.records),
	)
	return out, nil
}

// stamp assigns the next seq and the content id. The clock only advances
// once the id is known, so a rejected invocation leaves no gap.
func (e *Engine) stamp(inv ir.Invocation) (ir.Invocation, error) {
	inv.Seq = e.clock.Current() + 1
	id, err := ir.InvocationID(inv)
	if err != nil {
		return ir.Invocation{}, fmt.Errorf("invocation %s: %w", inv.Action, err)
	}
	inv.ID = id
	e.clock.Next()
	return inv, nil
}

// complete builds the completion for inv.
func (e *Engine) complete(inv ir.Invocation, result ir.Object, callErr error) (ir.Record, error) {
	outputCase := ir.CaseSuccess
	if callErr != nil {
		outputCase, result = failure(callErr)
	}
	if result == nil {
		result = ir.Object{}
	}
	seq := e.clock.Current() + 1
	id, err := ir.CompletionID(inv.ID, outputCase, result, seq)
	if err != nil {
		return ir.Record{}, fmt.Errorf("completion of %s: %w", inv.ID, err)
	}
	e.clock.Next()
	return ir.Record{
		Invocation: inv,
		Completion: ir.Completion{
			ID:           id,
			InvocationID: inv.ID,
			OutputCase:   outputCase,
			Result:       result,
			Seq:          seq,
		},
	}, nil
}

// failure maps a governance error to its output case and result object.
func failure(err error) (string, ir.Object) {
	result := ir.Object{"message": ir.String(err.Error())}
	if code, ok := ir.CodeOf(err); ok {
		return string(code), result
	}
	if IsStepsExceededError(err) {
		return string(ErrCodeQuotaExceeded), result
	}
	return "ERROR", result
}

// call is the state of one top-level call in flight.
type call struct {
	engine  *Engine
	inv     ir.Invocation
	quota   *QuotaEnforcer
	records []ir.Record
}

func (c *call) world() *World { return c.engine.world }

func (c *call) directory() directory {
	return directory{world: c.engine.world, call: c}
}

// nested applies a procedure's organ mutation as a child invocation.
func (c *call) nested(caller ir.Principal, m organ.Mutation) (int, error) {
	e := c.engine
	if err := c.quota.Check(c.inv.FlowToken); err != nil {
		e.logger.Warn("max steps quota exceeded",
			"flow_token", c.inv.FlowToken,
			"steps", c.quota.Current(),
			"limit", c.quota.MaxSteps(),
		)
		return 0, err
	}

	inv, err := e.stamp(ir.Invocation{
		ParentID:  c.inv.ID,
		FlowToken: c.inv.FlowToken,
		Caller:    caller,
		Target:    m.Target,
		Action:    m.Kind.Action(),
		Args:      m.Args(),
		At:        c.inv.At,
	})
	if err != nil {
		return 0, err
	}

	index, callErr := c.world().mutate(caller, m)
	var result ir.Object
	if callErr == nil {
		result = indexResult(index)
	}
	rec, err := e.complete(inv, result, callErr)
	if err != nil {
		return 0, err
	}
	c.records = append(c.records, rec)

	e.logger.Debug("nested call",
		"flow_token", inv.FlowToken,
		"seq", inv.Seq,
		"action", inv.Action,
		"caller", caller.Hex(),
		"target", inv.Target.Hex(),
		"output_case", rec.Completion.OutputCase,
	)
	return index, callErr
}
