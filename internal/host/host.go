package host

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opentalon/funchost/internal/description"
	"github.com/opentalon/funchost/internal/invocation"
	"github.com/opentalon/funchost/internal/script"
)

const defaultWorkers = 8

// Resolver turns a function folder into a descriptor.
// *description.Pipeline implements it.
type Resolver interface {
	Resolve(folder description.FunctionFolderInfo) (*description.FunctionDescriptor, error)
}

type ResolverFunc func(folder description.FunctionFolderInfo) (*description.FunctionDescriptor, error)

func (f ResolverFunc) Resolve(folder description.FunctionFolderInfo) (*description.FunctionDescriptor, error) {
	return f(folder)
}

// Registrar receives registration table changes, e.g. to persist or
// mirror them.
type Registrar interface {
	Put(ctx context.Context, reg Registration) error
	Delete(ctx context.Context, name string) error
}

// Registration is one entry of the dispatcher's registration table.
// Descriptor is never modified after it is registered.
type Registration struct {
	ID         string
	Generation int
	Descriptor *description.FunctionDescriptor
	ResolvedAt time.Time
}

func (r Registration) Name() string { return r.Descriptor.Name }

// Outcome is the per-folder result of a load.
type Outcome struct {
	Function     string
	Registration *Registration
	Err          error
}

func (o Outcome) OK() bool { return o.Err == nil && o.Registration != nil }

// Host resolves function folders and keeps the registration table the
// dispatcher invokes from.
type Host struct {
	resolver   Resolver
	workers    int
	logger     *slog.Logger
	metrics    *Metrics
	registrars []Registrar
	now        func() time.Time

	loadMu sync.Mutex
	mu     sync.RWMutex
	table  map[string]Registration
}

// Option configures a Host.
type Option func(*Host)

func WithWorkers(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.workers = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

func WithRegistrars(r ...Registrar) Option {
	return func(h *Host) { h.registrars = append(h.registrars, r...) }
}

func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

func New(resolver Resolver, opts ...Option) *Host {
	h := &Host{
		resolver: resolver,
		workers:  defaultWorkers,
		logger:   slog.Default(),
		now:      time.Now,
		table:    make(map[string]Registration),
	}
	for _, o := range opts {
		o(h)
	}
	h.logger = h.logger.With("component", "host")
	return h
}

// Load resolves folders in parallel and replaces the registration table
// with the result. Failed folders are reported in their Outcome and never
// registered; a function whose folder disappeared or no longer resolves is
// unregistered. Unchanged descriptors keep their registration.
func (h *Host) Load(ctx context.Context, folders []description.FunctionFolderInfo) []Outcome {
	h.loadMu.Lock()
	defer h.loadMu.Unlock()

	outcomes := make([]Outcome, len(folders))
	descriptors := make([]*description.FunctionDescriptor, len(folders))

	var g errgroup.Group
	g.SetLimit(h.workers)
	for i, folder := range folders {
		g.Go(func() error {
			outcomes[i].Function = folder.Name
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}
			start := time.Now()
			d, err := h.resolver.Resolve(folder)
			h.metrics.observe(err, time.Since(start))
			if err != nil {
				outcomes[i].Err = err
				return nil
			}
			descriptors[i] = d
			return nil
		})
	}
	_ = g.Wait()

	// a cancelled load is incomplete; the current table stays in place
	if err := ctx.Err(); err != nil {
		h.logger.Warn("load cancelled, registrations unchanged", "error", err)
		return outcomes
	}

	puts, deletes := h.apply(outcomes, descriptors)
	h.notify(ctx, puts, deletes)

	for _, o := range outcomes {
		if o.Err != nil {
			h.logger.Warn("function not registered", "function", o.Function, "error", o.Err)
		}
	}
	return outcomes
}

func (h *Host) apply(outcomes []Outcome, descriptors []*description.FunctionDescriptor) (puts []Registration, deletes []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make(map[string]Registration, len(outcomes))
	now := h.now()
	for i := range outcomes {
		d := descriptors[i]
		if d == nil {
			continue
		}
		old, existed := h.table[d.Name]
		if existed && reflect.DeepEqual(old.Descriptor, d) {
			next[d.Name] = old
		} else {
			next[d.Name] = Registration{
				ID:         uuid.NewString(),
				Generation: old.Generation + 1,
				Descriptor: d,
				ResolvedAt: now,
			}
		}
	}
	// second pass so duplicate folder names all report the winning entry
	for i := range outcomes {
		if d := descriptors[i]; d != nil {
			reg := next[d.Name]
			outcomes[i].Registration = &reg
		}
	}

	for name, reg := range next {
		if old, ok := h.table[name]; !ok || old.ID != reg.ID {
			puts = append(puts, reg)
		}
	}
	sort.Slice(puts, func(i, j int) bool { return puts[i].Name() < puts[j].Name() })

	for name := range h.table {
		if _, ok := next[name]; !ok {
			deletes = append(deletes, name)
		}
	}
	sort.Strings(deletes)

	h.table = next
	h.metrics.setRegistered(len(next))
	return puts, deletes
}

func (h *Host) notify(ctx context.Context, puts []Registration, deletes []string) {
	for _, r := range h.registrars {
		for _, reg := range puts {
			if err := r.Put(ctx, reg); err != nil {
				h.logger.Error("registrar put failed", "function", reg.Name(), "error", err)
			}
		}
		for _, name := range deletes {
			if err := r.Delete(ctx, name); err != nil {
				h.logger.Error("registrar delete failed", "function", name, "error", err)
			}
		}
	}
	for _, reg := range puts {
		h.logger.Info("function registered",
			"function", reg.Name(),
			"generation", reg.Generation,
			"trigger", reg.Descriptor.Trigger().Type)
	}
	for _, name := range deletes {
		h.logger.Info("function unregistered", "function", name)
	}
}

func (h *Host) Lookup(name string) (Registration, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	reg, ok := h.table[name]
	return reg, ok
}

// List returns the registrations sorted by function name.
func (h *Host) List() []Registration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Registration, 0, len(h.table))
	for _, reg := range h.table {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ErrFunctionNotFound is returned by Invoke for unregistered functions.
var ErrFunctionNotFound = fmt.Errorf("function not registered")

// Invoke calls a registered function with input as its trigger payload,
// passing a logger and a fresh binder.
func (h *Host) Invoke(ctx context.Context, name, input string) (*script.Result, error) {
	reg, ok := h.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFunctionNotFound, name)
	}
	id := uuid.NewString()
	ctx = invocation.WithID(ctx, id)
	inv := script.Invocation{
		Function: name,
		Input:    input,
		Logger:   h.logger.With("function", name, "trigger", reg.Descriptor.Trigger().Name, "invocation", id),
		Binder:   script.NewBinder(),
	}
	start := time.Now()
	res, err := reg.Descriptor.Invoker.Invoke(ctx, inv)
	h.metrics.observeInvocation(err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", name, err)
	}
	return res, nil
}
