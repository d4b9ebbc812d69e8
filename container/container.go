// Package container owns one loaded sandboxed extension instance: it
// queries the guest's metadata at load time and exposes the JSON-RPC call
// surface over the guest's handle export.
package container

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/morphir-dev/exthost/extension/entities"
	"github.com/morphir-dev/exthost/hostfunc"
	"github.com/morphir-dev/exthost/protocol"
	"github.com/morphir-dev/exthost/validation"
)

// SDKVersion is the host-side SDK version extensions declare compatibility
// against through min_sdk_version.
const SDKVersion = "0.4.0"

// Guest exports required (or recognized) on every extension module.
const (
	ExportInfo         = "info"
	ExportHandle       = "handle"
	ExportCapabilities = "capabilities"
)

// fuelPerMillisecond approximates wazero's lack of deterministic fuel
// metering: a declared max_fuel budget is converted to a wall-clock
// deadline at this rate.
const fuelPerMillisecond = 100_000

// callJob is one queued invocation of a guest export.
type callJob struct {
	ctx     context.Context
	export  string
	input   []byte
	timeout time.Duration
	reply   chan callResult
}

type callResult struct {
	output []byte
	err    error
}

// Container wraps one loaded extension instance. The guest is not safely
// reentrant, so all export invocations flow through a single worker that
// serves queued jobs in FIFO arrival order.
type Container struct {
	id    string
	guest guestModule
	info  entities.ExtensionInfo
	caps  entities.Capabilities

	// requestID is scoped to this container's lifetime and starts at 1.
	requestID atomic.Uint64

	calls    chan callJob
	done     chan struct{}
	closeOne sync.Once
	poisoned atomic.Bool

	logger         *slog.Logger
	defaultTimeout time.Duration
	bridgeOpts     []hostfunc.BridgeOption
}

// Option configures a Container under construction.
type Option func(*Container)

// WithLogger sets the container's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Container) { c.logger = l }
}

// WithDefaultCallTimeout bounds calls for extensions that declare no
// budget of their own. Zero means unbounded.
func WithDefaultCallTimeout(d time.Duration) Option {
	return func(c *Container) { c.defaultTimeout = d }
}

// WithBridgeOptions passes options through to the host function bridge,
// such as a gatekeeper-granted sandbox or the opt-in HTTP surface.
func WithBridgeOptions(opts ...hostfunc.BridgeOption) Option {
	return func(c *Container) { c.bridgeOpts = append(c.bridgeOpts, opts...) }
}

// New reads a module file and builds a container from its bytes.
func New(ctx context.Context, id, wasmPath string, state *hostfunc.HostState, opts ...Option) (*Container, error) {
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, &entities.LoadError{ID: id, Err: err}
	}
	return FromBytes(ctx, id, wasmBytes, state, opts...)
}

// FromBytes instantiates the module inside a capped sandbox, binds the
// host function bridge, and immediately queries the guest's metadata.
// An extension that cannot produce valid info fails here, not later.
func FromBytes(ctx context.Context, id string, wasmBytes []byte, state *hostfunc.HostState, opts ...Option) (*Container, error) {
	c := &Container{
		id:     id,
		calls:  make(chan callJob),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	bridgeOpts := append([]hostfunc.BridgeOption{hostfunc.WithLogger(c.logger)}, c.bridgeOpts...)
	bridge := hostfunc.NewBridge(id, state, bridgeOpts...)
	guest, err := instantiateGuest(ctx, wasmBytes, bridge)
	if err != nil {
		return nil, &entities.LoadError{ID: id, Err: err}
	}
	c.guest = guest

	if err := c.initMetadata(ctx); err != nil {
		_ = guest.Close(ctx)
		return nil, err
	}

	go c.serve()

	c.logger.InfoContext(ctx, "extension loaded",
		slog.String("id", id),
		slog.String("name", c.info.Name),
		slog.String("version", c.info.Version))
	return c, nil
}

// initMetadata runs the load-time metadata handshake: the info export,
// schema validation, SDK compatibility, and the optional capabilities
// export. The worker is not running yet, so exports are called directly.
func (c *Container) initMetadata(ctx context.Context) error {
	raw, err := c.guest.CallExport(ctx, ExportInfo, nil)
	if err != nil {
		return &entities.InitError{ID: c.id, Err: fmt.Errorf("info export: %w", err)}
	}

	validator, err := validation.NewInfoValidator()
	if err != nil {
		return &entities.InitError{ID: c.id, Err: err}
	}
	info, err := validator.Validate(raw)
	if err != nil {
		return &entities.InitError{ID: c.id, Err: err}
	}
	c.info = info

	if err := c.checkSDKCompatibility(); err != nil {
		return &entities.InitError{ID: c.id, Err: err}
	}

	if c.guest.HasExport(ExportCapabilities) {
		rawCaps, err := c.guest.CallExport(ctx, ExportCapabilities, nil)
		if err != nil {
			return &entities.InitError{ID: c.id, Err: fmt.Errorf("capabilities export: %w", err)}
		}
		if len(rawCaps) > 0 {
			if err := json.Unmarshal(rawCaps, &c.caps); err != nil {
				return &entities.InitError{ID: c.id, Err: fmt.Errorf("decode capabilities: %w", err)}
			}
		}
	}
	return nil
}

// checkSDKCompatibility rejects extensions built against a newer host SDK.
func (c *Container) checkSDKCompatibility() error {
	if c.info.MinSDKVersion == "" {
		return nil
	}
	required, err := semver.NewVersion(c.info.MinSDKVersion)
	if err != nil {
		return fmt.Errorf("invalid min_sdk_version %q: %w", c.info.MinSDKVersion, err)
	}
	host := semver.MustParse(SDKVersion)
	if host.LessThan(required) {
		return fmt.Errorf("extension requires SDK >= %s, host has %s", required, host)
	}
	return nil
}

// ID returns the container's extension id.
func (c *Container) ID() string { return c.id }

// Info returns the guest's self-reported metadata.
func (c *Container) Info() entities.ExtensionInfo { return c.info }

// Capabilities returns the optional capability payload; the zero value
// when the guest does not export one.
func (c *Container) Capabilities() entities.Capabilities { return c.caps }

// Supports reports whether the extension advertises the capability.
func (c *Container) Supports(t entities.ExtensionType) bool {
	return c.info.HasType(t)
}

// Call invokes a JSON-RPC method on the extension. It allocates the next
// request id, serializes the envelope across the sandbox boundary, and
// decodes the response into out. Concurrent callers queue in FIFO order;
// only one call is in flight per container.
func (c *Container) Call(ctx context.Context, method string, params any, out any) error {
	id := c.requestID.Add(1)

	req, err := protocol.NewRequest(method, params, id)
	if err != nil {
		return &entities.ExecutionError{Extension: c.id, Method: method, Err: err}
	}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return &entities.ExecutionError{Extension: c.id, Method: method, Err: err}
	}

	c.logger.DebugContext(ctx, "calling extension",
		slog.String("id", c.id),
		slog.String("method", method),
		slog.Uint64("request_id", id))

	output, err := c.enqueue(ctx, ExportHandle, reqBytes, c.callBudget())
	if err != nil {
		if deadline, ok := err.(*entities.TimeoutError); ok {
			deadline.Method = method
			return deadline
		}
		return &entities.ExecutionError{Extension: c.id, Method: method, Err: err}
	}

	var resp protocol.Response
	if err := json.Unmarshal(output, &resp); err != nil {
		return fmt.Errorf("%w: extension %s: %v", entities.ErrInvalidResponse, c.id, err)
	}
	if err := resp.IntoResult(out); err != nil {
		switch err.(type) {
		case *protocol.RpcError:
			return &entities.ExecutionError{Extension: c.id, Method: method, Err: err}
		case *protocol.InvalidResponseError:
			return fmt.Errorf("%w: extension %s: %v", entities.ErrInvalidResponse, c.id, err)
		default:
			return err
		}
	}
	return nil
}

// CallRaw invokes an arbitrary guest export without JSON-RPC wrapping.
func (c *Container) CallRaw(ctx context.Context, export string, input []byte) ([]byte, error) {
	output, err := c.enqueue(ctx, export, input, c.callBudget())
	if err != nil {
		if _, ok := err.(*entities.TimeoutError); ok {
			return nil, err
		}
		return nil, &entities.ExecutionError{Extension: c.id, Method: export, Err: err}
	}
	return output, nil
}

// callBudget derives the per-call deadline from the extension's declared
// limits. Fuel budgets are approximated as wall-clock time because the
// runtime has no deterministic instruction metering.
func (c *Container) callBudget() time.Duration {
	if c.caps.MaxTimeMS > 0 {
		return time.Duration(c.caps.MaxTimeMS) * time.Millisecond
	}
	if c.caps.MaxFuel > 0 {
		ms := c.caps.MaxFuel / fuelPerMillisecond
		if ms < 10 {
			ms = 10
		}
		return time.Duration(ms) * time.Millisecond
	}
	return c.defaultTimeout
}

// enqueue hands a job to the worker and waits for its reply.
func (c *Container) enqueue(ctx context.Context, export string, input []byte, timeout time.Duration) ([]byte, error) {
	if c.poisoned.Load() {
		return nil, fmt.Errorf("instance closed after a resource-budget abort")
	}

	job := callJob{
		ctx:     ctx,
		export:  export,
		input:   input,
		timeout: timeout,
		reply:   make(chan callResult, 1),
	}

	select {
	case c.calls <- job:
	case <-c.done:
		return nil, fmt.Errorf("container closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.reply:
		return res.output, res.err
	case <-c.done:
		return nil, fmt.Errorf("container closed")
	}
}

// serve is the single worker that owns the guest instance. Serving jobs
// from one goroutine gives strict FIFO ordering and guarantees at most
// one in-flight call.
func (c *Container) serve() {
	for {
		select {
		case job := <-c.calls:
			job.reply <- c.invoke(job)
		case <-c.done:
			return
		}
	}
}

// invoke runs one job, applying the resource budget. Exceeding the budget
// aborts the instance (the runtime closes on context done), so the
// container is poisoned afterwards rather than left half-running.
func (c *Container) invoke(job callJob) callResult {
	ctx := job.ctx
	if job.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.timeout)
		defer cancel()
	}

	output, err := c.guest.CallExport(ctx, job.export, job.input)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.poisoned.Store(true)
			budgetMS := uint64(job.timeout / time.Millisecond)
			return callResult{err: &entities.TimeoutError{Extension: c.id, BudgetMS: budgetMS}}
		}
		return callResult{err: err}
	}
	return callResult{output: output}
}

// Close shuts the worker down and releases the sandbox instance.
func (c *Container) Close(ctx context.Context) error {
	var err error
	c.closeOne.Do(func() {
		close(c.done)
		err = c.guest.Close(ctx)
	})
	return err
}
