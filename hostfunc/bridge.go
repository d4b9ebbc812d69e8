package hostfunc

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	t_wazero "github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/morphir-dev/exthost/sandbox"
	wzadapter "github.com/morphir-dev/exthost/wazero"
)

// HostModule is the import module name guests link their host functions
// against.
const HostModule = "env"

// Exposed host function names.
const (
	FnGetWorkspaceInfo = "morphir_get_workspace_info"
	FnCacheIR          = "morphir_cache_ir"
	FnGetCachedIR      = "morphir_get_cached_ir"
	FnLog              = "morphir_log"
	FnReadFile         = "morphir_read_file"
	FnWriteFile        = "morphir_write_file"
	FnHTTPRequest      = "morphir_http_request"
)

// Bridge exposes a fixed function table into one sandbox instance. All
// data crosses the trust boundary as packed pointer/length pairs read and
// written through the runtime's memory API.
type Bridge struct {
	extensionID string
	state       *HostState
	sandbox     *sandbox.FileSandbox
	logger      *slog.Logger
	httpHandler ByteHandler
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithLogger sets the logger guest log calls are bridged to.
func WithLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// WithSandbox sets the file sandbox used by the file host functions.
func WithSandbox(s *sandbox.FileSandbox) BridgeOption {
	return func(b *Bridge) { b.sandbox = s }
}

// WithHTTP enables the outbound HTTP host function. Extensions get no
// network access unless this is set. Middlewares wrap the request
// handler in FIFO order.
func WithHTTP(httpOpts []HTTPOption, middlewares ...Middleware) BridgeOption {
	return func(b *Bridge) {
		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			var req HTTPRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return json.Marshal(HTTPResponse{
					Error: &HTTPError{Code: "INVALID_REQUEST", Message: err.Error()},
				})
			}
			return json.Marshal(PerformHTTPRequest(ctx, req, httpOpts...))
		}
		b.httpHandler = Chain(handler, middlewares...)
	}
}

// NewBridge creates a bridge for one extension sharing the given state.
func NewBridge(extensionID string, state *HostState, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		extensionID: extensionID,
		state:       state,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sandbox == nil {
		b.sandbox = sandbox.New(sandbox.ForWorkspace(state.WorkspaceRoot, state.OutputDir, ""))
	}
	return b
}

// State returns the shared host state.
func (b *Bridge) State() *HostState {
	return b.state
}

// Instantiate builds the env host module on the runtime. It must run
// before the guest module is instantiated so the imports resolve.
func (b *Bridge) Instantiate(ctx context.Context, rt t_wazero.Runtime) error {
	builder := rt.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.getWorkspaceInfo),
			nil, []api.ValueType{api.ValueTypeI64}).
		Export(FnGetWorkspaceInfo).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.cacheIR),
			[]api.ValueType{api.ValueTypeI64, api.ValueTypeI64}, nil).
		Export(FnCacheIR).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.getCachedIR),
			[]api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
		Export(FnGetCachedIR).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.log),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI64}, nil).
		Export(FnLog).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.readFile),
			[]api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
		Export(FnReadFile).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.writeFile),
			[]api.ValueType{api.ValueTypeI64, api.ValueTypeI64}, []api.ValueType{api.ValueTypeI32}).
		Export(FnWriteFile)

	if b.httpHandler != nil {
		builder = builder.
			NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(b.httpRequest),
				[]api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(FnHTTPRequest)
	}

	_, err := builder.Instantiate(ctx)
	return err
}

// httpRequest serves the guest's outbound HTTP call through the
// configured handler chain.
func (b *Bridge) httpRequest(ctx context.Context, mod api.Module, stack []uint64) {
	payload, err := wzadapter.ReadPacked(mod, stack[0])
	if err != nil {
		b.warn(ctx, FnHTTPRequest, err)
		stack[0] = 0
		return
	}
	out, err := b.httpHandler(ctx, payload)
	if err != nil {
		b.warn(ctx, FnHTTPRequest, err)
		stack[0] = 0
		return
	}
	stack[0] = b.reply(ctx, mod, FnHTTPRequest, out)
}

// getWorkspaceInfo returns the workspace paths as JSON.
func (b *Bridge) getWorkspaceInfo(ctx context.Context, mod api.Module, stack []uint64) {
	info, err := json.Marshal(b.state.WorkspaceInfo())
	if err != nil {
		stack[0] = 0
		return
	}
	stack[0] = b.reply(ctx, mod, FnGetWorkspaceInfo, info)
}

// cacheIR stores an IR document under a guest-supplied key.
func (b *Bridge) cacheIR(ctx context.Context, mod api.Module, stack []uint64) {
	key, err := wzadapter.ReadPacked(mod, stack[0])
	if err != nil {
		b.warn(ctx, FnCacheIR, err)
		return
	}
	ir, err := wzadapter.ReadPacked(mod, stack[1])
	if err != nil {
		b.warn(ctx, FnCacheIR, err)
		return
	}
	b.state.CacheIR(string(key), ir)
}

// getCachedIR looks up an IR document; a zero return means a miss.
func (b *Bridge) getCachedIR(ctx context.Context, mod api.Module, stack []uint64) {
	key, err := wzadapter.ReadPacked(mod, stack[0])
	if err != nil {
		b.warn(ctx, FnGetCachedIR, err)
		stack[0] = 0
		return
	}
	ir, ok := b.state.CachedIR(string(key))
	if !ok {
		stack[0] = 0
		return
	}
	stack[0] = b.reply(ctx, mod, FnGetCachedIR, ir)
}

// log bridges a guest log call onto the host logger.
func (b *Bridge) log(ctx context.Context, mod api.Module, stack []uint64) {
	//nolint:gosec // level is an i32 by the host function signature
	level := int32(stack[0])
	wzadapter.LogFromGuest(ctx, b.logger, mod, b.extensionID, level, stack[1])
}

// readFile reads a virtual path through the sandbox. A zero return means
// denial or failure; the reason is logged host-side only.
func (b *Bridge) readFile(ctx context.Context, mod api.Module, stack []uint64) {
	vpath, err := wzadapter.ReadPacked(mod, stack[0])
	if err != nil {
		b.warn(ctx, FnReadFile, err)
		stack[0] = 0
		return
	}
	real, err := b.sandbox.ResolveRead(string(vpath))
	if err != nil {
		b.warn(ctx, FnReadFile, err)
		stack[0] = 0
		return
	}
	data, err := os.ReadFile(real)
	if err != nil {
		b.warn(ctx, FnReadFile, err)
		stack[0] = 0
		return
	}
	stack[0] = b.reply(ctx, mod, FnReadFile, data)
}

// writeFile writes guest data to a virtual path. Returns 1 on success.
func (b *Bridge) writeFile(ctx context.Context, mod api.Module, stack []uint64) {
	vpath, err := wzadapter.ReadPacked(mod, stack[0])
	if err != nil {
		b.warn(ctx, FnWriteFile, err)
		stack[0] = 0
		return
	}
	data, err := wzadapter.ReadPacked(mod, stack[1])
	if err != nil {
		b.warn(ctx, FnWriteFile, err)
		stack[0] = 0
		return
	}
	real, err := b.sandbox.ResolveWrite(string(vpath))
	if err != nil {
		b.warn(ctx, FnWriteFile, err)
		stack[0] = 0
		return
	}
	if err := os.WriteFile(real, data, 0o644); err != nil {
		b.warn(ctx, FnWriteFile, err)
		stack[0] = 0
		return
	}
	stack[0] = 1
}

// reply copies data into guest memory and returns the packed location.
func (b *Bridge) reply(ctx context.Context, mod api.Module, fn string, data []byte) uint64 {
	packed, err := wzadapter.WritePacked(ctx, mod, data)
	if err != nil {
		b.warn(ctx, fn, err)
		return 0
	}
	return packed
}

func (b *Bridge) warn(ctx context.Context, fn string, err error) {
	b.logger.WarnContext(ctx, "host function failed",
		slog.String("extension", b.extensionID),
		slog.String("function", fn),
		slog.Any("error", err))
}
