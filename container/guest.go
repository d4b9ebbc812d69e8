package container

import (
	"context"
	"fmt"

	t_wazero "github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/morphir-dev/exthost/hostfunc"
	wzadapter "github.com/morphir-dev/exthost/wazero"
)

// memoryLimitPages caps each sandbox instance at 256 MiB of linear memory
// (4096 pages of 64 KiB), independent of host process memory.
const memoryLimitPages = 4096

// guestModule is the seam between the container's call protocol and the
// sandbox runtime. The production implementation wraps a wazero instance;
// tests substitute a fake.
type guestModule interface {
	// CallExport invokes a guest export with optional input bytes and
	// returns the bytes the export points at.
	CallExport(ctx context.Context, export string, input []byte) ([]byte, error)

	// HasExport reports whether the guest exports the named function.
	HasExport(export string) bool

	Close(ctx context.Context) error
}

// wasmGuest owns one wazero runtime and the module instantiated in it.
type wasmGuest struct {
	runtime t_wazero.Runtime
	module  api.Module
}

// instantiateGuest builds a runtime with the memory ceiling and abort-on-
// context-done behavior, installs WASI and the host bridge, and
// instantiates the module.
func instantiateGuest(ctx context.Context, wasmBytes []byte, bridge *hostfunc.Bridge) (*wasmGuest, error) {
	cfg := t_wazero.NewRuntimeConfig().
		WithMemoryLimitPages(memoryLimitPages).
		WithCloseOnContextDone(true)
	rt := t_wazero.NewRuntimeWithConfig(ctx, cfg)

	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	if err := bridge.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate host functions: %w", err)
	}

	mod, err := rt.Instantiate(ctx, wasmBytes)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate module: %w", err)
	}

	// Reactor-style modules initialize explicitly.
	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("call _initialize: %w", err)
		}
	}

	return &wasmGuest{runtime: rt, module: mod}, nil
}

func (g *wasmGuest) HasExport(export string) bool {
	return g.module.ExportedFunction(export) != nil
}

func (g *wasmGuest) CallExport(ctx context.Context, export string, input []byte) ([]byte, error) {
	fn := g.module.ExportedFunction(export)
	if fn == nil {
		return nil, fmt.Errorf("guest does not export %q", export)
	}

	var args []uint64
	if len(input) > 0 {
		packed, err := wzadapter.WritePacked(ctx, g.module, input)
		if err != nil {
			return nil, err
		}
		args = append(args, packed)
	}

	res, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	return wzadapter.ReadPacked(g.module, res[0])
}

func (g *wasmGuest) Close(ctx context.Context) error {
	return g.runtime.Close(ctx)
}
