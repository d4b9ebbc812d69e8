// Package wazero adapts the wazero runtime to the extension ABI: packed
// pointer/length conversions, guest memory transfer through the runtime's
// memory API, and bridging of guest log calls onto slog.
package wazero

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// AllocateExport is the guest export the host calls to reserve linear
// memory before writing data into the sandbox.
const AllocateExport = "allocate"

// PackPtrLen packs a guest pointer and length into a single uint64 with
// the pointer in the high 32 bits.
func PackPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// UnpackPtrLen splits a packed uint64 into pointer and length.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	//nolint:gosec // WASM pointers and lengths are 32-bit
	return uint32(packed >> 32), uint32(packed)
}

// ReadPacked copies the region described by a packed pointer/length out of
// guest memory. The copy keeps the data valid after the guest reuses or
// grows its memory.
func ReadPacked(mod api.Module, packed uint64) ([]byte, error) {
	ptr, length := UnpackPtrLen(packed)
	if length == 0 {
		return nil, nil
	}
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("read guest memory at ptr=%d len=%d: out of range", ptr, length)
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// WritePacked allocates guest memory via the allocate export, writes data
// into it, and returns the packed pointer/length. The guest owns the
// allocation afterwards.
func WritePacked(ctx context.Context, mod api.Module, data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	alloc := mod.ExportedFunction(AllocateExport)
	if alloc == nil {
		return 0, fmt.Errorf("guest does not export %q", AllocateExport)
	}
	res, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("guest allocate failed: %w", err)
	}
	//nolint:gosec // WASM pointers are 32-bit
	ptr := uint32(res[0])
	if !mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("write guest memory at ptr=%d len=%d: out of range", ptr, len(data))
	}
	//nolint:gosec // WASM lengths are 32-bit
	return PackPtrLen(ptr, uint32(len(data))), nil
}
