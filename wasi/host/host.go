// Package host exposes a proxy handler to WebAssembly guests as the
// "env" host module.
//
// The guest calls sqlite_host_handler(ptr, len) with a JSON request in its
// memory. The response is copied into a buffer obtained from the guest's
// alloc_bytes export, which returns handle<<32 | ptr. sqlite_host_handler
// returns the buffer handle, with bit 32 set when the buffer holds an error
// message instead of a response. The guest frees the buffer with free_bytes.
package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const (
	ModuleName   = "env"
	HandlerFunc  = "sqlite_host_handler"
	AllocFunc    = "alloc_bytes"
	FreeFunc     = "free_bytes"
	ErrorFlag    = uint64(1) << 32
	emptyMessage = "empty response"
)

// Handler executes one proxy request, as sqlproxy/host.SQLHost does.
type Handler interface {
	HandleRequest(requestPayload []byte) ([]byte, error)
}

// Config configures the host module.
type Config struct {
	Handler Handler
	Logger  *slog.Logger
}

type module struct {
	handler Handler
	logger  *slog.Logger
}

// Instantiate registers the env module on r. It must run before any guest
// importing it is instantiated.
func Instantiate(ctx context.Context, r wazero.Runtime, cfg Config) (api.Module, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("wasi host: handler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &module{handler: cfg.Handler, logger: logger}
	m, err := r.NewHostModuleBuilder(ModuleName).
		NewFunctionBuilder().WithFunc(h.sqliteHostHandler).Export(HandlerFunc).
		Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("wasi host: instantiate %s module: %w", ModuleName, err)
	}
	return m, nil
}

func readBytes(m api.Module, offset, byteCount uint32) ([]byte, error) {
	buf, ok := m.Memory().Read(offset, byteCount)
	if !ok {
		return nil, fmt.Errorf("Memory.Read(%d, %d) out of range", offset, byteCount)
	}
	// Read returns a view of guest memory; copy before the guest runs again.
	return append([]byte(nil), buf...), nil
}

// writeBytes copies data into a guest buffer and returns its handle.
func writeBytes(ctx context.Context, m api.Module, data []byte) (uint32, error) {
	alloc := m.ExportedFunction(AllocFunc)
	if alloc == nil {
		return 0, fmt.Errorf("guest does not export %s", AllocFunc)
	}
	result, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%s(%d): %w", AllocFunc, len(data), err)
	}
	handle := uint32(result[0] >> 32)
	ptr := uint32(result[0])
	if !m.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("Memory.Write(%d, %d) out of range", ptr, len(data))
	}
	return handle, nil
}

func (h *module) sqliteHostHandler(ctx context.Context, m api.Module, reqOffset, reqByteCount uint32) uint64 {
	request, err := readBytes(m, reqOffset, reqByteCount)
	if err != nil {
		panic(err)
	}

	response, err := h.handler.HandleRequest(request)
	flag := uint64(0)
	if err != nil {
		h.logger.Error("Error handling sqlite request", "error", err)
		response, flag = []byte(err.Error()), ErrorFlag
	} else if len(response) == 0 {
		response, flag = []byte(emptyMessage), ErrorFlag
	}

	handle, err := writeBytes(ctx, m, response)
	if err != nil {
		// Panics surface as an error from the guest's call into the host.
		panic(err)
	}
	return uint64(handle) | flag
}
