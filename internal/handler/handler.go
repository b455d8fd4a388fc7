// Package handler implements the packet-id -> handler function registry
// (spec component I), grounded on the teacher's handleClientMessage
// switch-based dispatch, generalized into an immutable map built once at
// startup instead of a per-message type switch.
package handler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kybird/vsurv/internal/session"
)

// Func handles the body of a single packet id, given the originating
// Session. Runs on the logic thread.
type Func func(s *session.Session, body []byte) error

// Registry is an id -> Func table, filled by Register during startup wiring
// and only read afterwards.
type Registry struct {
	handlers map[uint16]Func
	logger   zerolog.Logger
}

// NewRegistry creates an empty, mutable builder.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{handlers: make(map[uint16]Func), logger: logger}
}

// Register installs fn for packet id. Intended to be called only during
// startup wiring, before the registry is shared across goroutines.
func (r *Registry) Register(id uint16, fn Func) {
	if _, exists := r.handlers[id]; exists {
		panic(fmt.Sprintf("handler already registered for packet id %d", id))
	}
	r.handlers[id] = fn
}

// Dispatch looks up and invokes the handler for id. Unknown ids are logged
// and dropped, not treated as an error the caller must branch on.
func (r *Registry) Dispatch(s *session.Session, id uint16, body []byte) {
	fn, ok := r.handlers[id]
	if !ok {
		r.logger.Warn().Uint16("packet_id", id).Msg("no handler registered, dropping")
		return
	}
	if err := fn(s, body); err != nil {
		r.logger.Warn().Err(err).Uint16("packet_id", id).Msg("handler returned error, dropping")
	}
}
