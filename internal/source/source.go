// Package source holds the transports that feed game events into the
// dispatcher.
package source

import (
	"context"

	"github.com/glowe/dartviz/internal/dispatcher"
)

// Source types accepted in configuration.
const (
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeWebSocket = "websocket"
	TypeNone      = "none"
)

// Emitter receives decoded events. *dispatcher.Dispatcher implements it.
type Emitter interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Source produces events until ctx is cancelled.
type Source interface {
	Run(ctx context.Context) error
}
