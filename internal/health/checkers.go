package health

import (
	"context"
	"fmt"

	"github.com/MrWong99/parley/pkg/connection"
)

// ConnectionSource is the part of *connection.Manager readiness looks at.
type ConnectionSource interface {
	State() connection.State
	Attempts() int
	Exhausted() bool
}

// ConnectionChecker reports ready only while the backend link is open.
func ConnectionChecker(src ConnectionSource) Checker {
	return Checker{
		Name: "connection",
		Check: func(context.Context) error {
			switch st := src.State(); {
			case st == connection.StateOpen:
				return nil
			case src.Exhausted():
				return fmt.Errorf("reconnect gave up after %d attempts", src.Attempts())
			case st == connection.StateReconnecting:
				return fmt.Errorf("reconnecting (attempt %d)", src.Attempts())
			default:
				return fmt.Errorf("state %s", st)
			}
		},
	}
}
