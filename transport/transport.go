// Package transport defines the pool's connection-creation contract: a
// Wire is whatever a pooled context's channel needs to support, and a
// Connecter knows how to dial a fresh one.
package transport

import (
	"context"
	"net"

	"github.com/gravitydb/hacomm/logger"
)

// Wire is the network connection type pooled connection contexts wrap.
// net.Conn already satisfies it; this alias exists so higher layers
// depend on transport, not directly on net.
type Wire = net.Conn

// Connecter dials a fresh Wire to the configured peer. Implementations
// are expected to apply their own connect timeout; the pool additionally
// bounds the call with its own configured timeout as a backstop.
type Connecter interface {
	Connect(ctx context.Context) (Wire, error)
}

type contextKey int

const contextKeyLog contextKey = 0

type Logger = logger.Logger

// WithLogger attaches log to ctx for the duration of one connect/request.
func WithLogger(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, contextKeyLog, log)
}

// GetLogger recovers the logger attached by WithLogger, or a null logger
// if none was attached.
func GetLogger(ctx context.Context) Logger {
	if log, ok := ctx.Value(contextKeyLog).(Logger); ok {
		return log
	}
	return logger.NewNullLogger()
}
