// Package logger provides the small structured, outlet-based logger used
// throughout this module: a Logger carries a set of caller-attached fields
// and dispatches Entry values to whichever Outlets are registered for the
// entry's Level, with a bounded per-entry outlet timeout.
package logger

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// FieldError is the field name set by WithError.
const FieldError = "err"

const DefaultUserFieldCapacity = 5
const internalErrorPrefix = "hacomm/logger: "

// Logger is the interface consumers of this module depend on. NewNullLogger
// returns a Logger that discards everything, so callers never need a nil
// check.
type Logger interface {
	WithField(field string, val interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Printf(format string, args ...interface{})
}

type logger struct {
	fields        Fields
	outlets       *Outlets
	outletTimeout time.Duration

	mtx *sync.Mutex
}

var _ Logger = (*logger)(nil)

func NewLogger(outlets *Outlets, outletTimeout time.Duration) Logger {
	return &logger{
		fields:        make(Fields, DefaultUserFieldCapacity),
		outlets:       outlets,
		outletTimeout: outletTimeout,
		mtx:           &sync.Mutex{},
	}
}

func (l *logger) log(level Level, msg string) {
	l.mtx.Lock()
	entry := Entry{level, msg, time.Now(), l.fields}
	l.mtx.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), l.outletTimeout)
	defer cancel()

	outs := l.outlets.Get(level)
	ech := make(chan error, len(outs))
	for i := range outs {
		go func(outlet Outlet) {
			ech <- outlet.WriteEntry(ctx, entry)
		}(outs[i])
	}

	for fin := 0; fin < len(outs); fin++ {
		select {
		case err := <-ech:
			if err != nil {
				fmt.Fprintf(os.Stderr, "%soutlet error: %s\n", internalErrorPrefix, err)
			}
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				fmt.Fprintf(os.Stderr, "%soutlets exceeded deadline, continuing without them\n", internalErrorPrefix)
			}
		}
	}
}

func (l *logger) WithField(field string, val interface{}) Logger {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if _, ok := l.fields[field]; ok {
		fmt.Fprintf(os.Stderr, "%scaller overwrites field %q. Stack:\n%s\n", internalErrorPrefix, field, string(debug.Stack()))
	}

	child := &logger{
		fields:        make(Fields, len(l.fields)+1),
		outlets:       l.outlets,
		outletTimeout: l.outletTimeout,
		mtx:           l.mtx,
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	child.fields[field] = val
	return child
}

func (l *logger) WithFields(fields Fields) Logger {
	var ret Logger = l
	for field, value := range fields {
		ret = ret.WithField(field, value)
	}
	return ret
}

func (l *logger) WithError(err error) Logger {
	var val interface{}
	if err != nil {
		val = err.Error()
	}
	return l.WithField(FieldError, val)
}

func (l *logger) Debug(msg string) { l.log(Debug, msg) }
func (l *logger) Info(msg string)  { l.log(Info, msg) }
func (l *logger) Warn(msg string)  { l.log(Warn, msg) }
func (l *logger) Error(msg string) { l.log(Error, msg) }

func (l *logger) Printf(format string, args ...interface{}) {
	l.log(Error, fmt.Sprintf(format, args...))
}
