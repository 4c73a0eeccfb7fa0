package logger

import (
	"context"
	"os"
	"time"

	"github.com/go-logfmt/logfmt"
)

// logfmtOutlet writes entries to an io.Writer (typically os.Stderr) using
// logfmt encoding, one line per entry.
type logfmtOutlet struct {
	w *logfmt.Encoder
}

func (o *logfmtOutlet) WriteEntry(_ context.Context, entry Entry) error {
	kvs := make([]interface{}, 0, 6+2*len(entry.Fields))
	kvs = append(kvs,
		"time", entry.Time.Format(time.RFC3339Nano),
		"level", entry.Level.String(),
		"msg", entry.Message,
	)
	for k, v := range entry.Fields {
		kvs = append(kvs, k, v)
	}
	if err := o.w.EncodeKeyvals(kvs...); err != nil {
		return err
	}
	return o.w.EndRecord()
}

// NewStderrDebugLogger returns a Logger that writes every entry at Debug
// level and above to os.Stderr in logfmt form. Useful for tests and
// stand-alone tools that embed this module.
func NewStderrDebugLogger() Logger {
	outlets := NewOutlets()
	outlets.Add(&logfmtOutlet{w: logfmt.NewEncoder(os.Stderr)}, Debug)
	return NewLogger(outlets, 5*time.Second)
}
