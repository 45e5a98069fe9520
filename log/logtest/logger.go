/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"io"
	"os"
	"sync"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-resolvekit/log"
)

// syncWriter encodes every entry right away, so output is never lost when a test fails.
type syncWriter struct {
	mu      sync.Mutex
	encoder logf.Encoder
	out     io.Writer
}

//nolint:gocritic
func (w *syncWriter) WriteEntry(e logf.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var buf logf.Buffer
	if err := w.encoder.Encode(&buf, e); err != nil {
		_, _ = io.WriteString(w.out, err.Error()+"\n")
		return
	}
	_, _ = w.out.Write(buf.Data)
}

// NewLogger returns a debug-level JSON logger writing to stderr.
func NewLogger() log.FieldLogger {
	return NewLoggerWithOutput(os.Stderr)
}

// NewLoggerWithOutput returns a debug-level JSON logger writing to out.
func NewLoggerWithOutput(out io.Writer) log.FieldLogger {
	encoder := logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
	})
	return &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, &syncWriter{encoder: encoder, out: out})}
}
