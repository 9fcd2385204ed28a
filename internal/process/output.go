package process

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// lineWriter forwards compiler output to slog one line at a time.
type lineWriter struct {
	log   *slog.Logger
	level slog.Level

	mu  sync.Mutex
	buf bytes.Buffer
}

func newLineWriter(log *slog.Logger, level slog.Level) *lineWriter {
	return &lineWriter{log: log, level: level}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf.Next(i+1), "\r\n"))
		if line != "" {
			w.log.Log(context.Background(), w.level, "sass", "output", line)
		}
	}
	return len(p), nil
}

func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.log.Log(context.Background(), w.level, "sass", "output", w.buf.String())
		w.buf.Reset()
	}
	return nil
}
