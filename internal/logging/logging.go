// Package logging wires slog for the CLI: colored human output on the terminal
// and, when asked for, a plain text copy in a log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/modsync/internal/utils"
)

const timeFormat = "15:04:05.000"

type Options struct {
	Level   slog.Level
	LogFile string
	NoColor bool
	// RunID tags every file line so runs appended to one log can be told apart.
	RunID string
}

// Setup installs the default logger and returns a func that flushes and closes
// the log file, if any.
func Setup(stdout *os.File, opts Options) (func() error, error) {
	noColor := opts.NoColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(stdout.Fd())
	handlers := []slog.Handler{newConsoleHandler(stdout, opts.Level, noColor)}

	closer := func() error { return nil }
	if opts.LogFile != "" {
		if err := utils.EnsureParent(opts.LogFile); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		file, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}

		interceptor := NewLineInterceptor(file)
		fileHandler := newFileHandler(interceptor, opts.Level)
		if opts.RunID != "" {
			fileHandler = fileHandler.WithAttrs([]slog.Attr{slog.String("run", opts.RunID)})
		}
		handlers = append(handlers, fileHandler)
		closer = func() error {
			flushErr := interceptor.Close()
			if err := file.Close(); err != nil {
				return err
			}
			return flushErr
		}
	}

	slog.SetDefault(slog.New(NewMultiHandler(handlers...)))
	return closer, nil
}

func newConsoleHandler(w io.Writer, level slog.Level, noColor bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: timeFormat,
		NoColor:    noColor,
	})
}

func newFileHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		// the interceptor stamps every line already
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
}
