package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options describes logger construction parameters. Output paths accept
// "stdout", "stderr" or a file path; files are created with their parent
// directories and opened for append.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	errOutputs := opts.ErrorOutputPaths
	if len(errOutputs) == 0 {
		errOutputs = []string{"stderr"}
	}
	w, err := openSinks(append(append([]string(nil), outputs...), errOutputs...))
	if err != nil {
		return nil, err
	}
	handler, err := newHandler(w, opts)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// NewFileHandler returns a handler appending to path and the file to close
// when the caller is done with it.
func NewFileHandler(path string, opts Options) (slog.Handler, io.Closer, error) {
	file, err := openLogFile(path)
	if err != nil {
		return nil, nil, err
	}
	handler, err := newHandler(file, opts)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return handler, file, nil
}

func newHandler(w io.Writer, opts Options) (slog.Handler, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))
	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return newPrettyHandler(w, levelVar, addSource), nil
	case "json":
		return newJSONHandler(w, levelVar, addSource)
	}
	return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
}

// parseLevel maps a configured level name to slog, defaulting to info.
func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// openSinks resolves paths to one writer. Duplicates are ignored, and stderr
// is dropped when stdout is already a sink since stdout carries every level.
func openSinks(paths []string) (io.Writer, error) {
	var (
		writers []io.Writer
		seen    = make(map[string]bool)
	)
	for _, raw := range paths {
		path := strings.TrimSpace(raw)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		switch path {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			if !seen["stdout"] {
				writers = append(writers, os.Stderr)
			}
		default:
			file, err := openLogFile(path)
			if err != nil {
				return nil, err
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
