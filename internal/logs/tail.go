package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions selects which lines Tail returns. A negative Offset reads the
// last Limit lines; otherwise reading starts at Offset. Match keeps only
// lines containing it, such as a project id.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Match  string
}

// TailResult holds the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// CurrentPath returns the log the running daemon writes to.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, "quire.log")
}

// Tail reads lines from path. With Follow and a positive Wait it blocks up
// to Wait for new lines when none are available yet.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	opts.Wait = max(opts.Wait, 0)
	keep := matcher(opts.Match)

	if opts.Offset < 0 {
		lines, offset, err := readLastLines(path, opts.Limit, keep)
		if err != nil {
			return result, err
		}
		result.Lines, result.Offset = lines, offset
		if opts.Follow && opts.Wait > 0 && len(lines) == 0 {
			return waitForLines(ctx, path, offset, opts.Wait, keep)
		}
		return result, nil
	}

	offset := opts.Offset
	if offset > info.Size() {
		// Rotated or truncated since the caller's last read.
		offset = 0
	}
	lines, newOffset, err := readForward(path, offset, keep)
	if err != nil {
		return result, err
	}
	result.Lines, result.Offset = lines, newOffset
	if opts.Follow && opts.Wait > 0 && len(lines) == 0 {
		return waitForLines(ctx, path, newOffset, opts.Wait, keep)
	}
	return result, nil
}

func matcher(match string) func(string) bool {
	match = strings.TrimSpace(match)
	if match == "" {
		return func(string) bool { return true }
	}
	return func(line string) bool { return strings.Contains(line, match) }
}

// scanLines calls each for every complete, kept line after offset and
// returns the offset just past the last newline. A trailing line still
// being written is left for the next read.
func scanLines(path string, offset int64, keep func(string) bool, each func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return 0, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if text := strings.TrimRight(line, "\r\n"); keep(text) {
			each(text)
		}
	}
}

func readLastLines(path string, limit int, keep func(string) bool) ([]string, int64, error) {
	var ring []string
	offset, err := scanLines(path, 0, keep, func(line string) {
		if limit <= 0 {
			return
		}
		if len(ring) == limit {
			ring = ring[1:]
		}
		ring = append(ring, line)
	})
	if err != nil {
		return nil, 0, err
	}
	return ring, offset, nil
}

func readForward(path string, offset int64, keep func(string) bool) ([]string, int64, error) {
	var lines []string
	next, err := scanLines(path, offset, keep, func(line string) { lines = append(lines, line) })
	if err != nil {
		return nil, 0, err
	}
	return lines, next, nil
}

func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration, keep func(string) bool) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		lines, newOffset, err := readForward(path, offset, keep)
		if err != nil {
			return result, err
		}
		result.Offset = newOffset
		offset = newOffset
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
