package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	pollInterval   = 250 * time.Millisecond
	maxLineBytes   = 1024 * 1024
	initialLineBuf = 64 * 1024
)

// TailOptions controls a Tail call.
//
// A negative Offset returns the last Limit lines. A non-negative Offset reads
// every line after that byte position. Follow with a positive Wait polls
// until a line arrives or Wait elapses. Contains keeps only lines holding the
// substring.
type TailOptions struct {
	Offset   int64
	Limit    int
	Follow   bool
	Wait     time.Duration
	Contains string
}

// TailResult carries the lines read and the offset for the next call.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from the log file at path. A missing file yields no lines
// and offset zero.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}
	opts.Wait = max(opts.Wait, 0)

	var result TailResult
	if opts.Offset < 0 {
		result, err = readLast(path, opts.Limit, opts.Contains)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			offset = info.Size()
		}
		result, err = readFrom(path, offset, opts.Contains)
	}
	if err != nil {
		return result, err
	}
	if opts.Follow && opts.Wait > 0 && len(result.Lines) == 0 {
		return waitForLines(ctx, path, result.Offset, opts.Wait, opts.Contains)
	}
	return result, nil
}

func openScanner(path string, offset int64) (*os.File, *bufio.Scanner, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("seek log file: %w", err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, initialLineBuf), maxLineBytes)
	return file, scanner, nil
}

func endOffset(file *os.File) (int64, error) {
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	return offset, nil
}

// readLast keeps a ring of the last limit matching lines.
func readLast(path string, limit int, contains string) (TailResult, error) {
	file, scanner, err := openScanner(path, 0)
	if err != nil {
		return TailResult{}, err
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return TailResult{}, fmt.Errorf("seek log file: %w", err)
		}
		return TailResult{Offset: offset}, nil
	}

	ring := make([]string, 0, limit)
	next := 0
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, contains) {
			continue
		}
		if len(ring) < limit {
			ring = append(ring, line)
			continue
		}
		ring[next] = line
		next = (next + 1) % limit
	}
	if err := scanner.Err(); err != nil {
		return TailResult{}, fmt.Errorf("read log file: %w", err)
	}
	offset, err := endOffset(file)
	if err != nil {
		return TailResult{}, err
	}

	lines := make([]string, 0, len(ring))
	lines = append(lines, ring[next:]...)
	lines = append(lines, ring[:next]...)
	return TailResult{Lines: lines, Offset: offset}, nil
}

func readFrom(path string, offset int64, contains string) (TailResult, error) {
	file, scanner, err := openScanner(path, offset)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: offset}, err
	}
	defer file.Close()

	var lines []string
	for scanner.Scan() {
		if line := scanner.Text(); strings.Contains(line, contains) {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("read log file: %w", err)
	}
	next, err := endOffset(file)
	if err != nil {
		return TailResult{Offset: offset}, err
	}
	return TailResult{Lines: lines, Offset: next}, nil
}

func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration, contains string) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		result, err := readFrom(path, offset, contains)
		if err != nil {
			return result, err
		}
		offset = result.Offset
		if len(result.Lines) > 0 || time.Now().After(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}
	}
}
