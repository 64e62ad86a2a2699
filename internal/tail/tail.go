// Package tail follows a growing log file line by line.
//
// The follower watches the parent directory with fsnotify so it notices both
// writes and the file being replaced, and polls on a ticker as a fallback for
// filesystems that do not deliver events. A truncated file is re-read from
// the start; a rotated file is drained and then the new file at the same path
// is opened from its beginning.
package tail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPoll is the fallback polling interval.
const DefaultPoll = 250 * time.Millisecond

// Options configures a Follower.
type Options struct {
	// FromStart reads the existing content first instead of seeking to the end.
	FromStart bool
	// Poll is the fallback polling interval. Zero uses DefaultPoll.
	Poll time.Duration
}

// Follower yields complete lines appended to a file.
type Follower struct {
	path   string
	opts   Options
	logger *slog.Logger
	err    error
}

// New creates a Follower for path. Nothing is opened until Lines is ranged over.
func New(path string, opts Options, logger *slog.Logger) *Follower {
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}
	return &Follower{path: path, opts: opts, logger: logger}
}

// Err returns the error that ended the last iteration, if any. It is nil
// when iteration stopped because ctx was done or the consumer broke out.
func (f *Follower) Err() error { return f.err }

// Lines returns an iterator over lines appended to the file, without their
// line terminator. Empty lines are skipped. A trailing partial line is held
// back until its newline arrives. The iterator ends when ctx is done, when
// the consumer stops, or on a read error reported by Err.
func (f *Follower) Lines(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		f.err = nil
		if err := f.follow(ctx, yield); err != nil {
			f.err = err
		}
	}
}

// source is the currently open file and how far into it we have read.
type source struct {
	file   *os.File
	info   os.FileInfo
	reader *bufio.Reader
	offset int64
}

func openSource(path string, atEnd bool) (*source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	var offset int64
	if atEnd {
		if offset, err = file.Seek(0, io.SeekEnd); err != nil {
			file.Close()
			return nil, fmt.Errorf("seeking %s: %w", path, err)
		}
	}
	return &source{file: file, info: info, reader: bufio.NewReader(file), offset: offset}, nil
}

func (f *Follower) follow(ctx context.Context, yield func(string) bool) error {
	src, err := openSource(f.path, !f.opts.FromStart)
	if err != nil {
		return err
	}
	defer func() { src.file.Close() }()

	log := f.logger.With("path", f.path)

	var events chan fsnotify.Event
	var watchErrs chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("file events unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(f.path)); err != nil {
			log.Warn("watching log directory failed, polling only", "error", err)
		} else {
			events, watchErrs = watcher.Events, watcher.Errors
		}
	}

	ticker := time.NewTicker(f.opts.Poll)
	defer ticker.Stop()

	var pending strings.Builder
	for {
		if more, err := f.drain(src, &pending, yield); err != nil || !more {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if filepath.Clean(ev.Name) != filepath.Clean(f.path) {
				continue
			}
		case err := <-watchErrs:
			log.Warn("file watcher error", "error", err)
		case <-ticker.C:
		}

		info, err := os.Stat(f.path)
		if err != nil {
			// Rotated away and not yet recreated; keep the old file open.
			continue
		}
		switch {
		case !os.SameFile(info, src.info):
			next, err := openSource(f.path, false)
			if err != nil {
				log.Warn("reopening rotated log failed", "error", err)
				continue
			}
			// Lines written to the old file before the rename still count.
			more, err := f.drain(src, &pending, yield)
			if err == nil && more && pending.Len() > 0 {
				more = yield(strings.TrimRight(pending.String(), "\r"))
			}
			log.Info("log rotated, reopened")
			src.file.Close()
			src = next
			pending.Reset()
			if err != nil || !more {
				return err
			}
		case info.Size() < src.offset:
			log.Info("log truncated, reading from start", "size", info.Size(), "offset", src.offset)
			if _, err := src.file.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("seeking %s: %w", f.path, err)
			}
			src.reader.Reset(src.file)
			src.offset = 0
			pending.Reset()
		}
	}
}

// drain yields every complete line currently readable from src. A trailing
// partial line stays in pending. more is false once the consumer stopped.
func (f *Follower) drain(src *source, pending *strings.Builder, yield func(string) bool) (more bool, err error) {
	for {
		chunk, err := src.reader.ReadString('\n')
		src.offset += int64(len(chunk))
		pending.WriteString(chunk)
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("reading %s: %w", f.path, err)
		}
		line := strings.TrimRight(pending.String(), "\r\n")
		pending.Reset()
		if line == "" {
			continue
		}
		if !yield(line) {
			return false, nil
		}
	}
}
