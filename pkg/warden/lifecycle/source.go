package lifecycle

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/warden/pkg/warden/logging"
)

// Source produces raw supervisor records. Adapters implement it over
// whatever feed the supervisor exposes; tests substitute a ChannelSource.
type Source interface {
	// Next blocks until a record is available, the source fails, or the
	// context is done.
	Next(ctx context.Context) (Record, error)

	// Close releases the source's resources.
	Close() error
}

// feedPollInterval is the fallback poll cadence when no filesystem
// notification arrives. Keeps tailing working on filesystems where fsnotify
// is unreliable.
const feedPollInterval = 500 * time.Millisecond

// FeedSource tails a JSON-lines supervisor event feed file. New lines are
// picked up via fsnotify write notifications with a poll fallback. Malformed
// lines are logged and skipped; parsing stays in this adapter so the monitor
// only ever sees structured records.
type FeedSource struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	watcher *fsnotify.Watcher
	pending []byte
	logger  *logging.Logger
}

// FeedOption configures a FeedSource.
type FeedOption func(*feedOptions)

type feedOptions struct {
	fromStart bool
}

// FromStart reads the feed from the beginning instead of tailing from the
// current end.
func FromStart() FeedOption {
	return func(o *feedOptions) { o.fromStart = true }
}

// NewFeedSource opens the feed file for tailing.
func NewFeedSource(path string, opts ...FeedOption) (*FeedSource, error) {
	var o feedOptions
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feed: %w", err)
	}

	if !o.fromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("seeking feed: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		_ = f.Close()
		return nil, fmt.Errorf("watching feed: %w", err)
	}

	return &FeedSource{
		path:    path,
		file:    f,
		reader:  bufio.NewReader(f),
		watcher: watcher,
		logger:  logging.Get("feed"),
	}, nil
}

// Next returns the next record from the feed, blocking until one arrives.
func (s *FeedSource) Next(ctx context.Context) (Record, error) {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return Record{}, err
		}
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			s.logger.Warn("skipping malformed feed line", "error", err)
			continue
		}
		if rec.Time.IsZero() {
			rec.Time = time.Now()
		}
		return rec, nil
	}
}

// readLine reads one newline-terminated line, waiting for file growth at EOF.
// Partial lines (written without a trailing newline yet) are buffered until
// the writer completes them.
func (s *FeedSource) readLine(ctx context.Context) ([]byte, error) {
	for {
		chunk, err := s.reader.ReadBytes('\n')
		s.pending = append(s.pending, chunk...)

		if err == nil {
			line := s.pending[:len(s.pending)-1] // strip newline
			s.pending = nil
			return line, nil
		}
		if err != io.EOF {
			return nil, fmt.Errorf("reading feed: %w", err)
		}

		if err := s.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// wait blocks until the feed file changes, the poll interval elapses, or the
// context is done.
func (s *FeedSource) wait(ctx context.Context) error {
	timer := time.NewTimer(feedPollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case event, ok := <-s.watcher.Events:
		if !ok {
			return io.EOF
		}
		_ = event
		return nil
	case err, ok := <-s.watcher.Errors:
		if !ok {
			return io.EOF
		}
		return fmt.Errorf("feed watcher: %w", err)
	case <-timer.C:
		return nil
	}
}

// Close stops the watcher and closes the feed file.
func (s *FeedSource) Close() error {
	_ = s.watcher.Close()
	return s.file.Close()
}

// ChannelSource is an in-memory source fed by Emit. Tests and embedded
// supervisors use it to hand records directly to the monitor.
type ChannelSource struct {
	ch chan Record
}

// NewChannelSource creates a channel source with the given buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{ch: make(chan Record, buffer)}
}

// Emit queues a record for the monitor. Blocks when the buffer is full.
func (s *ChannelSource) Emit(rec Record) {
	s.ch <- rec
}

// Next returns the next emitted record.
func (s *ChannelSource) Next(ctx context.Context) (Record, error) {
	select {
	case <-ctx.Done():
		return Record{}, ctx.Err()
	case rec, ok := <-s.ch:
		if !ok {
			return Record{}, io.EOF
		}
		return rec, nil
	}
}

// Close closes the channel. Subsequent Next calls return io.EOF.
func (s *ChannelSource) Close() error {
	close(s.ch)
	return nil
}
