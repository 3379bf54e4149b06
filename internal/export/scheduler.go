// ABOUTME: Coalescing scheduler for conversation exports.
// ABOUTME: At most one export per conversation runs at a time; bursts collapse.

package export

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tags describe why an export was produced. Live snapshots are rolling and
// subject to retention; the others overwrite a single stable file.
const (
	TagLive   = "live"
	TagStart  = "start"
	TagEnd    = "end"
	TagSurvey = "survey"
)

// defaultExportTimeout bounds a single export run, including delivery.
const defaultExportTimeout = 2 * time.Minute

// Key identifies the conversation an export belongs to.
type Key struct {
	ClientID       int64
	ConversationID int64
}

// Exporter produces one export artifact for a conversation.
type Exporter interface {
	Export(ctx context.Context, key Key, tag string) error
}

// Scheduler serializes exports per conversation. Schedule is fire-and-forget:
// requests arriving while an export for the same conversation is running are
// coalesced into a single follow-up run carrying the latest tag.
type Scheduler struct {
	mu       sync.Mutex
	exporter Exporter
	pending  map[Key]string
	running  map[Key]bool
	wg       sync.WaitGroup
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler driving the given exporter.
func NewScheduler(exporter Exporter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		exporter: exporter,
		pending:  make(map[Key]string),
		running:  make(map[Key]bool),
		timeout:  defaultExportTimeout,
		logger:   logger.With("component", "export"),
	}
}

// Schedule requests an export for a conversation. It never blocks the caller
// and never fails: export errors are logged, not propagated, because exports
// must not disturb message relay.
func (s *Scheduler) Schedule(key Key, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running[key] {
		s.pending[key] = tag
		return
	}
	s.running[key] = true
	s.wg.Add(1)
	go s.run(key, tag)
}

// run executes exports for one conversation until no request is pending.
func (s *Scheduler) run(key Key, tag string) {
	defer s.wg.Done()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.exporter.Export(ctx, key, tag)
		cancel()
		if err != nil {
			s.logger.Error("export failed",
				"client_id", key.ClientID,
				"conversation_id", key.ConversationID,
				"tag", tag,
				"error", err)
		}

		s.mu.Lock()
		next, ok := s.pending[key]
		if !ok {
			delete(s.running, key)
			s.mu.Unlock()
			return
		}
		delete(s.pending, key)
		s.mu.Unlock()
		tag = next
	}
}

// Wait blocks until all in-flight exports have drained. Used on shutdown.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
