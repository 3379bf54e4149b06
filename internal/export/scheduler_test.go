// ABOUTME: Tests for export scheduling and coalescing behavior.
// ABOUTME: Uses a blocking fake exporter to control run timing.

package export

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingExporter records tags and holds each run until released.
type blockingExporter struct {
	mu      sync.Mutex
	calls   []string
	err     error
	started chan Key
	release chan struct{}
}

func newBlockingExporter() *blockingExporter {
	return &blockingExporter{
		started: make(chan Key, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingExporter) Export(ctx context.Context, key Key, tag string) error {
	b.mu.Lock()
	b.calls = append(b.calls, tag)
	b.mu.Unlock()
	b.started <- key
	<-b.release
	return b.err
}

func (b *blockingExporter) tags() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

func TestSchedule_CoalescesBurst(t *testing.T) {
	exp := newBlockingExporter()
	s := NewScheduler(exp, slog.Default())
	key := Key{ClientID: 1, ConversationID: 2}

	s.Schedule(key, TagLive)
	<-exp.started

	// A burst arrives while the first export is still running. All of it
	// must collapse into one follow-up run carrying the latest tag.
	s.Schedule(key, TagLive)
	s.Schedule(key, TagLive)
	s.Schedule(key, TagLive)
	s.Schedule(key, TagStart)

	exp.release <- struct{}{}
	<-exp.started
	exp.release <- struct{}{}
	s.Wait()

	assert.Equal(t, []string{TagLive, TagStart}, exp.tags())
}

func TestSchedule_IndependentConversations(t *testing.T) {
	exp := newBlockingExporter()
	s := NewScheduler(exp, slog.Default())

	s.Schedule(Key{ClientID: 1, ConversationID: 1}, TagLive)
	s.Schedule(Key{ClientID: 2, ConversationID: 7}, TagEnd)

	// Both runs start without either being released: no cross-conversation
	// serialization.
	first := <-exp.started
	second := <-exp.started
	assert.NotEqual(t, first, second)

	exp.release <- struct{}{}
	exp.release <- struct{}{}
	s.Wait()

	require.Len(t, exp.tags(), 2)
}

func TestSchedule_ErrorDoesNotDropPending(t *testing.T) {
	exp := newBlockingExporter()
	exp.err = errors.New("disk full")
	s := NewScheduler(exp, slog.Default())
	key := Key{ClientID: 1, ConversationID: 2}

	s.Schedule(key, TagLive)
	<-exp.started
	s.Schedule(key, TagEnd)

	exp.release <- struct{}{}
	<-exp.started
	exp.release <- struct{}{}
	s.Wait()

	assert.Equal(t, []string{TagLive, TagEnd}, exp.tags())
}

func TestSchedule_RunsAgainAfterDrain(t *testing.T) {
	exp := newBlockingExporter()
	s := NewScheduler(exp, slog.Default())
	key := Key{ClientID: 1, ConversationID: 2}

	s.Schedule(key, TagLive)
	<-exp.started
	exp.release <- struct{}{}
	s.Wait()

	// With nothing running, a new request starts a fresh run.
	s.Schedule(key, TagEnd)
	<-exp.started
	exp.release <- struct{}{}
	s.Wait()

	assert.Equal(t, []string{TagLive, TagEnd}, exp.tags())
}
