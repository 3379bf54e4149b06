// ABOUTME: Tests for workbook rendering, naming, delivery, and retention.
// ABOUTME: Reads generated files back with excelize to verify content.

package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nurmuhamm8d/psy-telegram-bot/internal/store"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/survey"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/telegram"
)

type fakeSender struct {
	sent []string // filenames
}

func (f *fakeSender) SendDocument(ctx context.Context, clientID int64, filePath, filename, caption string) (*telegram.Message, error) {
	f.sent = append(f.sent, filename)
	return &telegram.Message{MessageID: 1}, nil
}

func seedConversation(t *testing.T, st *store.MockStore) *store.Conversation {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.UpsertProfile(ctx, &store.Profile{
		ClientID:  100,
		Username:  "anon",
		FirstName: "A",
	}))

	conv, err := st.StartConversation(ctx, 100)
	require.NoError(t, err)

	state := store.StateChat
	catKey, catLabel := "school", "\U0001f3eb School"
	name := "Alex"
	moodKey, moodLabel := "bad", "\U0001f614 Bad"
	a1, a2, a3 := "slept badly", "argued at home", "talking helps"
	require.NoError(t, st.UpdateConversation(ctx, 100, conv.ID, store.ConversationPatch{
		State:         &state,
		CategoryKey:   &catKey,
		CategoryLabel: &catLabel,
		DisplayName:   &name,
		MoodKey:       &moodKey,
		MoodLabel:     &moodLabel,
		MoodAnswer1:   &a1,
		MoodAnswer2:   &a2,
		MoodAnswer3:   &a3,
	}))

	require.NoError(t, st.LogMessage(ctx, &store.MessageRecord{
		ID:             "m1",
		ClientID:       100,
		ConversationID: conv.ID,
		Role:           store.RoleClient,
		Direction:      store.DirectionIn,
		Kind:           "text",
		Text:           "hello",
		CreatedAt:      time.Now(),
	}))
	return conv
}

func newTestExporter(t *testing.T, st *store.MockStore, sender DocumentSender, cfg XLSXConfig) *XLSXExporter {
	t.Helper()
	q, err := survey.Default()
	require.NoError(t, err)
	return NewXLSXExporter(st, sender, q, cfg, slog.Default())
}

func TestExport_WritesWorkbook(t *testing.T) {
	st := store.NewMockStore()
	conv := seedConversation(t, st)
	dir := t.TempDir()
	e := newTestExporter(t, st, nil, XLSXConfig{Dir: dir, KeepTotal: 10, KeepLivePerConversation: 5})

	key := Key{ClientID: 100, ConversationID: conv.ID}
	require.NoError(t, e.Export(context.Background(), key, TagStart))

	path := filepath.Join(dir, fmt.Sprintf("start_100_%d.xlsx", conv.ID))
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Session", "Survey", "Messages"}, f.GetSheetList())

	clientID, err := f.GetCellValue("Session", "B2")
	require.NoError(t, err)
	assert.Equal(t, "100", clientID)

	nameAnswer, err := f.GetCellValue("Survey", "B3")
	require.NoError(t, err)
	assert.Equal(t, "Alex", nameAnswer)

	msgText, err := f.GetCellValue("Messages", "E2")
	require.NoError(t, err)
	assert.Equal(t, "hello", msgText)
}

func TestExport_StableNameOverwrites(t *testing.T) {
	st := store.NewMockStore()
	conv := seedConversation(t, st)
	dir := t.TempDir()
	e := newTestExporter(t, st, nil, XLSXConfig{Dir: dir, KeepTotal: 10, KeepLivePerConversation: 5})

	key := Key{ClientID: 100, ConversationID: conv.ID}
	require.NoError(t, e.Export(context.Background(), key, TagEnd))
	require.NoError(t, e.Export(context.Background(), key, TagEnd))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, fmt.Sprintf("end_100_%d.xlsx", conv.ID), entries[0].Name())
}

func TestExport_Delivers(t *testing.T) {
	st := store.NewMockStore()
	conv := seedConversation(t, st)
	sender := &fakeSender{}
	e := newTestExporter(t, st, sender, XLSXConfig{
		Dir:                     t.TempDir(),
		Deliver:                 true,
		KeepTotal:               10,
		KeepLivePerConversation: 5,
	})

	key := Key{ClientID: 100, ConversationID: conv.ID}
	require.NoError(t, e.Export(context.Background(), key, TagStart))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, fmt.Sprintf("start_100_%d.xlsx", conv.ID), sender.sent[0])
}

func TestCleanupLive_Retention(t *testing.T) {
	dir := t.TempDir()
	st := store.NewMockStore()
	e := newTestExporter(t, st, nil, XLSXConfig{
		Dir:                     dir,
		KeepTotal:               5,
		KeepLivePerConversation: 2,
	})

	// Six snapshots for conversation (1,1), three for (2,2), plus one
	// stable file that retention must never touch.
	for i := 0; i < 6; i++ {
		touch(t, dir, fmt.Sprintf("live_1_1_%d.xlsx", 1000+i))
	}
	for i := 0; i < 3; i++ {
		touch(t, dir, fmt.Sprintf("live_2_2_%d.xlsx", 2000+i))
	}
	touch(t, dir, "end_1_1.xlsx")

	e.cleanupLive()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	// Newest two per conversation survive, the stable file is untouched.
	assert.ElementsMatch(t, []string{
		"live_1_1_1004.xlsx",
		"live_1_1_1005.xlsx",
		"live_2_2_2001.xlsx",
		"live_2_2_2002.xlsx",
		"end_1_1.xlsx",
	}, names)
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}
