// ABOUTME: Builds per-conversation xlsx workbooks and manages their retention.
// ABOUTME: Optionally delivers each workbook into the client's forum topic.

package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nurmuhamm8d/psy-telegram-bot/internal/store"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/survey"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/telegram"
)

// liveNamePattern matches rolling live snapshots: live_<client>_<conv>_<unix>.xlsx
var liveNamePattern = regexp.MustCompile(`^live_(\d+)_(\d+)_(\d+)\.xlsx$`)

// ConversationStore is the slice of the store the exporter reads from.
type ConversationStore interface {
	GetProfile(ctx context.Context, clientID int64) (*store.Profile, error)
	GetConversation(ctx context.Context, clientID, conversationID int64) (*store.Conversation, error)
	ListMessages(ctx context.Context, clientID, conversationID int64) ([]*store.MessageRecord, error)
}

// DocumentSender delivers a finished workbook into the client's topic.
type DocumentSender interface {
	SendDocument(ctx context.Context, clientID int64, filePath, filename, caption string) (*telegram.Message, error)
}

// XLSXConfig controls where workbooks land and how many survive.
type XLSXConfig struct {
	Dir                     string
	Deliver                 bool
	KeepTotal               int
	KeepLivePerConversation int
}

// XLSXExporter renders a conversation into a three-sheet workbook:
// Session (identity and survey summary), Survey (questions with answers),
// and Messages (the full relay log).
type XLSXExporter struct {
	store  ConversationStore
	sender DocumentSender
	q      *survey.Questionnaire
	cfg    XLSXConfig
	logger *slog.Logger
}

// NewXLSXExporter creates an XLSXExporter. sender may be nil when delivery
// is disabled.
func NewXLSXExporter(st ConversationStore, sender DocumentSender, q *survey.Questionnaire, cfg XLSXConfig, logger *slog.Logger) *XLSXExporter {
	return &XLSXExporter{
		store:  st,
		sender: sender,
		q:      q,
		cfg:    cfg,
		logger: logger.With("component", "xlsx"),
	}
}

// Export builds the workbook for a conversation, applies retention for live
// snapshots, and delivers the file when configured to.
func (e *XLSXExporter) Export(ctx context.Context, key Key, tag string) error {
	conv, err := e.store.GetConversation(ctx, key.ClientID, key.ConversationID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}

	profile, err := e.store.GetProfile(ctx, key.ClientID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("loading profile: %w", err)
	}

	msgs, err := e.store.ListMessages(ctx, key.ClientID, key.ConversationID)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}

	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}

	filename := e.filename(key, tag)
	path := filepath.Join(e.cfg.Dir, filename)
	if err := e.writeWorkbook(path, conv, profile, msgs); err != nil {
		return err
	}

	if tag == TagLive {
		e.cleanupLive()
	}

	if e.cfg.Deliver && e.sender != nil {
		caption := fmt.Sprintf("\U0001f4ca %s export", tag)
		if _, err := e.sender.SendDocument(ctx, key.ClientID, path, filename, caption); err != nil {
			return fmt.Errorf("delivering export: %w", err)
		}
	}

	e.logger.Info("export written",
		"client_id", key.ClientID,
		"conversation_id", key.ConversationID,
		"tag", tag,
		"file", filename)
	return nil
}

// filename returns a timestamped name for live snapshots and a stable,
// overwritten name for everything else.
func (e *XLSXExporter) filename(key Key, tag string) string {
	if tag == TagLive {
		return fmt.Sprintf("live_%d_%d_%d.xlsx", key.ClientID, key.ConversationID, time.Now().Unix())
	}
	return fmt.Sprintf("%s_%d_%d.xlsx", tag, key.ClientID, key.ConversationID)
}

func (e *XLSXExporter) writeWorkbook(path string, conv *store.Conversation, profile *store.Profile, msgs []*store.MessageRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sessionSheet = "Session"
	if err := f.SetSheetName("Sheet1", sessionSheet); err != nil {
		return fmt.Errorf("naming session sheet: %w", err)
	}

	username, firstName, lastName := "", "", ""
	if profile != nil {
		username, firstName, lastName = profile.Username, profile.FirstName, profile.LastName
	}
	closedAt := ""
	if conv.ClosedAt != nil {
		closedAt = conv.ClosedAt.UTC().Format(time.RFC3339)
	}

	sessionRows := [][]any{
		{"Field", "Value"},
		{"Client ID", conv.ClientID},
		{"Username", username},
		{"First name", firstName},
		{"Last name", lastName},
		{"Conversation", conv.ID},
		{"State", conv.State},
		{"Category", conv.CategoryLabel},
		{"Name", conv.DisplayName},
		{"Mood", conv.MoodLabel},
		{"Started", conv.CreatedAt.UTC().Format(time.RFC3339)},
		{"Closed", closedAt},
	}
	if err := writeRows(f, sessionSheet, sessionRows); err != nil {
		return err
	}

	surveySheet := "Survey"
	if _, err := f.NewSheet(surveySheet); err != nil {
		return fmt.Errorf("creating survey sheet: %w", err)
	}
	surveyRows := [][]any{
		{"Question", "Answer"},
		{e.q.Prompts.Category, conv.CategoryLabel},
		{e.q.Prompts.Name, conv.DisplayName},
		{e.q.Prompts.Mood, conv.MoodLabel},
	}
	for i, question := range e.q.QuestionsFor(conv.MoodKey) {
		answer := ""
		if i < len(conv.MoodAnswers) {
			answer = conv.MoodAnswers[i]
		}
		surveyRows = append(surveyRows, []any{question, answer})
	}
	if err := writeRows(f, surveySheet, surveyRows); err != nil {
		return err
	}

	messagesSheet := "Messages"
	if _, err := f.NewSheet(messagesSheet); err != nil {
		return fmt.Errorf("creating messages sheet: %w", err)
	}
	messageRows := [][]any{
		{"Time", "Role", "Direction", "Kind", "Text"},
	}
	for _, m := range msgs {
		messageRows = append(messageRows, []any{
			m.CreatedAt.UTC().Format(time.RFC3339),
			m.Role,
			m.Direction,
			m.Kind,
			m.Text,
		})
	}
	if err := writeRows(f, messagesSheet, messageRows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// liveFile is one parsed live snapshot on disk.
type liveFile struct {
	name           string
	clientID       int64
	conversationID int64
	unix           int64
}

// cleanupLive enforces the retention caps on rolling live snapshots:
// newest KeepLivePerConversation per conversation, newest KeepTotal overall.
// Stable start/end/survey files are never touched. Failures are logged only;
// retention must not fail an export.
func (e *XLSXExporter) cleanupLive() {
	entries, err := os.ReadDir(e.cfg.Dir)
	if err != nil {
		e.logger.Warn("failed to scan export dir", "error", err)
		return
	}

	var files []liveFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := liveNamePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		clientID, _ := strconv.ParseInt(m[1], 10, 64)
		convID, _ := strconv.ParseInt(m[2], 10, 64)
		unix, _ := strconv.ParseInt(m[3], 10, 64)
		files = append(files, liveFile{
			name:           entry.Name(),
			clientID:       clientID,
			conversationID: convID,
			unix:           unix,
		})
	}

	// Newest first; the name timestamp is authoritative, with the name
	// itself as a tiebreaker for snapshots in the same second.
	sort.Slice(files, func(i, j int) bool {
		if files[i].unix != files[j].unix {
			return files[i].unix > files[j].unix
		}
		return files[i].name > files[j].name
	})

	perConv := make(map[Key]int)
	kept := 0
	for _, file := range files {
		k := Key{ClientID: file.clientID, ConversationID: file.conversationID}
		if kept < e.cfg.KeepTotal && perConv[k] < e.cfg.KeepLivePerConversation {
			kept++
			perConv[k]++
			continue
		}
		if err := os.Remove(filepath.Join(e.cfg.Dir, file.name)); err != nil {
			e.logger.Warn("failed to remove old snapshot", "file", file.name, "error", err)
		}
	}
}
