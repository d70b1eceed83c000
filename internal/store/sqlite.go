package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/voicecal/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection serializes
	// access and keeps the action/pointer transactions atomic across goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NewID generates a new ULID string.
func NewID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// encodeJSON marshals v, returning "" for nil values so empty columns stay empty.
func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "", nil
	}
	return string(data), nil
}

func decodeJSON(raw string, target any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Conversations ---

const conversationColumns = `id, user_id, state, pending_json, options_json, history_json, report_json, override_json, executed_action_id, created_at, updated_at, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func conversationArgs(c *models.VoiceConversation) ([]any, error) {
	pending, err := encodeJSON(c.Pending)
	if err != nil {
		return nil, fmt.Errorf("encode pending candidate: %w", err)
	}
	var options, history string
	if len(c.Options) > 0 {
		if options, err = encodeJSON(c.Options); err != nil {
			return nil, fmt.Errorf("encode options: %w", err)
		}
	}
	if len(c.ClarificationHistory) > 0 {
		if history, err = encodeJSON(c.ClarificationHistory); err != nil {
			return nil, fmt.Errorf("encode clarification history: %w", err)
		}
	}
	report, err := encodeJSON(c.LastReport)
	if err != nil {
		return nil, fmt.Errorf("encode conflict report: %w", err)
	}
	override, err := encodeJSON(c.Override)
	if err != nil {
		return nil, fmt.Errorf("encode override: %w", err)
	}
	return []any{
		c.ID, c.UserID, string(c.State), pending, options, history, report, override,
		c.ExecutedActionID, c.CreatedAt.UTC(), c.UpdatedAt.UTC(), c.ExpiresAt.UTC(),
	}, nil
}

func scanConversation(row rowScanner) (*models.VoiceConversation, error) {
	c := &models.VoiceConversation{}
	var state, pending, options, history, report, override string
	if err := row.Scan(&c.ID, &c.UserID, &state, &pending, &options, &history, &report, &override,
		&c.ExecutedActionID, &c.CreatedAt, &c.UpdatedAt, &c.ExpiresAt); err != nil {
		return nil, err
	}
	c.State = models.ConversationState(state)
	if pending != "" {
		c.Pending = &models.ActionCandidate{}
		if err := decodeJSON(pending, c.Pending); err != nil {
			return nil, fmt.Errorf("decode pending candidate: %w", err)
		}
	}
	if err := decodeJSON(options, &c.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	if err := decodeJSON(history, &c.ClarificationHistory); err != nil {
		return nil, fmt.Errorf("decode clarification history: %w", err)
	}
	if report != "" {
		c.LastReport = &models.ConflictReport{}
		if err := decodeJSON(report, c.LastReport); err != nil {
			return nil, fmt.Errorf("decode conflict report: %w", err)
		}
	}
	if override != "" {
		c.Override = &models.ConflictOverride{}
		if err := decodeJSON(override, c.Override); err != nil {
			return nil, fmt.Errorf("decode override: %w", err)
		}
	}
	return c, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, c *models.VoiceConversation) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	args, err := conversationArgs(c)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.VoiceConversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, c *models.VoiceConversation) error {
	args, err := conversationArgs(c)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	// The id moves to the end for the WHERE clause.
	updateArgs := append(append([]any{}, args[1:]...), args[0])
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET user_id=?, state=?, pending_json=?, options_json=?, history_json=?, report_json=?, override_json=?, executed_action_id=?, created_at=?, updated_at=?, expires_at=?
		WHERE id=?`,
		updateArgs...,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]*models.VoiceConversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1=1`
	var args []any
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.State != "" {
		query += " AND state = ?"
		args = append(args, string(filter.State))
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return s.queryConversations(ctx, query, args...)
}

// ListIdleConversations returns non-terminal conversations whose expiry is at or before now.
func (s *SQLiteStore) ListIdleConversations(ctx context.Context, now time.Time) ([]*models.VoiceConversation, error) {
	return s.queryConversations(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		WHERE state NOT IN (?, ?, ?) AND expires_at <= ? ORDER BY expires_at`,
		string(models.StateExecuted), string(models.StateCancelled), string(models.StateExpired), now.UTC(),
	)
}

// PurgeConversations deletes terminal conversations last updated before the cutoff.
func (s *SQLiteStore) PurgeConversations(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE state IN (?, ?, ?) AND updated_at < ?`,
		string(models.StateExecuted), string(models.StateCancelled), string(models.StateExpired), before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge conversations: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) queryConversations(ctx context.Context, query string, args ...any) ([]*models.VoiceConversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.VoiceConversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Executed actions ---

const actionColumns = `id, user_id, conversation_id, kind, candidate_json, target, undo_token, reverses_id, override_json, partial, detail, created_at`

func scanAction(row rowScanner) (*models.ExecutedAction, error) {
	a := &models.ExecutedAction{}
	var kind, candidate, override string
	if err := row.Scan(&a.ID, &a.UserID, &a.ConversationID, &kind, &candidate, &a.Target, &a.UndoToken,
		&a.ReversesID, &override, &a.Partial, &a.Detail, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Kind = models.ExecutedActionKind(kind)
	if err := decodeJSON(candidate, &a.Candidate); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	if override != "" {
		a.Override = &models.ConflictOverride{}
		if err := decodeJSON(override, a.Override); err != nil {
			return nil, fmt.Errorf("decode override: %w", err)
		}
	}
	return a, nil
}

func insertAction(ctx context.Context, tx *sql.Tx, a *models.ExecutedAction) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	candidate, err := encodeJSON(a.Candidate)
	if err != nil {
		return fmt.Errorf("encode candidate: %w", err)
	}
	override, err := encodeJSON(a.Override)
	if err != nil {
		return fmt.Errorf("encode override: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO executed_actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.ConversationID, string(a.Kind), candidate, a.Target, a.UndoToken,
		a.ReversesID, override, boolToInt(a.Partial), a.Detail, a.CreatedAt.UTC(),
	)
	return err
}

// RecordExecution inserts a create action and replaces the user's last-action pointer in one transaction.
func (s *SQLiteStore) RecordExecution(ctx context.Context, a *models.ExecutedAction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertAction(ctx, tx, a); err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO last_actions (user_id, action_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET action_id = excluded.action_id, updated_at = excluded.updated_at`,
		a.UserID, a.ID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update last action: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ClaimLastAction removes the user's undo pointer and returns the action it
// referenced, in one transaction. Only one caller can claim a given pointer.
func (s *SQLiteStore) ClaimLastAction(ctx context.Context, userID string) (*models.ExecutedAction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAction(tx.QueryRowContext(ctx,
		`SELECT `+prefixed("a.", actionColumns)+` FROM last_actions l JOIN executed_actions a ON a.id = l.action_id WHERE l.user_id = ?`,
		userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last action for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get last action: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM last_actions WHERE user_id = ? AND action_id = ?`, userID, a.ID); err != nil {
		return nil, fmt.Errorf("clear last action: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return a, nil
}

// RestoreLastAction puts back a claimed pointer. A pointer written in the
// meantime by a newer execution is kept.
func (s *SQLiteStore) RestoreLastAction(ctx context.Context, userID, actionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO last_actions (user_id, action_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, actionID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("restore last action: %w", err)
	}
	return nil
}

// RecordReversal inserts a reversal action. The pointer must already be claimed.
func (s *SQLiteStore) RecordReversal(ctx context.Context, a *models.ExecutedAction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertAction(ctx, tx, a); err != nil {
		return fmt.Errorf("record reversal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAction(ctx context.Context, id string) (*models.ExecutedAction, error) {
	a, err := scanAction(s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM executed_actions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) GetActionByConversation(ctx context.Context, conversationID string) (*models.ExecutedAction, error) {
	a, err := scanAction(s.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM executed_actions WHERE conversation_id = ? AND kind = ?`,
		conversationID, string(models.ExecutedActionCreate)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action for conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get action by conversation: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) ListActions(ctx context.Context, userID string, limit int) ([]*models.ExecutedAction, error) {
	query := `SELECT ` + actionColumns + ` FROM executed_actions WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.ExecutedAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LastAction returns the action the user's undo pointer references.
func (s *SQLiteStore) LastAction(ctx context.Context, userID string) (*models.ExecutedAction, error) {
	a, err := scanAction(s.db.QueryRowContext(ctx,
		`SELECT `+prefixed("a.", actionColumns)+` FROM last_actions l JOIN executed_actions a ON a.id = l.action_id WHERE l.user_id = ?`,
		userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last action for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get last action: %w", err)
	}
	return a, nil
}

// --- Items ---

func (s *SQLiteStore) CreateItem(ctx context.Context, item *models.Item) error {
	if item.ID == "" {
		item.ID = NewID()
	}
	item.CreatedAt = time.Now().UTC()
	if item.Priority == "" {
		item.Priority = models.PriorityMedium
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, user_id, kind, title, description, due_at, recurrence, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, string(item.Kind), item.Title, item.Description, utcPtr(item.DueAt),
		item.Recurrence, string(item.Priority), item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

func scanItem(row rowScanner) (*models.Item, error) {
	item := &models.Item{}
	var kind, priority string
	var dueAt sql.NullTime
	if err := row.Scan(&item.ID, &item.UserID, &kind, &item.Title, &item.Description, &dueAt,
		&item.Recurrence, &priority, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.Kind = models.ItemKind(kind)
	item.Priority = models.Priority(priority)
	if dueAt.Valid {
		item.DueAt = &dueAt.Time
	}
	return item, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*models.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, kind, title, description, due_at, recurrence, priority, created_at FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, userID string) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, title, description, due_at, recurrence, priority, created_at
		FROM items WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Local calendar ---

func (s *SQLiteStore) CreateCalendarEvent(ctx context.Context, e *models.CalendarEvent) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	e.CreatedAt = time.Now().UTC()
	attendees, err := encodeJSON(e.Attendees)
	if err != nil {
		return fmt.Errorf("encode attendees: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO calendar_events (id, calendar_id, uid, title, description, start_at, end_at, recurrence, attendees_json, flexible, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CalendarID, e.UID, e.Title, e.Description, e.Start.UTC(), e.End.UTC(),
		e.Recurrence, attendees, boolToInt(e.Flexible), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create calendar event: %w", err)
	}
	return nil
}

// ListCalendarEvents returns events intersecting [from, to), plus every recurring event
// that starts before to so the caller can expand its occurrences.
func (s *SQLiteStore) ListCalendarEvents(ctx context.Context, calendarID string, from, to time.Time) ([]*models.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, calendar_id, uid, title, description, start_at, end_at, recurrence, attendees_json, flexible, created_at
		FROM calendar_events
		WHERE calendar_id = ? AND start_at < ? AND (end_at > ? OR recurrence != '')
		ORDER BY start_at`,
		calendarID, to.UTC(), from.UTC())
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.CalendarEvent
	for rows.Next() {
		e := &models.CalendarEvent{}
		var attendees string
		if err := rows.Scan(&e.ID, &e.CalendarID, &e.UID, &e.Title, &e.Description, &e.Start, &e.End,
			&e.Recurrence, &attendees, &e.Flexible, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		if err := decodeJSON(attendees, &e.Attendees); err != nil {
			return nil, fmt.Errorf("decode attendees: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteCalendarEvent(ctx context.Context, calendarID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE calendar_id = ? AND id = ?`, calendarID, id)
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("calendar event %s: %w", id, ErrNotFound)
	}
	return nil
}

// prefixed qualifies each column in a comma separated list with p.
func prefixed(p, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = p + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
