package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/logging"

	_ "modernc.org/sqlite"
)

// SQLiteOptions configures a SQLiteStore.
type SQLiteOptions struct {
	// WindowSize is the number of recent messages in the short-term text.
	WindowSize int
	Logger     logging.Logger
}

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db         *sql.DB
	windowSize int
	logger     logging.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string, optFns ...func(o *SQLiteOptions)) (*SQLiteStore, error) {
	opts := SQLiteOptions{
		WindowSize: DefaultWindowSize,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, windowSize: opts.WindowSize, logger: opts.Logger}

	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		msg_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

	CREATE TABLE IF NOT EXISTS facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		content TEXT NOT NULL,
		UNIQUE(session_id, content)
	);

	CREATE TABLE IF NOT EXISTS profiles (
		session_id TEXT NOT NULL,
		attr_key TEXT NOT NULL,
		attr_value TEXT NOT NULL,
		PRIMARY KEY (session_id, attr_key)
	);

	CREATE TABLE IF NOT EXISTS summaries (
		session_id TEXT PRIMARY KEY,
		summary TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		content TEXT NOT NULL,
		UNIQUE(session_id, content)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetContext returns the short-term window plus the enabled long-term kinds.
func (s *SQLiteStore) GetContext(ctx context.Context, sessionID string, toggles Toggles) (*core.MemorySnapshot, error) {
	snap := &core.MemorySnapshot{SessionID: sessionID}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&snap.TotalMessages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	window, err := s.Messages(ctx, sessionID, s.windowSize)
	if err != nil {
		return nil, err
	}
	snap.ShortTermText = renderWindow(window)

	t := toggles.Effective()
	if t.Semantic {
		if snap.SemanticFacts, err = s.column(ctx, `SELECT content FROM facts WHERE session_id = ? ORDER BY id`, sessionID); err != nil {
			return nil, err
		}
	}
	if t.Profile {
		if snap.UserProfile, err = s.profile(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	if t.Episodic {
		if snap.EpisodicSummary, err = s.summary(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	if t.Procedural {
		if snap.ProceduralPatterns, err = s.column(ctx, `SELECT content FROM patterns WHERE session_id = ? ORDER BY id`, sessionID); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("memory.context.loaded", "session.id", sessionID, "messages", snap.TotalMessages, "backend", "sqlite")

	return snap, nil
}

// AddMessage appends msg to the session history.
func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID string, msg core.Message) error {
	if !msg.Role.IsEntryRole() {
		return core.NewValidationError("role", msg.Role, "role must be one of user, assistant, system")
	}

	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encode message metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (msg_id, session_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, string(msg.Role), msg.Content, metadata, ts.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Messages returns up to limit most recent messages, oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, sessionID string, limit int) ([]core.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, metadata, created_at FROM (
			SELECT id, role, content, metadata, created_at FROM messages
			WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []core.Message{}
	for rows.Next() {
		var (
			role, content string
			metadata      sql.NullString
			createdAt     int64
		)
		if err := rows.Scan(&role, &content, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg := core.Message{Role: core.Role(role), Content: content, Timestamp: time.Unix(0, createdAt)}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// ClearSession removes everything stored for the session.
func (s *SQLiteStore) ClearSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "facts", "profiles", "summaries", "patterns"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", sessionID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Stats reports counts for the session.
func (s *SQLiteStore) Stats(ctx context.Context, sessionID string) (core.MemoryStats, error) {
	stats := core.MemoryStats{SessionID: sessionID}
	var summaries int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages WHERE session_id = ?1),
			(SELECT COUNT(*) FROM facts WHERE session_id = ?1),
			(SELECT COUNT(*) FROM profiles WHERE session_id = ?1),
			(SELECT COUNT(*) FROM patterns WHERE session_id = ?1),
			(SELECT COUNT(*) FROM summaries WHERE session_id = ?1 AND summary != '')`, sessionID).
		Scan(&stats.MessageCount, &stats.SemanticFactsCount, &stats.ProfileAttributes, &stats.PatternCount, &summaries)
	if err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	stats.HasSummary = summaries > 0
	return stats, nil
}

// AddFact appends a semantic fact. Duplicates are ignored.
func (s *SQLiteStore) AddFact(ctx context.Context, sessionID, fact string) error {
	if fact == "" {
		return core.NewValidationError("fact", fact, "must not be empty")
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO facts (session_id, content) VALUES (?, ?)`, sessionID, fact); err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// UpdateProfile merges attrs into the session profile. Values are stored as JSON.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, sessionID string, attrs map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for k, v := range attrs {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode profile attribute %s: %w", k, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO profiles (session_id, attr_key, attr_value) VALUES (?, ?, ?)
			ON CONFLICT(session_id, attr_key) DO UPDATE SET attr_value = excluded.attr_value`,
			sessionID, k, string(b))
		if err != nil {
			return fmt.Errorf("upsert profile attribute %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// SetSummary replaces the episodic summary.
func (s *SQLiteStore) SetSummary(ctx context.Context, sessionID, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (session_id, summary, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`,
		sessionID, summary, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// AddPattern appends a procedural pattern. Duplicates are ignored.
func (s *SQLiteStore) AddPattern(ctx context.Context, sessionID, pattern string) error {
	if pattern == "" {
		return core.NewValidationError("pattern", pattern, "must not be empty")
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO patterns (session_id, content) VALUES (?, ?)`, sessionID, pattern); err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

// SearchFacts returns facts containing query (case-insensitive for ASCII).
func (s *SQLiteStore) SearchFacts(ctx context.Context, sessionID, query string, limit int) ([]core.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content FROM facts
		WHERE session_id = ? AND instr(lower(content), lower(?)) > 0
		ORDER BY id LIMIT ?`, sessionID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search facts: %w", err)
	}
	defer rows.Close()

	results := []core.Document{}
	for rows.Next() {
		var (
			id      int64
			content string
		)
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		results = append(results, core.Document{ID: fmt.Sprintf("fact_%d", id), Content: content, Score: 1.0})
	}
	return results, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) column(ctx context.Context, query, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) profile(ctx context.Context, sessionID string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT attr_key, attr_value FROM profiles WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	defer rows.Close()

	var profile map[string]any
	for rows.Next() {
		var k, raw string
		if err := rows.Scan(&k, &raw); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode profile attribute %s: %w", k, err)
		}
		if profile == nil {
			profile = make(map[string]any)
		}
		profile[k] = v
	}
	return profile, rows.Err()
}

func (s *SQLiteStore) summary(ctx context.Context, sessionID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM summaries WHERE session_id = ?`, sessionID).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query summary: %w", err)
	}
	return summary, nil
}
