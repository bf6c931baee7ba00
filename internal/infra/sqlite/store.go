// Package sqlite provides a local single-file implementation of the
// engine's repositories, used when no Supabase backend is configured.
// Embedding vectors are stored as little-endian float32 blobs; turn
// data is stored as JSON.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/switchmart/assistant-engine/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_entries (
	id         TEXT PRIMARY KEY,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	category   TEXT NOT NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	priority   INTEGER NOT NULL DEFAULT 0,
	embedding  BLOB,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS games (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	platforms       TEXT NOT NULL DEFAULT '[]',
	price           REAL NOT NULL DEFAULT 0,
	available_stock INTEGER NOT NULL DEFAULT 0,
	embedding       BLOB
);

CREATE TABLE IF NOT EXISTS conversations (
	chat_id            TEXT PRIMARY KEY,
	messages           TEXT NOT NULL DEFAULT '[]',
	metrics            TEXT NOT NULL DEFAULT '[]',
	feedback           TEXT,
	needs_review       INTEGER NOT NULL DEFAULT 0,
	reviewed           INTEGER NOT NULL DEFAULT 0,
	admin_notes        TEXT NOT NULL DEFAULT '',
	conversation_ended INTEGER NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS negotiations (
	negotiation_id  TEXT PRIMARY KEY,
	messages        TEXT NOT NULL DEFAULT '[]',
	cart_items      TEXT NOT NULL DEFAULT '[]',
	total_amount    REAL NOT NULL DEFAULT 0,
	final_discount  REAL NOT NULL DEFAULT 0,
	customer_name   TEXT NOT NULL DEFAULT '',
	rejection_count INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	loyalty_applied INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS loyal_customers (
	name TEXT PRIMARY KEY
);
`

// Store wraps a SQLite database implementing every engine repository.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Pass ":memory:" for an in-memory database (used by tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- knowledge base ---

func (s *Store) ListEntries(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, category, tags, priority, embedding, created_at, updated_at
		 FROM knowledge_entries ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.KnowledgeEntry
	for rows.Next() {
		e, err := scanKnowledgeEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *Store) GetEntry(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, answer, category, tags, priority, embedding, created_at, updated_at
		 FROM knowledge_entries WHERE id = ?`, id)

	e, err := scanKnowledgeEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "knowledge_entry", ID: id}
	}
	return e, err
}

func (s *Store) CreateEntry(ctx context.Context, e *domain.KnowledgeEntry) error {
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO knowledge_entries (id, question, answer, category, tags, priority, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Question, e.Answer, string(e.Category), string(tags), e.Priority,
		encodeFloat32s(e.Vector), formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	return err
}

func (s *Store) UpdateEntry(ctx context.Context, e *domain.KnowledgeEntry) error {
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_entries
		 SET question = ?, answer = ?, category = ?, tags = ?, priority = ?, embedding = ?, updated_at = ?
		 WHERE id = ?`,
		e.Question, e.Answer, string(e.Category), string(tags), e.Priority,
		encodeFloat32s(e.Vector), formatTime(e.UpdatedAt), e.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "knowledge_entry", e.ID)
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "knowledge_entry", id)
}

// --- game catalog ---

func (s *Store) ListGames(ctx context.Context) ([]domain.GameEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, category, platforms, price, available_stock, embedding
		 FROM games ORDER BY title ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []domain.GameEntry
	for rows.Next() {
		var (
			g         domain.GameEntry
			platforms string
			blob      []byte
		)
		if err := rows.Scan(&g.ID, &g.Title, &g.Description, &g.Category, &platforms, &g.Price, &g.AvailableStock, &blob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(platforms), &g.Platforms); err != nil {
			return nil, fmt.Errorf("decoding platforms for %s: %w", g.ID, err)
		}
		vec, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", g.ID, err)
		}
		g.Vector = vec
		games = append(games, g)
	}
	return games, rows.Err()
}

// InsertGame adds a catalog row. Catalog content is owned by the
// storefront; this exists for local development and seeding.
func (s *Store) InsertGame(ctx context.Context, g *domain.GameEntry) error {
	platforms, err := json.Marshal(g.Platforms)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO games (id, title, description, category, platforms, price, available_stock, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Title, g.Description, g.Category, string(platforms), g.Price,
		g.AvailableStock, encodeFloat32s(g.Vector))
	return err
}

func (s *Store) UpdateGameVector(ctx context.Context, gameID string, vector []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET embedding = ? WHERE id = ?`, encodeFloat32s(vector), gameID)
	if err != nil {
		return err
	}
	return requireRow(res, "game", gameID)
}

// --- conversations ---

func (s *Store) GetConversation(ctx context.Context, chatID string) (*domain.ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, messages, metrics, feedback, needs_review, reviewed, admin_notes, conversation_ended, created_at, updated_at
		 FROM conversations WHERE chat_id = ?`, chatID)

	var (
		rec       domain.ConversationRecord
		messages  string
		metrics   string
		feedback  sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&rec.ChatID, &messages, &metrics, &feedback, &rec.NeedsReview,
		&rec.Reviewed, &rec.AdminNotes, &rec.ConversationEnded, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "conversation", ID: chatID}
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages for %s: %w", chatID, err)
	}
	if err := json.Unmarshal([]byte(metrics), &rec.Metrics); err != nil {
		return nil, fmt.Errorf("decoding metrics for %s: %w", chatID, err)
	}
	if feedback.Valid && feedback.String != "" {
		if err := json.Unmarshal([]byte(feedback.String), &rec.Feedback); err != nil {
			return nil, fmt.Errorf("decoding feedback for %s: %w", chatID, err)
		}
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func (s *Store) CreateConversation(ctx context.Context, rec *domain.ConversationRecord) error {
	messages, metrics, feedback, err := marshalConversationJSON(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (chat_id, messages, metrics, feedback, needs_review, reviewed, admin_notes, conversation_ended, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ChatID, messages, metrics, feedback, rec.NeedsReview, rec.Reviewed,
		rec.AdminNotes, rec.ConversationEnded, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	return err
}

func (s *Store) UpdateConversation(ctx context.Context, rec *domain.ConversationRecord) error {
	messages, metrics, feedback, err := marshalConversationJSON(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET messages = ?, metrics = ?, feedback = ?, needs_review = ?, reviewed = ?, admin_notes = ?, conversation_ended = ?, updated_at = ?
		 WHERE chat_id = ?`,
		messages, metrics, feedback, rec.NeedsReview, rec.Reviewed, rec.AdminNotes,
		rec.ConversationEnded, formatTime(rec.UpdatedAt), rec.ChatID)
	if err != nil {
		return err
	}
	return requireRow(res, "conversation", rec.ChatID)
}

func (s *Store) ListNeedingReview(ctx context.Context) ([]domain.ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM conversations
		 WHERE needs_review = 1 AND reviewed = 0 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.ConversationRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// --- negotiations ---

func (s *Store) GetNegotiation(ctx context.Context, negotiationID string) (*domain.NegotiationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT negotiation_id, messages, cart_items, total_amount, final_discount, customer_name, rejection_count, status, loyalty_applied, created_at, updated_at
		 FROM negotiations WHERE negotiation_id = ?`, negotiationID)

	var (
		rec       domain.NegotiationRecord
		messages  string
		cartItems string
		status    string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&rec.NegotiationID, &messages, &cartItems, &rec.TotalAmount,
		&rec.FinalDiscount, &rec.CustomerName, &rec.RejectionCount, &status,
		&rec.LoyaltyApplied, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "negotiation", ID: negotiationID}
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages for %s: %w", negotiationID, err)
	}
	if err := json.Unmarshal([]byte(cartItems), &rec.CartItems); err != nil {
		return nil, fmt.Errorf("decoding cart items for %s: %w", negotiationID, err)
	}
	rec.Status = domain.NegotiationStatus(status)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func (s *Store) CreateNegotiation(ctx context.Context, rec *domain.NegotiationRecord) error {
	messages, cartItems, err := marshalNegotiationJSON(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO negotiations (negotiation_id, messages, cart_items, total_amount, final_discount, customer_name, rejection_count, status, loyalty_applied, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.NegotiationID, messages, cartItems, rec.TotalAmount, rec.FinalDiscount,
		rec.CustomerName, rec.RejectionCount, string(rec.Status), rec.LoyaltyApplied,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	return err
}

func (s *Store) UpdateNegotiation(ctx context.Context, rec *domain.NegotiationRecord) error {
	messages, cartItems, err := marshalNegotiationJSON(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE negotiations
		 SET messages = ?, cart_items = ?, final_discount = ?, rejection_count = ?, status = ?, updated_at = ?
		 WHERE negotiation_id = ?`,
		messages, cartItems, rec.FinalDiscount, rec.RejectionCount, string(rec.Status),
		formatTime(rec.UpdatedAt), rec.NegotiationID)
	if err != nil {
		return err
	}
	return requireRow(res, "negotiation", rec.NegotiationID)
}

func (s *Store) ListNegotiations(ctx context.Context) ([]domain.NegotiationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT negotiation_id FROM negotiations ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.NegotiationRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetNegotiation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// --- loyal customers ---

func (s *Store) IsLoyalCustomer(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loyal_customers WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddLoyalCustomer registers a loyal customer. Duplicate names are a no-op.
func (s *Store) AddLoyalCustomer(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO loyal_customers (name) VALUES (?)`, name)
	return err
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKnowledgeEntry(row rowScanner) (*domain.KnowledgeEntry, error) {
	var (
		e         domain.KnowledgeEntry
		category  string
		tags      string
		blob      []byte
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&e.ID, &e.Question, &e.Answer, &category, &tags, &e.Priority, &blob, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags for %s: %w", e.ID, err)
	}
	vec, err := decodeFloat32s(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding for %s: %w", e.ID, err)
	}
	e.Category = domain.KnowledgeCategory(category)
	e.Vector = vec
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func marshalConversationJSON(rec *domain.ConversationRecord) (messages, metrics string, feedback any, err error) {
	m, err := json.Marshal(rec.Messages)
	if err != nil {
		return "", "", nil, err
	}
	t, err := json.Marshal(rec.Metrics)
	if err != nil {
		return "", "", nil, err
	}
	feedback = nil
	if rec.Feedback != nil {
		f, err := json.Marshal(rec.Feedback)
		if err != nil {
			return "", "", nil, err
		}
		feedback = string(f)
	}
	return string(m), string(t), feedback, nil
}

func marshalNegotiationJSON(rec *domain.NegotiationRecord) (messages, cartItems string, err error) {
	m, err := json.Marshal(rec.Messages)
	if err != nil {
		return "", "", err
	}
	c, err := json.Marshal(rec.CartItems)
	if err != nil {
		return "", "", err
	}
	return string(m), string(c), nil
}

func requireRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a float32 slice.
// A length that is not a multiple of 4 indicates data corruption.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
