package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// PostgresStore holds conversation transcripts and reminders. The cache is
// soft state; this is the durable record of what the bot actually said.
type PostgresStore struct {
	DB *sql.DB
}

// Conversation is one logged question/answer exchange.
type Conversation struct {
	ID         uuid.UUID
	Question   string
	Answer     string
	ContextTag string
	Cached     bool
	Similarity float64
	Tags       []string
	CreatedAt  time.Time
}

// Reminder is a user-scheduled message.
type Reminder struct {
	ID      uuid.UUID
	UserID  string
	Message string
	DueAt   time.Time
	Sent    bool
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{DB: db}, nil
}

// EnsureSchema creates the required tables if they do not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            question TEXT NOT NULL,
            answer TEXT NOT NULL,
            context_tag TEXT DEFAULT '',
            cached BOOLEAN DEFAULT FALSE,
            similarity DOUBLE PRECISION DEFAULT 0,
            tags TEXT[] DEFAULT '{}'::TEXT[],
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS reminders (
            id UUID PRIMARY KEY,
            user_id TEXT NOT NULL,
            message TEXT NOT NULL,
            due_at TIMESTAMPTZ NOT NULL,
            sent BOOLEAN DEFAULT FALSE
        )`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_due_at ON reminders(due_at) WHERE NOT sent`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// LogConversation records one exchange. cached and similarity describe how
// the answer was resolved (fresh backend call vs cache hit).
func (s *PostgresStore) LogConversation(ctx context.Context, conv Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	query := `INSERT INTO conversations (id, question, answer, context_tag, cached, similarity, tags)
              VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.DB.ExecContext(ctx, query,
		conv.ID, conv.Question, conv.Answer, conv.ContextTag, conv.Cached, conv.Similarity, pq.Array(conv.Tags))
	if err != nil {
		return fmt.Errorf("failed to log conversation: %w", err)
	}
	return nil
}

// RecentConversations returns the most recent exchanges, newest first.
func (s *PostgresStore) RecentConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, question, answer, context_tag, cached, similarity, tags, created_at
              FROM conversations ORDER BY created_at DESC LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.Question, &conv.Answer, &conv.ContextTag,
			&conv.Cached, &conv.Similarity, pq.Array(&conv.Tags), &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// CreateReminder schedules a reminder for a user.
func (s *PostgresStore) CreateReminder(ctx context.Context, userID, message string, dueAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	query := `INSERT INTO reminders (id, user_id, message, due_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.DB.ExecContext(ctx, query, id, userID, message, dueAt); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create reminder: %w", err)
	}
	return id, nil
}

// DueReminders returns unsent reminders that are due as of now.
func (s *PostgresStore) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	query := `SELECT id, user_id, message, due_at, sent FROM reminders
              WHERE NOT sent AND due_at <= $1 ORDER BY due_at`
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.Message, &r.DueAt, &r.Sent); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// MarkReminderSent flags a reminder as delivered.
func (s *PostgresStore) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	if _, err := s.DB.ExecContext(ctx, `UPDATE reminders SET sent = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}
