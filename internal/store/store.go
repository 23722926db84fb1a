// Package store persists conversations and their message history in an
// embedded libsql database. Every model-visible turn is recorded: plain
// messages, function calls issued by the model, and the outputs produced
// for them, so a conversation can be replayed as model input later.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "github.com/tursodatabase/go-libsql"
	"go.uber.org/zap"

	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound reports that a conversation id does not exist.
var ErrNotFound = errors.New("conversation not found")

// Conversation is one stored conversation. Timestamps are the UTC
// "YYYY-MM-DD HH:MM:SS" strings SQLite produces for CURRENT_TIMESTAMP.
type Conversation struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	AgentID     string `json:"agent_id"`
	CreatedAt   string `json:"created_at"`
	LastUpdated string `json:"last_updated"`
}

// Message is one stored conversation turn as it sits in the messages table.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	Type           string `json:"message_type"`
	Content        string `json:"content"`
	Role           string `json:"role,omitempty"`
	CallID         string `json:"call_id,omitempty"`
	FunctionName   string `json:"function_name,omitempty"`
	Timestamp      string `json:"timestamp"`
	ExtraData      string `json:"extra_data,omitempty"`
}

// Store wraps the conversation database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to the embedded libsql database at path, creating the file
// and any parent directories when missing, and applies pending migrations.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %s: %w", dir, err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("database not found, creating a new one", zap.String("path", path))
		file, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create database at %s: %w", path, err)
		}
		file.Close()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-64000&_temp_store=memory", path)
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql connection: %w", err)
	}

	var probe int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&probe); err != nil {
		db.Close()
		return nil, fmt.Errorf("connectivity check failed: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("conversation store ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	src, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectTurso, db, src)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new conversation and returns its id.
func (s *Store) CreateConversation(ctx context.Context, name, agentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (name, agent_id) VALUES (?, ?)", name, agentID)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Debug("conversation created",
		zap.Int64("conversation_id", id), zap.String("agent_id", agentID))
	return id, nil
}

// GetConversation fetches a conversation by id, or ErrNotFound.
func (s *Store) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, agent_id, created_at, last_updated FROM conversations WHERE id = ?", id).
		Scan(&conv.ID, &conv.Name, &conv.AgentID, &conv.CreatedAt, &conv.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation %d: %w", id, err)
	}
	return conv, nil
}

// ListConversations returns conversations most recently updated first.
// An empty agentID lists every conversation.
func (s *Store) ListConversations(ctx context.Context, agentID string) ([]Conversation, error) {
	query := "SELECT id, name, agent_id, created_at, last_updated FROM conversations ORDER BY last_updated DESC, id DESC"
	args := []any{}
	if agentID != "" {
		query = "SELECT id, name, agent_id, created_at, last_updated FROM conversations WHERE agent_id = ? ORDER BY last_updated DESC, id DESC"
		args = append(args, agentID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.Name, &conv.AgentID, &conv.CreatedAt, &conv.LastUpdated); err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

// DeleteConversation removes a conversation and, through the foreign key
// cascade, all of its messages. Returns ErrNotFound for unknown ids.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete conversation %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	s.logger.Debug("conversation deleted", zap.Int64("conversation_id", id))
	return nil
}

// SaveMessage appends one conversation item and bumps the conversation's
// last_updated timestamp. The columns written depend on the item type:
// messages store role and content, function calls store the call id, the
// function name and the raw argument JSON, and function call outputs store
// the call id and the output text. extraData rides along unparsed; callers
// use it for token usage bookkeeping.
func (s *Store) SaveMessage(ctx context.Context, conversationID int64, item llm.Item, extraData string) (int64, error) {
	var role, callID, functionName sql.NullString
	var content string

	switch item.Type {
	case llm.ItemMessage:
		role = nullable(string(item.Role))
		content = item.Content
	case llm.ItemFunctionCall:
		callID = nullable(item.CallID)
		functionName = nullable(item.Name)
		content = item.Arguments
		if content == "" {
			content = "{}"
		}
	case llm.ItemFunctionCallOutput:
		callID = nullable(item.CallID)
		content = item.Output
	default:
		raw, err := json.Marshal(item)
		if err != nil {
			return 0, fmt.Errorf("save message: %w", err)
		}
		content = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET last_updated = CURRENT_TIMESTAMP WHERE id = ?", conversationID); err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages
		(conversation_id, message_type, content, role, call_id, function_name, extra_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conversationID, string(item.Type), content, role, callID, functionName, nullable(extraData))
	if err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	return id, nil
}

// Messages returns every stored turn of a conversation in insertion order.
func (s *Store) Messages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, message_type, content, role, call_id, function_name, timestamp, extra_data
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages for conversation %d: %w", conversationID, err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var role, callID, functionName, extraData sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Type, &msg.Content,
			&role, &callID, &functionName, &msg.Timestamp, &extraData); err != nil {
			return nil, fmt.Errorf("load messages for conversation %d: %w", conversationID, err)
		}
		msg.Role = role.String
		msg.CallID = callID.String
		msg.FunctionName = functionName.String
		msg.ExtraData = extraData.String
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages for conversation %d: %w", conversationID, err)
	}
	return messages, nil
}

// MessagesForModel returns the conversation's plain messages as model input
// items. Function calls and their outputs are deliberately left out: past
// tool traffic is already summarized in the assistant turns that followed it.
func (s *Store) MessagesForModel(ctx context.Context, conversationID int64) ([]llm.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content
		FROM messages
		WHERE conversation_id = ? AND message_type = 'message'
		ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load model input for conversation %d: %w", conversationID, err)
	}
	defer rows.Close()

	items := []llm.Item{}
	for rows.Next() {
		var role, content sql.NullString
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("load model input for conversation %d: %w", conversationID, err)
		}
		items = append(items, llm.Item{
			Type:    llm.ItemMessage,
			Role:    llm.Role(role.String),
			Content: content.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load model input for conversation %d: %w", conversationID, err)
	}
	return items, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
