package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebot/carebot/internal/log"
)

// Store persists conversations and messages in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a conversation store on the given pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Create starts a new empty conversation for a user.
func (s *Store) Create(ctx context.Context, userID string) (*Conversation, error) {
	conv := &Conversation{ID: uuid.New(), UserID: userID}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, user_id)
		VALUES ($1, $2)
		RETURNING message_count, created_at, updated_at`,
		conv.ID, userID,
	).Scan(&conv.MessageCount, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	s.logger.Info("conversation created", "conversation_id", conv.ID, "user_id", userID)
	return conv, nil
}

// Get returns a conversation with its full message history in sequence
// order. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	conv := &Conversation{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, message_count, created_at, updated_at
		FROM conversations
		WHERE id = $1`,
		id,
	).Scan(&conv.UserID, &conv.MessageCount, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	messages, err := s.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	return conv, nil
}

// Messages returns a conversation's messages ordered by sequence number.
func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sequence_number, role, content, tool_call, tool_result, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sequence_number`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows, conversationID)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanMessage(row pgx.Row, conversationID uuid.UUID) (*Message, error) {
	msg := &Message{ConversationID: conversationID}
	var toolCall []byte
	if err := row.Scan(&msg.ID, &msg.SequenceNumber, &msg.Role, &msg.Content,
		&toolCall, &msg.ToolResult, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if toolCall != nil {
		msg.ToolCall = &ToolCallRecord{}
		if err := json.Unmarshal(toolCall, msg.ToolCall); err != nil {
			return nil, fmt.Errorf("decode tool call: %w", err)
		}
	}
	return msg, nil
}

// List returns a user's conversations, most recently updated first, without
// their messages.
func (s *Store) List(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, message_count, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC, id
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv := &Conversation{}
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.MessageCount,
			&conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// Delete removes a conversation and (via cascade) its messages.
// Returns ErrNotFound if the conversation does not exist.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

// Append adds a message to the conversation with the next sequence number.
//
// The conversation row is locked FOR UPDATE for the duration of the
// transaction, so concurrent appends serialize and sequence numbers stay
// strictly increasing without gaps. Returns ErrNotFound if the conversation
// does not exist.
func (s *Store) Append(ctx context.Context, conversationID uuid.UUID, role Role, content string, toolCall *ToolCallRecord, toolResult json.RawMessage) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockConversation(ctx, tx, conversationID); err != nil {
		return nil, err
	}

	var seq int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) + 1
		FROM messages
		WHERE conversation_id = $1`,
		conversationID,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("next sequence number: %w", err)
	}

	var toolCallJSON []byte
	if toolCall != nil {
		toolCallJSON, err = json.Marshal(toolCall)
		if err != nil {
			return nil, fmt.Errorf("encode tool call: %w", err)
		}
	}

	msg := &Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SequenceNumber: seq,
		Role:           role,
		Content:        content,
		ToolCall:       toolCall,
		ToolResult:     toolResult,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sequence_number, role, content, tool_call, tool_result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		msg.ID, conversationID, seq, role, content, toolCallJSON, toolResult,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1, updated_at = now()
		WHERE id = $1`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update conversation counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return msg, nil
}

// AttachToolResult stores a tool result on an assistant message awaiting
// one. Returns ErrMessageNotFound if the message does not exist in the
// conversation and ErrNotAwaitingResult if it is not an assistant tool call
// or already has a result.
func (s *Store) AttachToolResult(ctx context.Context, conversationID, messageID uuid.UUID, result json.RawMessage) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockConversation(ctx, tx, conversationID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT id, sequence_number, role, content, tool_call, tool_result, created_at
		FROM messages
		WHERE id = $1 AND conversation_id = $2`,
		messageID, conversationID,
	)
	msg, err := scanMessage(row, conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if !msg.AwaitingToolResult() {
		return nil, ErrNotAwaitingResult
	}

	_, err = tx.Exec(ctx, `
		UPDATE messages SET tool_result = $3
		WHERE id = $1 AND conversation_id = $2`,
		messageID, conversationID, result,
	)
	if err != nil {
		return nil, fmt.Errorf("attach tool result: %w", err)
	}
	msg.ToolResult = result

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return msg, nil
}

// ConversationOf returns the conversation a message belongs to.
// Returns ErrMessageNotFound if the message does not exist.
func (s *Store) ConversationOf(ctx context.Context, messageID uuid.UUID) (uuid.UUID, error) {
	var conversationID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT conversation_id FROM messages WHERE id = $1`,
		messageID,
	).Scan(&conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrMessageNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("query message: %w", err)
	}
	return conversationID, nil
}

// lockConversation takes the conversation's row lock for the transaction.
func lockConversation(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock conversation: %w", err)
	}
	return nil
}
