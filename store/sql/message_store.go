package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/uptrace/bun"
)

type MessageStore struct {
	db bun.IDB
	clock
}

func NewMessageStore(db bun.IDB) (*MessageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &MessageStore{db: db}, nil
}

func (s *MessageStore) UpsertMessage(ctx context.Context, message core.Message) (core.Message, bool, error) {
	now := s.now()
	record := newMessageRecord(message)
	record.UpdatedAt = now
	created, err := upsertByKey[messageRecord](ctx, s.db, externalKey(message.ExternalID, message.LocationID), record, now)
	if err != nil {
		return core.Message{}, false, err
	}
	return record.toDomain(), created, nil
}

func (s *MessageStore) UpsertConversation(ctx context.Context, conversation core.Conversation) (core.Conversation, bool, error) {
	now := s.now()
	record := newConversationRecord(conversation)
	record.UpdatedAt = now
	created, err := upsertByKey[conversationRecord](ctx, s.db, externalKey(conversation.ExternalID, conversation.LocationID), record, now)
	if err != nil {
		return core.Conversation{}, false, err
	}
	return record.toDomain(), created, nil
}

func (s *MessageStore) FindConversation(ctx context.Context, externalID string, locationID string) (core.Conversation, error) {
	key := externalKey(externalID, locationID)
	record, err := findByKey[conversationRecord](ctx, s.db, key)
	if err != nil {
		return core.Conversation{}, err
	}
	if record == nil {
		return core.Conversation{}, notFound("conversation", key)
	}
	return record.toDomain(), nil
}

// IncrementUnread adjusts the unread counter in place; it never drops
// below zero.
func (s *MessageStore) IncrementUnread(ctx context.Context, conversationID string, delta int) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return core.NewValidationError("conversation_id", "is required")
	}
	res, err := s.db.NewUpdate().
		Model((*conversationRecord)(nil)).
		Set("unread_count = CASE WHEN unread_count + ? < 0 THEN 0 ELSE unread_count + ? END", delta, delta).
		Set("updated_at = ?", s.now()).
		Where("id = ?", conversationID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("%w: conversation %s", core.ErrEntityNotFound, conversationID)
	}
	return nil
}

var _ core.MessageStore = (*MessageStore)(nil)
