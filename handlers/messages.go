package handlers

import (
	"context"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/processor"
)

const (
	EventNameMessageReceived     = "message.received"
	EventNameMessageSent         = "message.sent"
	EventNameConversationUpdated = "conversation.updated"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	messagePreviewLimit = 160
)

// Messages processes the messages queue.
type Messages struct {
	deps Deps
}

func NewMessages(deps Deps) *Messages {
	return &Messages{deps: deps}
}

func (h *Messages) Register(reg *processor.Registry) error {
	if err := h.deps.validate(); err != nil {
		return err
	}
	return registerAll(reg, map[string]processor.HandlerFunc{
		core.EventInboundMessage: func(ctx context.Context, event core.Event) (core.Outcome, error) {
			return h.message(ctx, event, DirectionInbound)
		},
		core.EventOutboundMessage: func(ctx context.Context, event core.Event) (core.Outcome, error) {
			return h.message(ctx, event, DirectionOutbound)
		},
		core.EventConversationUnreadUpdate: h.unread,
	})
}

// message stores the message and folds it into its conversation. The unread
// counter only moves when the message row is new, so redelivery is a no-op.
func (h *Messages) message(ctx context.Context, event core.Event, direction string) (core.Outcome, error) {
	data := fields(event.Data)
	externalID, tenantID, err := identity(event, data, "messageId", "id")
	if err != nil {
		return core.Outcome{}, err
	}
	convExternalID := data.str("conversationId")
	if convExternalID == "" {
		return core.Outcome{}, core.NewValidationError("conversationId", "is required")
	}

	var (
		message      core.Message
		conversation core.Conversation
		fresh        bool
	)
	err = h.deps.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx core.Stores) error {
		extContact := data.str("contactId")
		contactID, err := resolveContact(ctx, tx, extContact, tenantID)
		if err != nil {
			return err
		}

		conversation, err = tx.Messages.FindConversation(ctx, convExternalID, tenantID)
		if err != nil {
			if !isMissing(err) {
				return err
			}
			conversation = core.Conversation{ExternalID: convExternalID, LocationID: tenantID}
		}
		if extContact != "" {
			conversation.ExtContact = extContact
			conversation.ContactID = contactID
		}
		if data.has("assignedTo") {
			conversation.AssignedTo = data.str("assignedTo")
		}

		sentAt := data.time("dateAdded", "dateCreated", "timestamp")
		if sentAt == nil {
			now := h.deps.now()
			sentAt = &now
		}
		body := data.str("body", "message")
		messageType := data.str("messageType", "contentType")
		if conversation.LastMessageAt == nil || !sentAt.Before(*conversation.LastMessageAt) {
			conversation.LastMessageBody = truncate(body, messagePreviewLimit)
			conversation.LastMessageType = messageType
			conversation.LastMessageAt = sentAt
		}
		conversation, _, err = tx.Messages.UpsertConversation(ctx, conversation)
		if err != nil {
			return err
		}

		message, fresh, err = tx.Messages.UpsertMessage(ctx, core.Message{
			ExternalID:     externalID,
			LocationID:     tenantID,
			ConversationID: conversation.ID,
			ExtConv:        convExternalID,
			ContactID:      contactID,
			ExtContact:     extContact,
			Direction:      firstNonEmpty(strings.ToLower(data.str("direction")), direction),
			MessageType:    messageType,
			Body:           body,
			Status:         data.str("status"),
			Attachments:    data.strings("attachments"),
			UserID:         data.str("userId"),
			SentAt:         sentAt,
		})
		if err != nil {
			return err
		}
		if direction != DirectionInbound || !fresh {
			return nil
		}
		if err := tx.Messages.IncrementUnread(ctx, conversation.ID, 1); err != nil {
			return err
		}
		conversation.UnreadCount++
		return nil
	})
	if err != nil {
		return core.Outcome{}, err
	}

	eventName := EventNameMessageSent
	if direction == DirectionInbound {
		eventName = EventNameMessageReceived
	}
	summary := map[string]any{
		"id":              message.ID,
		"external_id":     message.ExternalID,
		"conversation_id": conversation.ID,
		"contact_id":      message.ExtContact,
		"direction":       message.Direction,
		"message_type":    message.MessageType,
		"preview":         conversation.LastMessageBody,
		"unread_count":    conversation.UnreadCount,
	}
	outcome := core.Outcome{
		EntityID:      message.ID,
		Notifications: []core.Notification{locationNotice(tenantID, eventName, message.ID, summary)},
		Metadata:      map[string]any{"new_message": fresh},
	}
	if direction == DirectionInbound && fresh && conversation.AssignedTo != "" {
		outcome.Notifications = append(outcome.Notifications, userNotice(conversation.AssignedTo, eventName, message.ID, summary))
		outcome.Pushes = append(outcome.Pushes, core.PushNotification{
			UserID:   conversation.AssignedTo,
			EntityID: message.ID,
			Event:    eventName,
			Message: core.PushMessage{
				Title: "New message",
				Body:  truncate(message.Body, messagePreviewLimit),
				Data:  summary,
			},
		})
	}
	return outcome, nil
}

func (h *Messages) unread(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	externalID, tenantID, err := identity(event, data, "conversationId", "id")
	if err != nil {
		return core.Outcome{}, err
	}
	count, ok := data.integer("unreadCount")
	if !ok {
		return core.Outcome{}, core.NewValidationError("unreadCount", "is required")
	}
	if count < 0 {
		count = 0
	}

	stores := h.deps.stores()
	conversation, err := stores.Messages.FindConversation(ctx, externalID, tenantID)
	if err != nil {
		if !isMissing(err) {
			return core.Outcome{}, err
		}
		conversation = core.Conversation{ExternalID: externalID, LocationID: tenantID}
	}
	if data.has("contactId") {
		conversation.ExtContact = data.str("contactId")
		conversation.ContactID, err = resolveContact(ctx, stores, conversation.ExtContact, tenantID)
		if err != nil {
			return core.Outcome{}, err
		}
	}
	conversation.UnreadCount = count
	saved, _, err := stores.Messages.UpsertConversation(ctx, conversation)
	if err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: saved.ID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameConversationUpdated, saved.ID, map[string]any{
				"id":           saved.ID,
				"external_id":  saved.ExternalID,
				"unread_count": saved.UnreadCount,
			}),
		},
	}, nil
}
