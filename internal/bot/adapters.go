package bot

import (
	"context"
	"fmt"

	"github.com/tonimelisma/drivegram/internal/session"
	"github.com/tonimelisma/drivegram/internal/telegram"
	"github.com/tonimelisma/drivegram/internal/transfer"
)

// ChatClient is the subset of *telegram.Client the adapters use.
type ChatClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	SendDocument(ctx context.Context, doc telegram.DocumentUpload) (*telegram.Message, error)
}

// Notifier implements session.Notifier over the Bot API.
type Notifier struct {
	client ChatClient
}

// NewNotifier creates a Notifier.
func NewNotifier(client ChatClient) *Notifier {
	return &Notifier{client: client}
}

// Send posts text to chatID.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) (session.MessageRef, error) {
	m, err := n.client.SendMessage(ctx, chatID, text)
	if err != nil {
		return session.MessageRef{}, fmt.Errorf("bot: sending message: %w", err)
	}

	return session.MessageRef{ChatID: m.Chat.ID, MessageID: m.MessageID}, nil
}

// Edit replaces the text of a sent message.
func (n *Notifier) Edit(ctx context.Context, ref session.MessageRef, text string) error {
	if err := n.client.EditMessageText(ctx, ref.ChatID, ref.MessageID, text); err != nil {
		return fmt.Errorf("bot: editing message: %w", err)
	}

	return nil
}

// Destination uploads documents to one chat.
type Destination struct {
	client ChatClient
	chatID int64
}

// SendDocument implements transfer.Destination.
func (d *Destination) SendDocument(ctx context.Context, doc transfer.Document) error {
	_, err := d.client.SendDocument(ctx, telegram.DocumentUpload{
		ChatID:   d.chatID,
		FileName: doc.FileName,
		Caption:  doc.Caption,
		Body:     doc.Body,
	})
	if err != nil {
		return fmt.Errorf("bot: sending document: %w", err)
	}

	return nil
}

// Destinations returns a session.DestinationFunc bound to client.
func Destinations(client ChatClient) session.DestinationFunc {
	return func(chatID int64) transfer.Destination {
		return &Destination{client: client, chatID: chatID}
	}
}
