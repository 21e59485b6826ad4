package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// ChatStatus posts and edits status messages in one chat.
type ChatStatus struct {
	client *Client
	chatID int64
}

var _ pipeline.StatusChannel = (*ChatStatus)(nil)

func NewChatStatus(client *Client, chatID int64) *ChatStatus {
	return &ChatStatus{client: client, chatID: chatID}
}

func (s *ChatStatus) Post(ctx context.Context, text string) (pipeline.StatusRef, error) {
	msg, err := s.client.Send(ctx, s.chatID, tgbotapi.NewMessage(s.chatID, text))
	if err != nil {
		return 0, err
	}
	return pipeline.StatusRef(msg.MessageID), nil
}

func (s *ChatStatus) Edit(ctx context.Context, ref pipeline.StatusRef, text string) error {
	_, err := s.client.Send(ctx, s.chatID, tgbotapi.NewEditMessageText(s.chatID, int(ref), text))
	return err
}
