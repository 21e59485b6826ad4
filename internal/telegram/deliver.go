package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// ChatDeliverer sends the finished video to a chat as a streamable video.
// The file is streamed from the delivery reader as a multipart upload.
type ChatDeliverer struct {
	client *Client
	chatID int64
}

var _ pipeline.Deliverer = (*ChatDeliverer)(nil)

func NewChatDeliverer(client *Client, chatID int64) *ChatDeliverer {
	return &ChatDeliverer{client: client, chatID: chatID}
}

func (d *ChatDeliverer) Deliver(ctx context.Context, del pipeline.Delivery) error {
	video := tgbotapi.NewVideo(d.chatID, tgbotapi.FileReader{Name: del.Name, Reader: del.Reader})
	video.Caption = del.Caption
	video.SupportsStreaming = true
	_, err := d.client.Send(ctx, d.chatID, video)
	return err
}
