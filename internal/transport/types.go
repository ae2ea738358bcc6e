package transport

import "context"

// ChatTarget addresses a chat on the bot API.
// ChatID is kept as the raw string the API accepts: a numeric id ("-1001234")
// or a public username ("@channel").
type ChatTarget struct {
	ChatID   string
	ThreadID int // forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    string
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Photo is an image upload. The bot API wants file content, not a bare URL.
type Photo struct {
	Data     []byte
	FileName string
	Caption  string
}

// Sender is the outbound half of a bot API client.
// Each call is a single HTTP request; implementations must not retry.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, p Photo, opt *SendOptions) (MessageRef, error)
}
