package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Message is an adapter-neutral incoming chat message.
// For photo messages, Text holds the caption and PhotoFileID the
// adapter-specific handle used with Adapter.DownloadFile.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	PhotoFileID  string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	// DownloadFile fetches the raw bytes of a file previously seen in an
	// incoming message (e.g. a timetable photo).
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
