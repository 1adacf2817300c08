// Package adapter implements the Telegram side of the transport kit on top
// of telebot. It forwards incoming text, photo and callback updates to the
// consumer channel and exposes the outbound send/edit/download primitives.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "classbot/internal/runtime/supervisor"
	kit "classbot/internal/transport"
	logx "classbot/pkg/logx"
)

// maxDownloadBytes caps timetable photo downloads. Telegram bot API file
// downloads top out at 20 MB anyway.
const maxDownloadBytes = 20 << 20

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns the adapter's internal goroutines (poll loop, drop reporter,
	// stop watcher). Created on Start(), cancelled on Stop().
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop; reported periodically instead of per update.
	droppedUpdates uint64

	menuMu   sync.Mutex
	menuHash uint64
	http     *http.Client
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b, http: &http.Client{Timeout: 8 * time.Second}}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind:    kit.UpdateMessage,
			Message: baseMessage(m),
		})
		return nil
	})

	// Photos arrive as a separate update type; the caption rides along as
	// the message text so the consumer sees one uniform shape.
	a.bot.Handle(tele.OnPhoto, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Photo == nil {
			return nil
		}
		msg := baseMessage(m)
		msg.Text = m.Caption
		msg.PhotoFileID = m.Photo.FileID
		a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: msg})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				ThreadID:  m.ThreadID,
				FromID:    cb.Sender.ID,
				MessageID: m.ID,
				Data:      cb.Data,
			},
		})
		return nil
	})
}

func baseMessage(m *tele.Message) *kit.Message {
	return &kit.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		ThreadID:     m.ThreadID,
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		Text:         m.Text,
	}
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// adapter errors should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)",
					logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// Telebot's Start() blocks until Stop(). In some failure modes it can
	// exit unexpectedly; run it under a restart loop so the adapter self-heals.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		if a.bot != nil {
			a.bot.Start()
		}
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}
	// telebot Stop is expected to be fast; run it async just in case.
	if a.bot != nil {
		go a.bot.Stop()
	}
	if sup == nil {
		return nil
	}

	// Grace window keeps shutdown snappy even if a getUpdates long-poll is
	// still in flight.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		if sup.Context().Err() != nil {
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks safe to send to
// Telegram, preferring newline boundaries.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					cut = i + 1
					break
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			if first.ChatID != 0 {
				return first, ctx.Err()
			}
			return kit.MessageRef{}, ctx.Err()
		default:
		}

		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		// Attach markup only to the first message.
		if i == 0 && opt.ReplyMarkupAdapter != nil {
			if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
				sendOpt.ReplyMarkup = rm
			}
		}

		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			if first.ChatID != 0 {
				return first, err
			}
			return kit.MessageRef{}, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}

	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	sendOpt := &tele.SendOptions{ParseMode: opt.ParseMode, DisableWebPagePreview: opt.DisablePreview}
	if opt.ReplyMarkupAdapter != nil {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
			sendOpt.ReplyMarkup = rm
		}
	}

	if _, err := a.bot.Edit(m, chunks[0], sendOpt); err != nil {
		return err
	}

	// Overflow from an edit goes out as fresh messages.
	for _, chunk := range chunks[1:] {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		opt2 := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              ref.ThreadID,
		}
		if _, err := a.bot.Send(&tele.Chat{ID: ref.ChatID}, chunk, opt2); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// DownloadFile fetches a Telegram file (timetable photo) by file id.
func (a *Adapter) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	rc, err := a.bot.File(&tele.File{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("telegram file %s: %w", fileID, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("telegram file %s: read: %w", fileID, err)
	}
	return b, nil
}

// UpdateMenuCommands updates the bot's /menu command list (setMyCommands).
// Best-effort: it only performs a network call when the list changes.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}

	type cmd struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	payload := struct {
		Commands []cmd `json:"commands"`
	}{Commands: make([]cmd, 0, len(cmds))}

	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		payload.Commands = append(payload.Commands, cmd{Command: c.Command, Description: d})
		if len(payload.Commands) >= 100 {
			break
		}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := "https://api.telegram.org/bot" + strings.TrimSpace(a.cfg.Token) + "/setMyCommands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := a.http
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram setMyCommands failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("telegram setMyCommands failed: http=%d", resp.StatusCode)
	}

	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(payload.Commands)))
	return nil
}
