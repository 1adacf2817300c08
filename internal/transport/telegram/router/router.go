// Package router dispatches incoming transport updates to registered bot
// commands and the timetable photo handler. Access is allowlist-only: a
// bot holding calendar write credentials never serves unknown users.
package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "classbot/internal/runtime/supervisor"
	kit "classbot/internal/transport"
	logx "classbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// PhotoHandlerFunc handles a photo update (the timetable upload path).
type PhotoHandlerFunc func(ctx context.Context, req *Request, fileID, caption string) error

// CallbackHandlerFunc handles inline-keyboard button presses.
type CallbackHandlerFunc func(ctx context.Context, req *Request, cb *kit.Callback) error

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

type Manager struct {
	mu      sync.RWMutex
	cmds    map[string]*Command // name and aliases -> command
	ordered  []*Command          // registration order, for /help and the menu
	photo    PhotoHandlerFunc
	callback CallbackHandlerFunc
	allowed  map[int64]struct{}

	log     logx.Logger
	adapter kit.Adapter

	runMu sync.Mutex
	sup   *rtsup.Supervisor

	jobs chan func()
}

func NewManager(log logx.Logger, adapter kit.Adapter, allowedUserIDs []int64) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		cmds:    map[string]*Command{},
		log:     log,
		adapter: adapter,
		jobs:    make(chan func(), 64),
	}
	m.SetAllowedUsers(allowedUserIDs)
	return m
}

// SetAllowedUsers replaces the access list. Safe during hot-reload.
func (m *Manager) SetAllowedUsers(ids []int64) {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	m.mu.Lock()
	m.allowed = set
	m.mu.Unlock()
}

func (m *Manager) allowedUser(id int64) bool {
	m.mu.RLock()
	_, ok := m.allowed[id]
	m.mu.RUnlock()
	return ok
}

// SetRegistry installs the command set, the photo handler and the inline
// callback handler. The /help command is always present.
func (m *Manager) SetRegistry(cmds []Command, photo PhotoHandlerFunc, callback CallbackHandlerFunc) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"h", "start"},
		Description: "show available commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Adapter.SendText(ctx, req.Chat, m.helpText(req.Args),
				&kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
			return err
		},
	})

	byName := map[string]*Command{}
	ordered := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := cmds[i]
		name := strings.TrimSpace(strings.ToLower(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
		ordered = append(ordered, &cc)
		for _, a := range cc.Aliases {
			a = strings.TrimSpace(strings.ToLower(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := byName[a]; !exists {
				byName[a] = &cc
			}
		}
	}

	m.mu.Lock()
	m.cmds = byName
	m.ordered = ordered
	m.photo = photo
	m.callback = callback
	m.mu.Unlock()

	// Best-effort Telegram /menu autocomplete update.
	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := make([]kit.BotCommand, 0, len(ordered))
		for _, c := range ordered {
			menu = append(menu, kit.BotCommand{Command: c.Name, Description: c.Description})
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = up.UpdateMenuCommands(ctx, menu)
		}()
	}
}

// DispatchLoop consumes updates until ctx is done. Handlers run on a small
// worker pool; long scheduling runs are additionally guarded by the per-chat
// in-progress flag, so duplicate uploads are rejected rather than queued.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	const workers = 2

	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.runMu.Lock()
	m.sup = sup
	m.runMu.Unlock()

	m.log.Info("dispatcher started", logx.Int("workers", workers))

	var closeOnce sync.Once
	closeJobs := func() { closeOnce.Do(func() { close(m.jobs) }) }

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job",
									logx.Any("panic", r),
									logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.runMu.Lock()
		m.sup = nil
		m.runMu.Unlock()
		m.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *Manager) routeUpdate(root context.Context, up kit.Update) {
	if up.Kind == kit.UpdateCallback && up.Callback != nil {
		m.routeCallback(root, up)
		return
	}
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message

	if !m.allowedUser(msg.FromID) {
		m.log.Debug("update from unlisted user ignored",
			logx.Int64("from_id", msg.FromID), logx.Int64("chat_id", msg.ChatID))
		return
	}

	if msg.PhotoFileID != "" {
		m.routePhoto(root, up)
		return
	}
	m.routeCommand(root, up)
}

func (m *Manager) routeCallback(root context.Context, up kit.Update) {
	cb := up.Callback

	if !m.allowedUser(cb.FromID) {
		m.log.Debug("callback from unlisted user ignored",
			logx.Int64("from_id", cb.FromID), logx.Int64("chat_id", cb.ChatID))
		return
	}

	m.mu.RLock()
	handler := m.callback
	m.mu.RUnlock()
	if handler == nil {
		return
	}

	rid := uuid.NewString()
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:  cb.FromID,
		Command: "callback",
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", cb.ChatID),
			logx.Int64("from_id", cb.FromID),
			logx.String("cmd", "callback"),
		),
	}
	final := Chain(
		func(ctx context.Context, r *Request) error { return handler(ctx, r, cb) },
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
	)
	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "Busy, try again.")
	}
}

func (m *Manager) routePhoto(root context.Context, up kit.Update) {
	msg := up.Message

	m.mu.RLock()
	photo := m.photo
	m.mu.RUnlock()
	if photo == nil {
		return
	}

	req := m.newRequest(up, "photo", nil)
	final := Chain(
		func(ctx context.Context, r *Request) error {
			return photo(ctx, r, msg.PhotoFileID, msg.Text)
		},
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
	)
	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, req.Chat, "Busy, please try again in a moment.", nil)
	}
}

func (m *Manager) routeCommand(root context.Context, up kit.Update) {
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	m.mu.RLock()
	cmd := m.cmds[word]
	m.mu.RUnlock()

	target := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if cmd == nil {
		_, _ = m.adapter.SendText(root, target, "Unknown command. Try /help.", nil)
		return
	}

	req := m.newRequest(up, cmd.Name, args)
	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)
	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, target, "Busy, please try again in a moment.", nil)
	}
}

func (m *Manager) newRequest(up kit.Update, command string, args []string) *Request {
	msg := up.Message
	rid := uuid.NewString()
	return &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: command,
		Args:    args,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", command),
		),
	}
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being
// closed during shutdown).
func (m *Manager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}
