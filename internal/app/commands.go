package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"classbot/internal/agent"
	"classbot/internal/gcal"
	"classbot/internal/schedule"
	"classbot/internal/session"
	kit "classbot/internal/transport"
	"classbot/internal/transport/telegram/router"
	logx "classbot/pkg/logx"
	"classbot/pkg/tgui"
)

const authorizeHint = "I can't reach your calendar yet. Run the bot once with <code>-authorize</code> on the host to grant access, then resend the timetable."

// calendar returns the shared calendar client, building it on first use.
// The lazy build lets the bot start (and answer /help) before the OAuth
// token exists; scheduling attempts then surface the authorize hint.
func (a *App) calendar(ctx context.Context) (*gcal.Client, error) {
	a.calMu.Lock()
	defer a.calMu.Unlock()
	if a.cal != nil {
		return a.cal, nil
	}
	cfg := a.cfgm.Get()
	cal, err := gcal.NewClient(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.TokenDirOrDefault(),
		a.log.With(logx.String("comp", "gcal")))
	if err != nil {
		return nil, err
	}
	a.cal = cal
	return cal, nil
}

// runScheduler binds one agent run to the chat that started it: every
// created event is journaled into that chat's session so /undo can find it.
type runScheduler struct {
	planner    schedule.Planner
	cal        *gcal.Client
	calendarID string
	sess       *session.Session
}

func (s *runScheduler) ScheduleClass(ctx context.Context, slot schedule.ClassSlot) (string, error) {
	req, err := s.planner.BuildEventRequest(slot, time.Now())
	if err != nil {
		return "", err
	}
	id, err := s.cal.CreateEvent(ctx, s.calendarID, req)
	if err != nil {
		return "", err
	}
	s.sess.Record(ctx, id, slot.Summary)
	return id, nil
}

func (a *App) commands() []router.Command {
	return []router.Command{
		{
			Name:        "undo",
			Description: "Delete the events created from your last timetable",
			Usage:       "/undo",
			Timeout:     2 * time.Minute,
			Handle:      a.cmdUndo,
		},
		{
			Name:        "events",
			Aliases:     []string{"ev"},
			Description: "List upcoming calendar events",
			Usage:       "/events [count]",
			Timeout:     30 * time.Second,
			Handle:      a.cmdEvents,
		},
		{
			Name:        "calendars",
			Description: "List calendars visible to the bot",
			Usage:       "/calendars",
			Timeout:     30 * time.Second,
			Handle:      a.cmdCalendars,
		},
		{
			Name:        "status",
			Description: "Show bot status",
			Usage:       "/status",
			Handle:      a.cmdStatus,
		},
	}
}

func htmlOpts() *kit.SendOptions {
	return &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
}

func (a *App) reply(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, htmlOpts())
	return err
}

// cmdUndo asks for confirmation before deleting; the actual compensation
// runs from the inline button callback.
func (a *App) cmdUndo(ctx context.Context, req *router.Request) error {
	sess := a.sessions.Get(ctx, req.Chat.ChatID)
	if sess.Busy() {
		return a.reply(ctx, req, "Still working on your previous timetable; try /undo once it finishes.")
	}
	created := sess.Created()
	if len(created) == 0 {
		return a.reply(ctx, req, "Nothing to undo.")
	}

	opt := htmlOpts()
	opt.ReplyMarkupAdapter = tgui.Confirm(
		tgui.Btn("Delete them", tgui.Data("undo", "yes", "")),
		tgui.Btn("Keep them", tgui.Data("undo", "no", "")),
	)
	text := fmt.Sprintf("Delete the %d event(s) created from your last timetable?", len(created))
	_, err := req.Adapter.SendText(ctx, req.Chat, text, opt)
	return err
}

// handleCallback serves the /undo confirm keyboard.
func (a *App) handleCallback(ctx context.Context, req *router.Request, cb *kit.Callback) error {
	scope, action, _ := tgui.Split(cb.Data)
	if scope != "undo" {
		return req.Adapter.AnswerCallback(ctx, cb.ID, "")
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}

	if action != "yes" {
		_ = req.Adapter.AnswerCallback(ctx, cb.ID, "")
		return req.Adapter.EditText(ctx, ref, "Kept your events.", htmlOpts())
	}

	sess := a.sessions.Get(ctx, cb.ChatID)
	if sess.Busy() {
		return req.Adapter.AnswerCallback(ctx, cb.ID, "Still working on a timetable, try again shortly.")
	}
	if len(sess.Created()) == 0 {
		_ = req.Adapter.AnswerCallback(ctx, cb.ID, "")
		return req.Adapter.EditText(ctx, ref, "Nothing to undo.", htmlOpts())
	}

	cal, err := a.calendar(ctx)
	if err != nil {
		_ = req.Adapter.AnswerCallback(ctx, cb.ID, "")
		if errors.Is(err, gcal.ErrAuthorizationRequired) {
			return req.Adapter.EditText(ctx, ref, authorizeHint, htmlOpts())
		}
		return req.Adapter.EditText(ctx, ref, "Calendar error: "+html.EscapeString(err.Error()), htmlOpts())
	}

	res := sess.Undo(ctx, cal, a.cfgm.Get().Calendar.ID())

	var b strings.Builder
	if len(res.Deleted) > 0 {
		fmt.Fprintf(&b, "Deleted %d event(s):\n", len(res.Deleted))
		for _, e := range res.Deleted {
			fmt.Fprintf(&b, "• %s\n", html.EscapeString(e.Summary))
		}
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(&b, "Could not delete %d event(s) (kept for a later /undo):\n", len(res.Failed))
		for _, e := range res.Failed {
			fmt.Fprintf(&b, "• %s\n", html.EscapeString(e.Summary))
		}
	}
	req.Logger.Info("undo finished",
		logx.Int("deleted", len(res.Deleted)),
		logx.Int("failed", len(res.Failed)))

	_ = req.Adapter.AnswerCallback(ctx, cb.ID, "")
	return req.Adapter.EditText(ctx, ref, strings.TrimRight(b.String(), "\n"), htmlOpts())
}

func (a *App) cmdEvents(ctx context.Context, req *router.Request) error {
	cfg := a.cfgm.Get()
	max := cfg.Calendar.MaxListOrDefault()
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			return a.reply(ctx, req, "Usage: /events [count]")
		}
		max = n
	}

	cal, err := a.calendar(ctx)
	if err != nil {
		if errors.Is(err, gcal.ErrAuthorizationRequired) {
			return a.reply(ctx, req, authorizeHint)
		}
		return a.reply(ctx, req, "Calendar error: "+html.EscapeString(err.Error()))
	}

	events, err := cal.ListEvents(ctx, cfg.Calendar.ID(), max)
	if err != nil {
		return a.reply(ctx, req, "Could not list events: "+html.EscapeString(err.Error()))
	}
	if len(events) == 0 {
		return a.reply(ctx, req, "No upcoming events.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Next %d event(s)</b>\n", len(events))
	for _, e := range events {
		fmt.Fprintf(&b, "• %s — <code>%s</code>\n", html.EscapeString(e.Summary), html.EscapeString(e.Start))
	}
	return a.reply(ctx, req, strings.TrimRight(b.String(), "\n"))
}

func (a *App) cmdCalendars(ctx context.Context, req *router.Request) error {
	cfg := a.cfgm.Get()

	cal, err := a.calendar(ctx)
	if err != nil {
		if errors.Is(err, gcal.ErrAuthorizationRequired) {
			return a.reply(ctx, req, authorizeHint)
		}
		return a.reply(ctx, req, "Calendar error: "+html.EscapeString(err.Error()))
	}

	cals, err := cal.ListCalendars(ctx, cfg.Calendar.MaxListOrDefault())
	if err != nil {
		return a.reply(ctx, req, "Could not list calendars: "+html.EscapeString(err.Error()))
	}
	if len(cals) == 0 {
		return a.reply(ctx, req, "No calendars visible.")
	}

	active := cfg.Calendar.ID()
	var b strings.Builder
	b.WriteString("<b>Calendars</b>\n")
	for _, c := range cals {
		marker := ""
		if c.ID == active {
			marker = " (active)"
		}
		fmt.Fprintf(&b, "• %s — <code>%s</code>%s\n",
			html.EscapeString(c.Summary), html.EscapeString(c.ID), marker)
	}
	return a.reply(ctx, req, strings.TrimRight(b.String(), "\n"))
}

func (a *App) cmdStatus(ctx context.Context, req *router.Request) error {
	cfg := a.cfgm.Get()
	sess := a.sessions.Get(ctx, req.Chat.ChatID)

	state := "idle"
	if sess.Busy() {
		state = "processing a timetable"
	}

	a.calMu.Lock()
	calState := "not connected yet"
	if a.cal != nil {
		calState = "connected"
	}
	a.calMu.Unlock()

	driver := "disabled"
	if cfg.Storage != nil && a.store != nil {
		driver = cfg.Storage.Driver
	}

	var counters string
	if a.sup != nil {
		c := a.sup.Counters()
		counters = fmt.Sprintf("%d active / %d started", c.Active, c.Started)
	}

	var b strings.Builder
	b.WriteString("<b>Status</b>\n")
	fmt.Fprintf(&b, "Session: %s, %d event(s) undoable\n", state, len(sess.Created()))
	fmt.Fprintf(&b, "Calendar: %s (<code>%s</code>)\n", calState, html.EscapeString(cfg.Calendar.ID()))
	fmt.Fprintf(&b, "Holidays loaded: %d\n", len(a.currentHolidays()))
	fmt.Fprintf(&b, "Journal: %s\n", driver)
	if counters != "" {
		fmt.Fprintf(&b, "Workers: %s\n", counters)
	}
	return a.reply(ctx, req, strings.TrimRight(b.String(), "\n"))
}

// handlePhoto is the main flow: a photo with an optional caption is one
// scheduling run. One run per chat at a time.
func (a *App) handlePhoto(ctx context.Context, req *router.Request, fileID, caption string) error {
	sess := a.sessions.Get(ctx, req.Chat.ChatID)
	if !sess.TryBegin() {
		return a.reply(ctx, req, "I'm still working on your previous timetable. Send it again when I reply.")
	}
	defer sess.End()

	progress, err := req.Adapter.SendText(ctx, req.Chat, "Reading your timetable…", htmlOpts())
	if err != nil {
		return err
	}
	finish := func(text string) error {
		if err := req.Adapter.EditText(ctx, progress, text, htmlOpts()); err != nil {
			return a.reply(ctx, req, text)
		}
		return nil
	}

	image, err := req.Adapter.DownloadFile(ctx, fileID)
	if err != nil {
		req.Logger.Warn("photo download failed", logx.Err(err))
		return finish("Could not download that photo, please try again.")
	}

	cal, err := a.calendar(ctx)
	if err != nil {
		if errors.Is(err, gcal.ErrAuthorizationRequired) {
			return finish(authorizeHint)
		}
		req.Logger.Error("calendar client", logx.Err(err))
		return finish("Calendar error: " + html.EscapeString(err.Error()))
	}

	cfg := a.cfgm.Get()
	sched := &runScheduler{
		planner:    schedule.Planner{Holidays: a.currentHolidays()},
		cal:        cal,
		calendarID: cfg.Calendar.ID(),
		sess:       sess,
	}

	res, err := a.runner.Run(ctx, sched, image, caption)
	if err != nil {
		if errors.Is(err, gcal.ErrAuthorizationRequired) {
			return finish(authorizeHint)
		}
		req.Logger.Error("agent run failed", logx.Err(err))
		return finish("Something went wrong while reading the timetable, please try again.")
	}

	req.Logger.Info("scheduling run finished",
		logx.Int("scheduled", res.Scheduled),
		logx.Int("failed", res.Failed))
	return finish(resultText(res))
}

func resultText(res agent.Result) string {
	reply := strings.TrimSpace(res.Reply)
	if reply == "" {
		switch {
		case res.Scheduled > 0 && res.Failed == 0:
			reply = fmt.Sprintf("Done: scheduled %d class(es). Use /undo if something looks off.", res.Scheduled)
		case res.Scheduled > 0:
			reply = fmt.Sprintf("Scheduled %d class(es); %d failed. Use /undo to roll back the rest.", res.Scheduled, res.Failed)
		case res.Failed > 0:
			reply = "I couldn't schedule anything from that image."
		default:
			reply = "I didn't find any classes in that image."
		}
	}
	return html.EscapeString(reply)
}
