// Package agent drives the vision model that reads a timetable image and
// schedules every class it finds through a single calendar tool. All domain
// errors are flattened to prose at this boundary; the model only ever sees
// strings.
package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"classbot/internal/gcal"
	"classbot/internal/schedule"
	logx "classbot/pkg/logx"
)

const toolName = "schedule_recurring_class"

// maxRounds bounds the tool-call loop so a misbehaving model cannot spin
// the conversation forever.
const maxRounds = 8

const instruction = `You are an expert academic scheduler assistant.

YOUR GOAL:
Take an image of a timetable and schedule all the classes found within it into the user's calendar.

STEPS:
1. Analyze the image: look at the provided timetable image and identify every class slot.
2. Extract details for each class:
   * Course code or name (summary)
   * Day of the week (Monday - Friday)
   * Start and end times in 24h HH:MM. Use the slot headers to determine times; slots are generally one hour.
   * Lecturer or venue (description)
3. For EACH class you identify, call the ` + toolName + ` tool.

CRITICAL NOTES:
* Do not ask the user for confirmation for every single event. Plan the schedule and execute the tool calls.
* If the image is blurry or ambiguous, say so instead of guessing.
* Assume the current year for scheduling context.
* When every tool call has returned, reply with a short summary of what was scheduled and anything that failed.`

// Scheduler creates one recurring calendar event from an extracted class
// slot and returns the created event id.
type Scheduler interface {
	ScheduleClass(ctx context.Context, slot schedule.ClassSlot) (string, error)
}

// completionAPI is the slice of the OpenAI-compatible client the runner
// uses. The seam exists for tests.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config selects the OpenAI-compatible endpoint and model.
type Config struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
}

// Runner owns one model endpoint and executes scheduling runs against it.
// The Scheduler is passed per run because each run is bound to one chat's
// session.
type Runner struct {
	api   completionAPI
	model string
	log   logx.Logger
}

func NewRunner(cfg Config, log logx.Logger) *Runner {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		api:   openai.NewClientWithConfig(clientCfg),
		model: cfg.Model,
		log:   log,
	}
}

// Result is the outcome of one scheduling run.
type Result struct {
	Reply     string
	Scheduled int
	Failed    int
}

// Run sends the timetable image (with an optional caption from the user) to
// the model and executes its tool calls sequentially until it produces a
// final text reply. An authorization failure from the calendar aborts the
// whole run; every other tool error is reported back to the model as prose
// and the run continues.
func (r *Runner) Run(ctx context.Context, sched Scheduler, image []byte, caption string) (Result, error) {
	userParts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
				Detail: openai.ImageURLDetailAuto,
			},
		},
	}
	text := "Here is my timetable. Please schedule my classes."
	if caption != "" {
		text = caption
	}
	userParts = append(userParts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: instruction},
		{Role: openai.ChatMessageRoleUser, MultiContent: userParts},
	}

	var res Result
	for round := 0; round < maxRounds; round++ {
		resp, err := r.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    r.model,
			Messages: messages,
			Tools:    []openai.Tool{schedulingTool()},
		})
		if err != nil {
			return res, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return res, errors.New("chat completion returned no choices")
		}

		msg := resp.Choices[0].Message
		messages = append(messages, msg)

		if len(msg.ToolCalls) == 0 {
			res.Reply = msg.Content
			return res, nil
		}

		for _, tc := range msg.ToolCalls {
			out, err := r.execute(ctx, sched, tc, &res)
			if err != nil {
				return res, err
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    out,
				ToolCallID: tc.ID,
			})
		}
	}
	return res, fmt.Errorf("model did not finish within %d rounds", maxRounds)
}

type toolArgs struct {
	Summary     string `json:"summary"`
	DayOfWeek   string `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Description string `json:"description"`
}

// execute runs one tool call and renders its outcome as the prose the model
// expects. The only error it returns is the authorization sentinel, which
// must stop the run rather than be retried blindly by the model.
func (r *Runner) execute(ctx context.Context, sched Scheduler, tc openai.ToolCall, res *Result) (string, error) {
	if tc.Function.Name != toolName {
		res.Failed++
		return fmt.Sprintf("Error: unknown tool %q.", tc.Function.Name), nil
	}

	var args toolArgs
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		res.Failed++
		return fmt.Sprintf("Error scheduling: invalid tool arguments: %v", err), nil
	}

	slot := schedule.ClassSlot{
		Summary:     args.Summary,
		DayOfWeek:   args.DayOfWeek,
		StartTime:   args.StartTime,
		EndTime:     args.EndTime,
		Description: args.Description,
	}

	eventID, err := sched.ScheduleClass(ctx, slot)
	if err != nil {
		if errors.Is(err, gcal.ErrAuthorizationRequired) {
			return "", err
		}
		res.Failed++
		r.log.Warn("scheduling tool failed",
			logx.String("summary", args.Summary), logx.Err(err))
		return fmt.Sprintf("Error scheduling %s: %v", args.Summary, err), nil
	}

	res.Scheduled++
	r.log.Info("class scheduled",
		logx.String("summary", args.Summary),
		logx.String("day", args.DayOfWeek),
		logx.String("event_id", eventID))
	return fmt.Sprintf("Success: Scheduled %s on %ss at %s.", args.Summary, args.DayOfWeek, args.StartTime), nil
}

func schedulingTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        toolName,
			Description: "Schedules a recurring class for the next 3 months, automatically skipping configured holidays.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"summary": {
						Type:        jsonschema.String,
						Description: "Title of the class (e.g., \"CSM 101\").",
					},
					"day_of_week": {
						Type:        jsonschema.String,
						Description: "Day it occurs (e.g., \"Monday\").",
					},
					"start_time": {
						Type:        jsonschema.String,
						Description: "Start time in HH:MM (24h).",
					},
					"end_time": {
						Type:        jsonschema.String,
						Description: "End time in HH:MM (24h).",
					},
					"description": {
						Type:        jsonschema.String,
						Description: "Extra details such as lecturer or venue.",
					},
				},
				Required: []string{"summary", "day_of_week", "start_time", "end_time"},
			},
		},
	}
}
