// Package cron runs the scheduled daily prep briefing.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpoliachik/jpos-agent/internal/agent"
)

const dailyPrepPrompt = `You are generating a morning daily prep briefing.

Do the following:
1. Read the context files from the vault's context directory:
   current-focus.md, goals.md, active-projects.md
2. List today's Todoist tasks using todoist_list_tasks with filter "today"
3. Check for overdue tasks using todoist_list_tasks with filter "overdue"

Then compose a brief, friendly morning briefing (4-6 sentences max) that includes:
- A quick "good morning" greeting
- Today's priority focus area (from context)
- Key tasks for today
- Any overdue items that need attention
- A brief motivational nudge if appropriate

Keep it concise and actionable. Casual tone.`

// AgentService is the orchestration surface the job calls into.
type AgentService interface {
	Handle(ctx context.Context, externalID, prompt, systemContext string, onProgress func(agent.ProgressEvent)) (string, error)
}

// Notifier delivers the briefing to the user's active channel.
type Notifier interface {
	Send(text string) error
}

// DailyPrep fires once per day at a fixed local time in the vault timezone.
type DailyPrep struct {
	svc       AgentService
	notifier  Notifier
	loc       *time.Location
	hour      int
	minute    int
	vaultPath string

	now func() time.Time
}

// NewDailyPrep creates the job. loc is the timezone the schedule and the
// briefing's date context are rendered in.
func NewDailyPrep(svc AgentService, notifier Notifier, loc *time.Location, hour, minute int, vaultPath string) *DailyPrep {
	return &DailyPrep{
		svc:       svc,
		notifier:  notifier,
		loc:       loc,
		hour:      hour,
		minute:    minute,
		vaultPath: vaultPath,
		now:       time.Now,
	}
}

// Run blocks until the context is cancelled, firing the job at each
// scheduled occurrence.
func (j *DailyPrep) Run(ctx context.Context) error {
	for {
		next := j.nextRun(j.now())
		slog.Info("daily prep scheduled", slog.Time("next", next))

		timer := time.NewTimer(next.Sub(j.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			j.runOnce(ctx)
		}
	}
}

// nextRun returns the first scheduled occurrence strictly after now.
func (j *DailyPrep) nextRun(now time.Time) time.Time {
	local := now.In(j.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), j.hour, j.minute, 0, 0, j.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (j *DailyPrep) runOnce(ctx context.Context) {
	slog.Info("running daily prep job")

	result, err := j.svc.Handle(ctx, "cron:daily-prep", dailyPrepPrompt, j.systemContext(), nil)
	if err != nil {
		slog.Error("daily prep failed", slog.String("error", err.Error()))
		j.notify(fmt.Sprintf("⚠️ Daily prep failed: %s", err))
		return
	}
	if result == "" {
		slog.Error("daily prep returned empty result")
		j.notify("⚠️ Daily prep job ran but returned no content. Check logs.")
		return
	}
	j.notify(result)
}

func (j *DailyPrep) systemContext() string {
	local := j.now().In(j.loc)
	return fmt.Sprintf(`CRITICAL: You MUST use tools for every action. NEVER fabricate responses.

Today's date: %s
Current time: %s
Vault path: %s`,
		local.Format("2006-01-02"),
		local.Format("3:04 PM"),
		j.vaultPath)
}

func (j *DailyPrep) notify(text string) {
	if err := j.notifier.Send(text); err != nil {
		slog.Error("daily prep delivery failed", slog.String("error", err.Error()))
	}
}
