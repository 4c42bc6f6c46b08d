package notifier

import (
	"fmt"
	"strings"
	"time"

	"StreakStake/internal/model"
)

// FormatSweepReport formats one resolution sweep for the ops chat.
func FormatSweepReport(r model.SweepReport) string {
	var b strings.Builder

	icon := "✅"
	if r.Errors > 0 {
		icon = "⚠️"
	}
	b.WriteString(fmt.Sprintf("%s <b>Resolution sweep</b> | %s\n\n", icon, r.StartedAt.UTC().Format("2006-01-02 15:04 MST")))
	b.WriteString(fmt.Sprintf("Examined: %d\n", r.Examined))
	b.WriteString(fmt.Sprintf("Succeeded: %d | Failed: %d\n", r.Succeeded, r.Failed))
	if r.Deferred > 0 {
		b.WriteString(fmt.Sprintf("Deferred (back-off): %d\n", r.Deferred))
	}
	if r.MissionsExpired > 0 {
		b.WriteString(fmt.Sprintf("Missions expired: %d\n", r.MissionsExpired))
	}
	if r.Errors > 0 {
		b.WriteString(fmt.Sprintf("Errors: %d (retried next cycle)\n", r.Errors))
	}
	b.WriteString(fmt.Sprintf("Took: %s\n", r.Duration.Round(time.Millisecond)))
	return b.String()
}

// FormatStatus formats the job status reply for the /status command.
func FormatStatus(last model.SweepReport, active int, next time.Time) string {
	var b strings.Builder
	b.WriteString("📦 <b>Engine status</b>\n\n")
	b.WriteString(fmt.Sprintf("Active contracts: %d\n", active))
	if last.StartedAt.IsZero() {
		b.WriteString("Last sweep: never\n")
	} else {
		b.WriteString(fmt.Sprintf("Last sweep: %s (%d settled, %d errors)\n",
			last.StartedAt.UTC().Format("2006-01-02 15:04"), last.Succeeded+last.Failed, last.Errors))
	}
	if !next.IsZero() {
		b.WriteString(fmt.Sprintf("Next sweep: %s\n", next.UTC().Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatHelp lists the ops commands.
func FormatHelp() string {
	return "Available commands:\n• /sweep run the resolution job now\n• /status show job status"
}
