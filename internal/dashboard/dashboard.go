// Package dashboard renders the live progress view and the final run
// summary as plain strings. It holds no state of its own; callers pass
// a coordinator snapshot and get text back, so the same renderer
// serves both the interactive UI and headless output.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/bookvox/internal/coordinator"
	"github.com/dgnsrekt/bookvox/internal/worker"
)

const minBarWidth = 10

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	emptyBar   = lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))
)

// Render draws the full dashboard for one snapshot at the given width.
func Render(snap coordinator.Snapshot, width int) string {
	if width < 40 {
		width = 40
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("bookvox"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d/%d units", snap.Completed, snap.TotalUnits)))
	if snap.Failed > 0 {
		b.WriteString(errStyle.Render(fmt.Sprintf("  %d failed", snap.Failed)))
	}
	b.WriteString("\n")

	if barWidth := width - 4; barWidth >= minBarWidth {
		done := snap.Completed + snap.Failed
		b.WriteString(bar(done, snap.TotalUnits, barWidth, stateColor(worker.StateWorking)))
		b.WriteString("\n")
	}

	b.WriteString(statusLine(snap))
	b.WriteString("\n\n")

	for _, p := range snap.Workers {
		b.WriteString(workerLine(p, width))
		b.WriteString("\n")
	}

	if len(snap.Pending) > 0 {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render("Checkpoints waiting:"))
		b.WriteString("\n")
		for _, pc := range snap.Pending {
			line := fmt.Sprintf("  worker %d parked %s (%d requests since last checkpoint)",
				pc.WorkerID, humanize.Time(pc.Since), pc.Stats.SinceCheckpoint)
			b.WriteString(warnStyle.Render(truncate.StringWithTail(line, uint(width), "...")))
			b.WriteString("\n")
		}
		b.WriteString(dimStyle.Render("  complete the verification, then press the worker number to resume"))
		b.WriteString("\n")
	}

	return b.String()
}

// statusLine summarizes elapsed time, rate, and ETA.
func statusLine(snap coordinator.Snapshot) string {
	parts := []string{fmt.Sprintf("elapsed %s", formatDuration(snap.Elapsed))}

	if snap.Rate > 0 {
		parts = append(parts, fmt.Sprintf("%.1f units/min", snap.Rate*60))
	}
	if snap.ETA > 0 {
		parts = append(parts, fmt.Sprintf("done %s", humanize.Time(time.Now().Add(snap.ETA))))
	}
	if snap.Finished {
		parts = append(parts, "finished")
	}

	return dimStyle.Render(strings.Join(parts, "  ·  "))
}

// workerLine draws one worker's row: id, state, bar, counts.
func workerLine(p coordinator.Progress, width int) string {
	label := fmt.Sprintf("worker %-2d %-19s", p.WorkerID, p.State.String())

	barWidth := width - runewidth.StringWidth(label) - 18
	if barWidth < minBarWidth {
		barWidth = minBarWidth
	}

	counts := fmt.Sprintf(" %d/%d", p.Stats.Completed+p.Stats.Failed, p.Stats.Assigned)
	if p.Stats.Failed > 0 {
		counts += errStyle.Render(fmt.Sprintf(" (%d failed)", p.Stats.Failed))
	}

	style := lipgloss.NewStyle().Foreground(stateColor(p.State))
	return style.Render(label) +
		bar(p.Stats.Completed+p.Stats.Failed, p.Stats.Assigned, barWidth, stateColor(p.State)) +
		counts
}

// bar renders a done/total progress bar of the given width.
func bar(done, total, width int, color lipgloss.Color) string {
	if width < minBarWidth {
		return ""
	}

	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}

	filledStyle := lipgloss.NewStyle().Foreground(color)
	return filledStyle.Render(strings.Repeat("█", filled)) +
		emptyBar.Render(strings.Repeat("░", width-filled))
}

func stateColor(s worker.StateType) lipgloss.Color {
	switch s {
	case worker.StateWorking:
		return lipgloss.Color("39")
	case worker.StateAwaitingCheckpoint:
		return lipgloss.Color("214")
	case worker.StateDone:
		return lipgloss.Color("78")
	case worker.StateFailed:
		return lipgloss.Color("196")
	default:
		return lipgloss.Color("243")
	}
}

// RenderSummary draws the final report after a run.
func RenderSummary(s coordinator.Summary) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Run summary"))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("  units      %d\n", s.TotalUnits))
	b.WriteString(okStyle.Render(fmt.Sprintf("  completed  %d", s.Completed)))
	b.WriteString("\n")

	if s.Failed > 0 {
		b.WriteString(errStyle.Render(fmt.Sprintf("  failed     %d  %s", s.Failed, formatIndices(s.FailedIndices))))
		b.WriteString("\n")
	}
	if len(s.MissingIndices) > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("  missing    %d  %s", len(s.MissingIndices), formatIndices(s.MissingIndices))))
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("  duration   %s", formatDuration(s.Duration))))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  workers    %d ok, %d failed", s.WorkersSucceeded, s.WorkersFailed)))
	b.WriteString("\n")

	if s.Success() {
		b.WriteString(okStyle.Render("  every unit converted"))
	} else {
		b.WriteString(warnStyle.Render("  run again to pick up remaining units"))
	}
	b.WriteString("\n")

	return b.String()
}

// formatIndices prints up to eight indices before eliding.
func formatIndices(indices []int) string {
	const maxShown = 8

	shown := indices
	elided := 0
	if len(shown) > maxShown {
		elided = len(shown) - maxShown
		shown = shown[:maxShown]
	}

	parts := make([]string, len(shown))
	for i, idx := range shown {
		parts[i] = fmt.Sprintf("%d", idx)
	}

	out := "[" + strings.Join(parts, " ")
	if elided > 0 {
		out += fmt.Sprintf(" +%d more", elided)
	}
	return out + "]"
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes >= 60 {
		return fmt.Sprintf("%d:%02d:%02d", minutes/60, minutes%60, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
