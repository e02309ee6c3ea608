package progress

import "fmt"

// FormatProgress formats an Event as a human-readable status line.
func FormatProgress(ev Event) string {
	return formatLine(ev.StepID, ev.Status, ev.Message)
}

// FormatStep formats a registry Step using its label.
func FormatStep(st Step) string {
	return formatLine(st.Label, st.Status, st.Message)
}

func formatLine(name string, status StepStatus, message string) string {
	switch status {
	case StatusPending:
		return fmt.Sprintf("  \u25cb %s (pending)", name)
	case StatusRunning:
		return fmt.Sprintf("  \u25cf %s...", name)
	case StatusCompleted:
		return fmt.Sprintf("  \u2713 %s complete", name)
	case StatusWarning:
		if message == "" {
			return fmt.Sprintf("  ! %s warning", name)
		}
		return fmt.Sprintf("  ! %s warning: %s", name, message)
	case StatusError:
		if message == "" {
			return fmt.Sprintf("  \u2717 %s failed", name)
		}
		return fmt.Sprintf("  \u2717 %s failed: %s", name, message)
	default:
		return fmt.Sprintf("  ? %s (unknown status %q)", name, string(status))
	}
}

// FormatSummary formats a Summary as "N / M completed".
func FormatSummary(s Summary) string {
	return fmt.Sprintf("%d / %d completed", s.Completed, s.Total)
}
