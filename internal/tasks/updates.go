package tasks

import "fmt"

// ProgressUpdate represents a progress event during a scheduled job.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Job phase
	Step    int    // Run number of this job since the scheduler started
	Total   int    // Total runs across all jobs so far
	Message string // Human-readable message for display
	Data    any    // Optional job-specific data for advanced UIs
}

// Job phase enumeration
type Phase int

const (
	Resync Phase = iota
	PruneHistory
	RefreshSegments
)

func (p Phase) String() string {
	switch p {
	case Resync:
		return "resync"
	case PruneHistory:
		return "prune_history"
	case RefreshSegments:
		return "refresh_segments"
	default:
		return ""
	}
}

func startedUpdate(job Job, step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   job.Phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Running %s...", job.Name),
	}
}

func finishedUpdate(job Job, step, total int, result Result) ProgressUpdate {
	return ProgressUpdate{
		Phase:   job.Phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("✓ %s: %s", job.Name, result.Summary),
		Data:    result,
	}
}

func failedUpdate(job Job, step, total int, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   job.Phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("✗ %s: %v", job.Name, err),
	}
}
