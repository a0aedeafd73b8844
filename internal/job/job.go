package job

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// IsTerminal returns true once the job can no longer change state.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job represents one download attempt.
type Job struct {
	ID              string     `json:"id"`
	State           State      `json:"state"`
	ProgressPercent float64    `json:"progressPercent"`
	SourceURL       string     `json:"sourceUrl"`
	RequestedFormat string     `json:"requestedFormat"`
	QualityLabel    string     `json:"qualityLabel"`
	ResultFilename  string     `json:"resultFilename,omitempty"`
	ErrorDetail     string     `json:"errorDetail,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`

	// displayFilename is what the extractor reported while running. It only
	// becomes ResultFilename when the job succeeds.
	displayFilename string
	downloaded      bool
}

// DisplayFilename returns the last filename reported while running.
func (j *Job) DisplayFilename() string {
	return j.displayFilename
}

// Downloaded reports whether the extractor signalled the end of the transfer.
func (j *Job) Downloaded() bool {
	return j.downloaded
}

// Start moves a created job to running.
func (j *Job) Start(now time.Time) error {
	if j.State != StateCreated {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, StateRunning)
	}

	j.State = StateRunning
	j.ProgressPercent = 0
	j.StartedAt = &now

	return nil
}

// ReportProgress records a progress update. Percentages are clamped to [0,100]
// and never move backwards while the job is running.
func (j *Job) ReportProgress(percent float64, filename string) error {
	if j.State != StateRunning {
		return fmt.Errorf("%w: progress update in state %s", ErrInvalidTransition, j.State)
	}

	percent = roundPercent(percent)
	if percent > j.ProgressPercent {
		j.ProgressPercent = percent
	}

	if filename != "" {
		j.displayFilename = filename
	}

	return nil
}

// MarkDownloaded records that the extractor finished transferring data. The job
// stays running until the orchestrator confirms it, since post-processing can
// still fail.
func (j *Job) MarkDownloaded(filename string) error {
	if err := j.ReportProgress(100, filename); err != nil {
		return err
	}

	j.downloaded = true

	return nil
}

// Succeed finalizes a running job.
func (j *Job) Succeed(filename string, now time.Time) error {
	if j.State != StateRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, StateSucceeded)
	}

	j.State = StateSucceeded
	j.ProgressPercent = 100
	j.ResultFilename = filename
	j.FinishedAt = &now

	return nil
}

// Fail finalizes a running job with an error. Progress is reset. A job that
// is still created may also be failed directly, which only happens when its
// task dies before it could start.
func (j *Job) Fail(detail string, now time.Time) error {
	if j.State.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, StateFailed)
	}

	j.State = StateFailed
	j.ProgressPercent = 0
	j.ErrorDetail = detail
	j.FinishedAt = &now

	return nil
}

// ReplaceErrorDetail swaps the detail of a failed job for a more precise one.
// State, progress and timestamps are left as they are.
func (j *Job) ReplaceErrorDetail(detail string) error {
	if j.State != StateFailed {
		return fmt.Errorf("%w: cannot amend failure of %s job", ErrInvalidTransition, j.State)
	}

	if detail != "" {
		j.ErrorDetail = detail
	}

	return nil
}

func roundPercent(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}

	if p > 100 {
		return 100
	}

	return math.Round(p*10) / 10
}
