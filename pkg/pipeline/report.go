package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind names the pipeline that ran.
type JobKind string

const (
	JobPhoto JobKind = "photo"
	JobVideo JobKind = "video"
)

// Report summarises a finished job.
type Report struct {
	ID     uuid.UUID
	Kind   JobKind
	Output string
	// Frames is the number of frames written; 1 for a photo.
	Frames int
	// Declared is the frame count the input container declared.
	Declared     int
	FacesSwapped int
	// Partial is set when a video stopped early; Cause holds the reason.
	Partial  bool
	Cause    error
	Duration time.Duration
}

func newReport(kind JobKind, output string) *Report {
	return &Report{ID: uuid.New(), Kind: kind, Output: output}
}

func (r *Report) String() string {
	output := r.Output
	if output == "" {
		output = "no output written"
	}
	s := fmt.Sprintf("%s job %s: %s, %d frame(s), %d face(s) swapped in %s",
		r.Kind, r.ID.String()[:8], output, r.Frames, r.FacesSwapped, r.Duration.Round(time.Millisecond))
	if r.Partial {
		s += fmt.Sprintf(" (partial: %v)", r.Cause)
	}
	return s
}
