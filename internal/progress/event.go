// Package progress provides the event primitives, non-blocking hub, and sink
// interfaces that pipeline workers use to report archiving progress without
// sharing mutable counters.
package progress

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageChapterStart   Stage = "CHAPTER_START"
	StageChapterDone    Stage = "CHAPTER_DONE"
	StageChapterSkipped Stage = "CHAPTER_SKIPPED"
	StageChapterFailed  Stage = "CHAPTER_FAILED"
	StagePartVisited    Stage = "PART_VISITED"
	StageImageDone      Stage = "IMAGE_DONE"
	StageImageRejected  Stage = "IMAGE_REJECTED"
)

// Event captures a single milestone of pipeline progress.
type Event struct {
	// RunID identifies the archiving run the event belongs to.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Slot scopes the event to a chapter.
	Slot string
	// URL is the optional page or image URL.
	URL string
	// Bytes carries the payload size for image completions.
	Bytes int64
	// Dur captures execution latency for chapter completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. failure text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageChapterStart, StageChapterDone, StageChapterSkipped, StageChapterFailed,
		StagePartVisited, StageImageDone, StageImageRejected:
	default:
		return errors.New("unknown stage")
	}
	if e.Slot == "" {
		return errors.New("chapter slot is required")
	}
	return nil
}
