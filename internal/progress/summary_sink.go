package progress

import "sync"

// Summary aggregates a whole run for the end-of-run report.
type Summary struct {
	ChaptersDone    int
	ChaptersSkipped int
	ChaptersFailed  int
	PartsVisited    int
	ImagesDone      int
	ImagesRejected  int
	BytesDownloaded int64
	FailedSlots     []string
}

// SummarySink folds the event stream into run totals. Snapshot may be read
// concurrently with the hub still running.
type SummarySink struct {
	mu  sync.Mutex
	sum Summary
}

// NewSummarySink returns an empty summary accumulator.
func NewSummarySink() *SummarySink {
	return &SummarySink{}
}

// Observe folds one event into the totals.
func (s *SummarySink) Observe(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch evt.Stage {
	case StageChapterDone:
		s.sum.ChaptersDone++
	case StageChapterSkipped:
		s.sum.ChaptersSkipped++
	case StageChapterFailed:
		s.sum.ChaptersFailed++
		s.sum.FailedSlots = append(s.sum.FailedSlots, evt.Slot)
	case StagePartVisited:
		s.sum.PartsVisited++
	case StageImageDone:
		s.sum.ImagesDone++
		s.sum.BytesDownloaded += evt.Bytes
	case StageImageRejected:
		s.sum.ImagesRejected++
	}
}

// Close implements the Sink interface; it performs no action.
func (s *SummarySink) Close() error { return nil }

// Snapshot returns a copy of the current totals.
func (s *SummarySink) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sum
	out.FailedSlots = append([]string(nil), s.sum.FailedSlots...)
	return out
}
