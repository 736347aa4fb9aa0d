package archive

import "net/http"

// OrderKey is the canonical chapter ordering: listing section first, then
// chapter number within the section.
type OrderKey struct {
	Section int
	Chapter int
}

// Less reports whether k sorts before other in reading order.
func (k OrderKey) Less(other OrderKey) bool {
	if k.Section != other.Section {
		return k.Section < other.Section
	}
	return k.Chapter < other.Chapter
}

// Chapter is one titled unit of the book, identified by an opaque
// site-assigned slot. Immutable after listing parse.
type Chapter struct {
	Slot  string
	Title string
	Order OrderKey
}

// Part is one fetched page within a chapter. Part numbers are 1-based and
// strictly increasing within a chapter.
type Part struct {
	URL         string
	Number      int
	ChapterSlot string
}

// VisitedPart pairs a traversed part with the body fetched while discovering
// it, so extraction never refetches the page.
type VisitedPart struct {
	Part
	Body []byte
}

// ImageRef identifies one image to download. Sequence is the global insertion
// order within the chapter (part order, then in-page order) and determines
// final page order.
type ImageRef struct {
	SourceURL   string
	ChapterSlot string
	PartNumber  int
	Sequence    int
}

// DownloadedImage is a validated image sitting in chapter scratch storage.
type DownloadedImage struct {
	Ref       ImageRef
	LocalPath string
	Width     int
	Height    int
}

// ChapterArtifact is the terminal output of a successful chapter. Its
// existence at Path is the idempotence marker for re-runs.
type ChapterArtifact struct {
	ChapterSlot string
	Path        string
	PageCount   int
	Skipped     bool
}

// ChapterState is the per-chapter pipeline state machine.
type ChapterState string

// Chapter pipeline states.
const (
	StatePending     ChapterState = "pending"
	StateTraversing  ChapterState = "traversing"
	StateDownloading ChapterState = "downloading"
	StateAssembling  ChapterState = "assembling"
	StateDone        ChapterState = "done"
	StateSkipped     ChapterState = "skipped"
	StateFailed      ChapterState = "failed"
)

// ChapterOutcome records a chapter's terminal state and counters.
type ChapterOutcome struct {
	Chapter         Chapter
	State           ChapterState
	FailedStage     ChapterState
	Err             error
	Artifact        *ChapterArtifact
	Parts           int
	ImagesAttempted int
	ImagesValid     int
	ImagesRejected  int
}

// Page is a fetched HTML page or binary resource.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	UsedJS     bool
}

// ContentType returns the response content type, or "" when unknown.
func (p Page) ContentType() string {
	if p.Headers == nil {
		return ""
	}
	return p.Headers.Get("Content-Type")
}

// IndexEntry is one row of the generated book index.
type IndexEntry struct {
	Title string
	File  string
}
