package anpr

import (
	"time"

	"github.com/google/uuid"
)

// PlaceholderPlate is reported when no plate text could be produced for a frame.
const PlaceholderPlate = "N/A"

type FrameStatus string

const (
	StatusNoDetection     FrameStatus = "NO_DETECTION"
	StatusReadFailed      FrameStatus = "READ_FAILED"
	StatusSuccess         FrameStatus = "SUCCESS"
	StatusModelsNotLoaded FrameStatus = "MODELS_NOT_LOADED"
)

type AccessStatus string

const (
	AccessGranted AccessStatus = "GRANTED"
	AccessDenied  AccessStatus = "DENIED"
)

type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

func (m Mode) Valid() bool {
	return m == ModeSingle || m == ModeMulti
}

type Source string

const (
	SourceStream Source = "stream"
	SourceUpload Source = "upload"
	SourceBatch  Source = "batch"
)

// Box is a pixel-space rectangle, x1/y1 inclusive and x2/y2 exclusive.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }

func (b Box) Empty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// XYXY returns the box in the [x1, y1, x2, y2] wire layout.
func (b Box) XYXY() []int {
	return []int{b.X1, b.Y1, b.X2, b.Y2}
}

// Candidate is a single detector hypothesis for one frame.
type Candidate struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
}

type Recognition struct {
	RawText     string `json:"raw_text"`
	CleanedText string `json:"cleaned_text"`
}

type MatchResult struct {
	Plate    string `json:"plate,omitempty"`
	Distance int    `json:"distance"`
	Found    bool   `json:"found"`
}

// FrameOutcome is the single-result verdict for one frame.
type FrameOutcome struct {
	Status       FrameStatus  `json:"status"`
	PlateText    string       `json:"plate_text"`
	Confidence   float64      `json:"confidence"`
	AccessStatus AccessStatus `json:"access_status"`
	RawText      string       `json:"raw_text,omitempty"`
	CleanedText  string       `json:"cleaned_text,omitempty"`
	Distance     *int         `json:"distance,omitempty"`
}

func (o FrameOutcome) Granted() bool {
	return o.AccessStatus == AccessGranted
}

// DetectionRecord is one per-box verdict in multi-result mode.
type DetectionRecord struct {
	Box         Box     `json:"box"`
	PlateText   string  `json:"plate_text"`
	Confidence  float64 `json:"confidence"`
	Authorized  bool    `json:"authorized"`
	RawText     string  `json:"raw_text,omitempty"`
	CleanedText string  `json:"cleaned_text,omitempty"`
	Distance    *int    `json:"distance,omitempty"`
}

// AccessEvent is a journaled decision for one processed frame.
type AccessEvent struct {
	ID           uuid.UUID
	Source       Source
	Mode         Mode
	SessionID    string
	Status       FrameStatus
	PlateText    string
	RawText      string
	Confidence   float64
	AccessStatus AccessStatus
	Distance     *int
	Detections   []DetectionRecord
	ProcessedAt  time.Time
}

// Decision is what the gate notifier is told about a granted frame.
type Decision struct {
	EventID    uuid.UUID `json:"event_id"`
	Plate      string    `json:"plate"`
	Confidence float64   `json:"confidence"`
	DecidedAt  time.Time `json:"decided_at"`
}
