package session

import "github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"

// ProtocolVersion is stamped on every outbound message. Fields are only ever
// added within a version.
const ProtocolVersion = 1

const (
	TypeFrame              = "frame"
	TypeImage              = "image"
	TypeAddTrustedPlate    = "add_trusted_plate"
	TypeRemoveTrustedPlate = "remove_trusted_plate"
	TypeStop               = "stop"

	TypeDetections    = "detections"
	TypeResult        = "result"
	TypeTrustedUpdate = "trusted_update"
	TypeReset         = "reset"
	TypeError         = "error"
)

// Inbound is the union of all client messages; only the fields relevant to
// Type are read.
type Inbound struct {
	Type  string `json:"type"`
	V     int    `json:"v,omitempty"`
	Image string `json:"image,omitempty"`
	Plate string `json:"plate,omitempty"`
}

type Detection struct {
	BBox       []int   `json:"bbox"`
	Plate      string  `json:"plate"`
	Confidence float64 `json:"confidence"`
	Authorized bool    `json:"authorized"`
	OCRRaw     *string `json:"ocr_raw,omitempty"`
	OCRCleaned *string `json:"ocr_cleaned,omitempty"`
}

type DetectionsReply struct {
	Type       string      `json:"type"`
	V          int         `json:"v"`
	Detections []Detection `json:"detections"`
}

type ResultReply struct {
	Type           string            `json:"type"`
	V              int               `json:"v"`
	Status         anpr.FrameStatus  `json:"status"`
	PlateText      string            `json:"plate_text"`
	YoloConfidence float64           `json:"yolo_confidence"`
	AccessStatus   anpr.AccessStatus `json:"access_status"`
}

type TrustedUpdateReply struct {
	Type     string   `json:"type"`
	V        int      `json:"v"`
	Plates   []string `json:"plates"`
	Accepted bool     `json:"accepted"`
}

type ResetReply struct {
	Type string `json:"type"`
	V    int    `json:"v"`
}

type ErrorReply struct {
	Type    string `json:"type"`
	V       int    `json:"v"`
	Error   string `json:"error"`
	Request string `json:"request"`
}

func NewResultReply(o anpr.FrameOutcome) ResultReply {
	return ResultReply{
		Type:           TypeResult,
		V:              ProtocolVersion,
		Status:         o.Status,
		PlateText:      o.PlateText,
		YoloConfidence: o.Confidence,
		AccessStatus:   o.AccessStatus,
	}
}

func newDetectionsReply(records []anpr.DetectionRecord, includeOCR bool) DetectionsReply {
	out := make([]Detection, 0, len(records))
	for _, r := range records {
		d := Detection{
			BBox:       r.Box.XYXY(),
			Plate:      r.PlateText,
			Confidence: r.Confidence,
			Authorized: r.Authorized,
		}
		if includeOCR {
			raw, cleaned := r.RawText, r.CleanedText
			d.OCRRaw = &raw
			d.OCRCleaned = &cleaned
		}
		out = append(out, d)
	}
	return DetectionsReply{Type: TypeDetections, V: ProtocolVersion, Detections: out}
}

func newErrorReply(request string, err error) ErrorReply {
	return ErrorReply{Type: TypeError, V: ProtocolVersion, Error: err.Error(), Request: request}
}
