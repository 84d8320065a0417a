package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/fuzzy"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/utils"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/vision"
)

var ErrDetectorFailed = errors.New("detector failed")

type DetectOptions struct {
	ConfidenceFloor float64
	InferenceSize   int
}

// Detector finds plate candidates in a whole frame. Output order carries no meaning.
type Detector interface {
	Detect(ctx context.Context, img image.Image, opts DetectOptions) ([]anpr.Candidate, error)
}

// Recognizer reads text blocks from a cropped plate region.
type Recognizer interface {
	Recognize(ctx context.Context, crop image.Image) ([]string, error)
}

// liveness is implemented by backends that run out of process and can die.
type liveness interface {
	Alive() bool
}

// PlateSource hands out point-in-time copies of the trusted registry.
type PlateSource interface {
	Snapshot() []string
}

type Options struct {
	ConfidenceFloor float64
	InferenceSize   int
	MaxFrameSide    int
	PlateClassID    int
	FilterByClass   bool
	PadX            float64
	PadY            float64
}

func DefaultOptions() Options {
	return Options{
		ConfidenceFloor: 0.25,
		InferenceSize:   640,
		PlateClassID:    0,
		FilterByClass:   true,
		PadX:            0.10,
		PadY:            0.10,
	}
}

type Pipeline struct {
	detector   Detector
	recognizer Recognizer
	plates     PlateSource
	matcher    *fuzzy.Matcher
	opts       Options
	log        zerolog.Logger
}

func New(detector Detector, recognizer Recognizer, plates PlateSource, matcher *fuzzy.Matcher, opts Options, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		detector:   detector,
		recognizer: recognizer,
		plates:     plates,
		matcher:    matcher,
		opts:       opts,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// read is one candidate that made it through cropping and recognition.
type read struct {
	candidate anpr.Candidate
	crop      anpr.Box
	text      anpr.Recognition
}

// scan runs the detector once and the recognizer once per usable candidate. It reports the
// plate-class candidates that were seen, the reads that survived and the highest
// confidence among non-empty crops whether or not recognition worked on them.
func (p *Pipeline) scan(ctx context.Context, img image.Image) (seen int, reads []read, topConfidence float64, err error) {
	frame, scale := vision.Downscale(img, p.opts.MaxFrameSide)

	candidates, err := p.detector.Detect(ctx, frame, DetectOptions{
		ConfidenceFloor: p.opts.ConfidenceFloor,
		InferenceSize:   p.opts.InferenceSize,
	})
	if err != nil {
		return 0, nil, 0, fmt.Errorf("%w: %v", ErrDetectorFailed, err)
	}

	bounds := img.Bounds()
	for _, c := range candidates {
		if p.opts.FilterByClass && c.ClassID != p.opts.PlateClassID {
			continue
		}
		seen++

		c.Box = scale.Apply(c.Box)
		crop := vision.PadBox(c.Box, p.opts.PadX, p.opts.PadY, bounds.Dx(), bounds.Dy())
		if crop.Empty() {
			continue
		}
		if c.Confidence > topConfidence {
			topConfidence = c.Confidence
		}

		blocks, err := p.recognizer.Recognize(ctx, vision.Crop(img, crop))
		if err != nil {
			if ctx.Err() != nil {
				return seen, nil, topConfidence, ctx.Err()
			}
			p.log.Warn().
				Err(err).
				Float64("confidence", c.Confidence).
				Ints("box", c.Box.XYXY()).
				Msg("recognizer failed on crop, skipping candidate")
			continue
		}

		raw := utils.JoinTextBlocks(blocks)
		reads = append(reads, read{
			candidate: c,
			crop:      crop,
			text:      anpr.Recognition{RawText: raw, CleanedText: utils.CleanPlateText(raw)},
		})
	}
	return seen, reads, topConfidence, nil
}

// ProcessSingle fuses every candidate of the frame into one verdict.
func (p *Pipeline) ProcessSingle(ctx context.Context, img image.Image) (anpr.FrameOutcome, error) {
	seen, reads, topConfidence, err := p.scan(ctx, img)
	if err != nil {
		return anpr.FrameOutcome{}, err
	}

	if seen == 0 {
		return anpr.FrameOutcome{
			Status:       anpr.StatusNoDetection,
			PlateText:    anpr.PlaceholderPlate,
			AccessStatus: anpr.AccessDenied,
		}, nil
	}

	var best *read
	for i := range reads {
		r := &reads[i]
		if r.text.CleanedText == "" {
			continue
		}
		if best == nil || r.candidate.Confidence > best.candidate.Confidence {
			best = r
		}
	}

	if best == nil {
		return anpr.FrameOutcome{
			Status:       anpr.StatusReadFailed,
			PlateText:    anpr.PlaceholderPlate,
			Confidence:   topConfidence,
			AccessStatus: anpr.AccessDenied,
		}, nil
	}

	outcome := anpr.FrameOutcome{
		Status:       anpr.StatusSuccess,
		PlateText:    best.text.CleanedText,
		Confidence:   best.candidate.Confidence,
		AccessStatus: anpr.AccessDenied,
		RawText:      best.text.RawText,
		CleanedText:  best.text.CleanedText,
	}

	match := p.matcher.Match(best.text.CleanedText, p.plates.Snapshot())
	if match.Found {
		d := match.Distance
		outcome.AccessStatus = anpr.AccessGranted
		outcome.PlateText = match.Plate
		outcome.Distance = &d
	}

	p.log.Debug().
		Str("status", string(outcome.Status)).
		Str("plate", outcome.PlateText).
		Str("raw", outcome.RawText).
		Float64("confidence", outcome.Confidence).
		Str("access", string(outcome.AccessStatus)).
		Msg("frame processed")

	return outcome, nil
}

// ProcessMulti returns one independently matched record per surviving candidate.
func (p *Pipeline) ProcessMulti(ctx context.Context, img image.Image) ([]anpr.DetectionRecord, error) {
	_, reads, _, err := p.scan(ctx, img)
	if err != nil {
		return nil, err
	}

	records := make([]anpr.DetectionRecord, 0, len(reads))
	if len(reads) == 0 {
		return records, nil
	}

	plates := p.plates.Snapshot()
	for _, r := range reads {
		rec := anpr.DetectionRecord{
			Box:         r.candidate.Box,
			PlateText:   r.text.CleanedText,
			Confidence:  r.candidate.Confidence,
			RawText:     r.text.RawText,
			CleanedText: r.text.CleanedText,
		}
		if match := p.matcher.Match(r.text.CleanedText, plates); match.Found {
			d := match.Distance
			rec.Authorized = true
			rec.PlateText = match.Plate
			rec.Distance = &d
		}
		records = append(records, rec)
	}
	return records, nil
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// Ready is false once an out-of-process detector or recognizer has stopped.
func (p *Pipeline) Ready() bool {
	for _, b := range []any{p.detector, p.recognizer} {
		if l, ok := b.(liveness); ok && !l.Alive() {
			return false
		}
	}
	return true
}
