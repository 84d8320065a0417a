package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/fuzzy"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/registry"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/repository"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/utils"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/vision"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrServiceUnavailable = errors.New("recognition models are not loaded")
	ErrJournalDisabled    = errors.New("event journal is not configured")
)

// FrameProcessor is satisfied by *pipeline.Pipeline.
type FrameProcessor interface {
	ProcessSingle(ctx context.Context, img image.Image) (anpr.FrameOutcome, error)
	ProcessMulti(ctx context.Context, img image.Image) ([]anpr.DetectionRecord, error)
}

// Journal is satisfied by *repository.AccessEventRepository.
type Journal interface {
	CreateAccessEvent(ctx context.Context, event *anpr.AccessEvent) error
	FindEvents(ctx context.Context, f repository.EventFilter) ([]repository.AccessEvent, error)
	DeleteOldEvents(ctx context.Context, days int) (int64, error)
	CountByAccessStatus(ctx context.Context, since time.Time) ([]repository.StatusCount, error)
}

type GateNotifier interface {
	Notify(ctx context.Context, d anpr.Decision) error
}

type FrameMeta struct {
	Source    anpr.Source
	SessionID string
}

type ANPRService struct {
	frames  FrameProcessor
	store   *registry.Store
	matcher *fuzzy.Matcher
	journal Journal
	gate    GateNotifier
	log     zerolog.Logger
}

// NewANPRService wires the frame pipeline to the registry. frames may be nil
// when the recognition collaborators failed to start; journal and gate are
// optional.
func NewANPRService(frames FrameProcessor, store *registry.Store, matcher *fuzzy.Matcher, journal Journal, gate GateNotifier, log zerolog.Logger) *ANPRService {
	return &ANPRService{
		frames:  frames,
		store:   store,
		matcher: matcher,
		journal: journal,
		gate:    gate,
		log:     log,
	}
}

// Available is false when no models were loaded or the loaded backend has since died.
func (s *ANPRService) Available() bool {
	if s.frames == nil {
		return false
	}
	if r, ok := s.frames.(interface{ Ready() bool }); ok {
		return r.Ready()
	}
	return true
}

func (s *ANPRService) JournalEnabled() bool {
	return s.journal != nil
}

func (s *ANPRService) decode(data []byte) (image.Image, error) {
	if !s.Available() {
		return nil, ErrServiceUnavailable
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image is empty", ErrInvalidInput)
	}
	img, err := vision.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return img, nil
}

// frameError reports a failure caused by the backend dying mid-frame as unavailability.
func (s *ANPRService) frameError(err error) error {
	if !s.Available() {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return err
}

// ProcessSingle decodes an encoded frame and returns its single verdict.
func (s *ANPRService) ProcessSingle(ctx context.Context, data []byte, meta FrameMeta) (anpr.FrameOutcome, error) {
	img, err := s.decode(data)
	if err != nil {
		return anpr.FrameOutcome{}, err
	}

	outcome, err := s.frames.ProcessSingle(ctx, img)
	if err != nil {
		s.log.Error().Err(err).Str("source", string(meta.Source)).Msg("failed to process frame")
		return anpr.FrameOutcome{}, s.frameError(err)
	}

	event := &anpr.AccessEvent{
		ID:           uuid.New(),
		Source:       meta.Source,
		Mode:         anpr.ModeSingle,
		SessionID:    meta.SessionID,
		Status:       outcome.Status,
		PlateText:    outcome.PlateText,
		RawText:      outcome.RawText,
		Confidence:   outcome.Confidence,
		AccessStatus: outcome.AccessStatus,
		Distance:     outcome.Distance,
		ProcessedAt:  time.Now().UTC(),
	}
	s.record(ctx, event)

	s.log.Info().
		Str("source", string(meta.Source)).
		Str("status", string(outcome.Status)).
		Str("plate", outcome.PlateText).
		Float64("confidence", outcome.Confidence).
		Str("access_status", string(outcome.AccessStatus)).
		Msg("processed frame")

	return outcome, nil
}

// ProcessMulti decodes an encoded frame and returns one record per readable plate.
func (s *ANPRService) ProcessMulti(ctx context.Context, data []byte, meta FrameMeta) ([]anpr.DetectionRecord, error) {
	img, err := s.decode(data)
	if err != nil {
		return nil, err
	}

	records, err := s.frames.ProcessMulti(ctx, img)
	if err != nil {
		s.log.Error().Err(err).Str("source", string(meta.Source)).Msg("failed to process frame")
		return nil, s.frameError(err)
	}

	event := summarize(records)
	event.ID = uuid.New()
	event.Source = meta.Source
	event.SessionID = meta.SessionID
	event.ProcessedAt = time.Now().UTC()
	s.record(ctx, event)

	s.log.Debug().
		Str("source", string(meta.Source)).
		Int("detections", len(records)).
		Str("access_status", string(event.AccessStatus)).
		Msg("processed frame")

	return records, nil
}

// summarize folds multi-mode records into one journal event. The headline
// plate is the most confident authorized record, or the most confident
// record when none is authorized.
func summarize(records []anpr.DetectionRecord) *anpr.AccessEvent {
	event := &anpr.AccessEvent{
		Mode:         anpr.ModeMulti,
		Status:       anpr.StatusNoDetection,
		PlateText:    anpr.PlaceholderPlate,
		AccessStatus: anpr.AccessDenied,
		Detections:   records,
	}

	var best *anpr.DetectionRecord
	for i := range records {
		r := &records[i]
		switch {
		case best == nil:
			best = r
		case r.Authorized && !best.Authorized:
			best = r
		case r.Authorized == best.Authorized && r.Confidence > best.Confidence:
			best = r
		}
	}
	if best == nil {
		return event
	}

	event.Status = anpr.StatusSuccess
	event.PlateText = best.PlateText
	event.RawText = best.RawText
	event.Confidence = best.Confidence
	event.Distance = best.Distance
	if best.Authorized {
		event.AccessStatus = anpr.AccessGranted
	}
	return event
}

func (s *ANPRService) record(ctx context.Context, event *anpr.AccessEvent) {
	if s.journal != nil {
		if err := s.journal.CreateAccessEvent(ctx, event); err != nil {
			s.log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Msg("failed to journal access event")
		}
	}

	if s.gate == nil || event.AccessStatus != anpr.AccessGranted {
		return
	}
	decision := anpr.Decision{
		EventID:    event.ID,
		Plate:      event.PlateText,
		Confidence: event.Confidence,
		DecidedAt:  event.ProcessedAt,
	}
	if err := s.gate.Notify(ctx, decision); err != nil {
		s.log.Warn().
			Err(err).
			Str("plate", event.PlateText).
			Msg("failed to notify gate")
	}
}

// Match checks free text against the current registry without running recognition.
func (s *ANPRService) Match(text string) anpr.MatchResult {
	return s.matcher.Match(text, s.store.Snapshot())
}

func (s *ANPRService) TrustedPlates() []string {
	return s.store.Snapshot()
}

func (s *ANPRService) AddTrustedPlate(plate string) (registry.Mutation, error) {
	m, err := s.store.Add(plate)
	if err != nil {
		return m, s.mutationError(err, "add")
	}
	return m, nil
}

func (s *ANPRService) RemoveTrustedPlate(plate string) (registry.Mutation, error) {
	m, err := s.store.Remove(plate)
	if err != nil {
		return m, s.mutationError(err, "remove")
	}
	return m, nil
}

func (s *ANPRService) mutationError(err error, op string) error {
	if errors.Is(err, registry.ErrInvalidPlate) {
		return fmt.Errorf("%w: plate cannot be empty after normalization", ErrInvalidInput)
	}
	s.log.Error().Err(err).Str("op", op).Msg("failed to update trusted registry")
	return fmt.Errorf("failed to %s trusted plate: %w", op, err)
}

type EventQuery struct {
	Plate        *string
	Status       *string
	AccessStatus *string
	From         *string
	To           *string
	Limit        int
	Offset       int
}

func (s *ANPRService) FindEvents(ctx context.Context, q EventQuery) ([]EventInfo, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}

	f := repository.EventFilter{
		Status:       q.Status,
		AccessStatus: q.AccessStatus,
	}
	if q.Plate != nil {
		normalized := utils.NormalizePlate(*q.Plate)
		if normalized != "" {
			f.Plate = &normalized
		}
	}

	if q.From != nil && *q.From != "" {
		t, err := time.Parse(time.RFC3339, *q.From)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		f.From = &t
	}
	if q.To != nil && *q.To != "" {
		t, err := time.Parse(time.RFC3339, *q.To)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		f.To = &t
	}

	f.Limit = q.Limit
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	f.Offset = max(q.Offset, 0)

	events, err := s.journal.FindEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}

	result := make([]EventInfo, 0, len(events))
	for _, e := range events {
		info := EventInfo{
			ID:           e.ID.String(),
			Source:       e.Source,
			Mode:         e.Mode,
			SessionID:    null.StringFromPtr(e.SessionID),
			Status:       e.Status,
			PlateText:    e.PlateText,
			RawText:      null.StringFromPtr(e.RawText),
			Confidence:   e.Confidence,
			AccessStatus: e.AccessStatus,
			ProcessedAt:  e.ProcessedAt,
		}
		if e.Distance != nil {
			info.Distance = null.IntFrom(int64(*e.Distance))
		}
		if len(e.Detections) > 0 {
			info.Detections = json.RawMessage(e.Detections)
		}
		result = append(result, info)
	}

	return result, nil
}

// CleanupOldEvents removes journal entries older than days.
func (s *ANPRService) CleanupOldEvents(ctx context.Context, days int) (int64, error) {
	if s.journal == nil {
		return 0, ErrJournalDisabled
	}
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", ErrInvalidInput)
	}
	deleted, err := s.journal.DeleteOldEvents(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old events")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old events")
	}
	return deleted, nil
}

// AccessStats counts journaled decisions per access status since the given time.
func (s *ANPRService) AccessStats(ctx context.Context, since time.Time) (map[string]int64, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	counts, err := s.journal.CountByAccessStatus(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	stats := map[string]int64{
		string(anpr.AccessGranted): 0,
		string(anpr.AccessDenied):  0,
	}
	for _, c := range counts {
		stats[c.AccessStatus] = c.Count
	}
	return stats, nil
}

type EventInfo struct {
	ID           string          `json:"id"`
	Source       string          `json:"source"`
	Mode         string          `json:"mode"`
	SessionID    null.String     `json:"session_id"`
	Status       string          `json:"status"`
	PlateText    string          `json:"plate_text"`
	RawText      null.String     `json:"raw_text"`
	Confidence   float64         `json:"confidence"`
	AccessStatus string          `json:"access_status"`
	Distance     null.Int        `json:"distance"`
	Detections   json.RawMessage `json:"detections,omitempty"`
	ProcessedAt  time.Time       `json:"processed_at"`
}
