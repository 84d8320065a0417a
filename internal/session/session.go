// Package session implements the per-connection message loop of the
// streaming recognition protocol, independent of the transport.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/registry"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/service"
)

// Service is satisfied by *service.ANPRService.
type Service interface {
	ProcessSingle(ctx context.Context, data []byte, meta service.FrameMeta) (anpr.FrameOutcome, error)
	ProcessMulti(ctx context.Context, data []byte, meta service.FrameMeta) ([]anpr.DetectionRecord, error)
	AddTrustedPlate(plate string) (registry.Mutation, error)
	RemoveTrustedPlate(plate string) (registry.Mutation, error)
}

type Options struct {
	Mode            anpr.Mode
	IncludeOCRDebug bool
}

// Session holds the state of one connection. It is not safe for concurrent
// use; the transport feeds it one message at a time.
type Session struct {
	id   string
	opts Options
	svc  Service
	log  zerolog.Logger
}

func New(id string, opts Options, svc Service, log zerolog.Logger) *Session {
	if !opts.Mode.Valid() {
		opts.Mode = anpr.ModeMulti
	}
	return &Session{
		id:   id,
		opts: opts,
		svc:  svc,
		log:  log,
	}
}

func (s *Session) ID() string      { return s.id }
func (s *Session) Mode() anpr.Mode { return s.opts.Mode }

// Handle processes one inbound message. ok is false when the message gets no
// reply (undecodable or unknown type).
func (s *Session) Handle(ctx context.Context, raw []byte) (reply any, ok bool) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		s.log.Warn().Err(err).Int("bytes", len(raw)).Msg("ignoring undecodable message")
		return nil, false
	}

	switch in.Type {
	case TypeFrame:
		return s.handleFrame(ctx, in, s.opts.Mode), true
	case TypeImage:
		return s.handleFrame(ctx, in, anpr.ModeSingle), true
	case TypeAddTrustedPlate:
		return s.handleMutation(in, s.svc.AddTrustedPlate), true
	case TypeRemoveTrustedPlate:
		return s.handleMutation(in, s.svc.RemoveTrustedPlate), true
	case TypeStop:
		s.log.Debug().Msg("session reset")
		return ResetReply{Type: TypeReset, V: ProtocolVersion}, true
	default:
		s.log.Debug().Str("type", in.Type).Msg("ignoring unknown message type")
		return nil, false
	}
}

func (s *Session) handleFrame(ctx context.Context, in Inbound, mode anpr.Mode) any {
	data, err := decodeImage(in.Image)
	if err != nil {
		return newErrorReply(in.Type, err)
	}

	meta := service.FrameMeta{Source: anpr.SourceStream, SessionID: s.id}

	if mode == anpr.ModeMulti {
		records, err := s.svc.ProcessMulti(ctx, data, meta)
		if err != nil {
			return s.frameError(in.Type, err)
		}
		return newDetectionsReply(records, s.opts.IncludeOCRDebug)
	}

	outcome, err := s.svc.ProcessSingle(ctx, data, meta)
	if err != nil {
		if in.Type == TypeImage && errors.Is(err, service.ErrServiceUnavailable) {
			return NewResultReply(anpr.FrameOutcome{
				Status:       anpr.StatusModelsNotLoaded,
				PlateText:    anpr.PlaceholderPlate,
				AccessStatus: anpr.AccessDenied,
			})
		}
		return s.frameError(in.Type, err)
	}
	return NewResultReply(outcome)
}

func (s *Session) frameError(request string, err error) ErrorReply {
	if errors.Is(err, service.ErrInvalidInput) {
		s.log.Debug().Err(err).Str("request", request).Msg("rejected frame")
	} else {
		s.log.Error().Err(err).Str("request", request).Msg("frame processing failed")
	}
	return newErrorReply(request, err)
}

func (s *Session) handleMutation(in Inbound, apply func(string) (registry.Mutation, error)) any {
	m, err := apply(in.Plate)
	if err != nil {
		s.log.Warn().Err(err).Str("request", in.Type).Msg("registry command rejected")
		return newErrorReply(in.Type, err)
	}
	return TrustedUpdateReply{
		Type:     TypeTrustedUpdate,
		V:        ProtocolVersion,
		Plates:   m.Plates,
		Accepted: m.Accepted,
	}
}

// decodeImage accepts bare base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ","); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	if s == "" {
		return nil, fmt.Errorf("%w: image is empty", service.ErrInvalidInput)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: image is not valid base64", service.ErrInvalidInput)
	}
	return data, nil
}
