package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"gorm.io/gorm"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/db"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/fuzzy"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/gate"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/pipeline"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/recognizer"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/registry"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/repository"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/service"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/worker"
)

const modelLoadTimeout = 2 * time.Minute

// app is the set of long-lived collaborators shared by subcommands.
type app struct {
	store   *registry.Store
	service *service.ANPRService
	auth    *service.AuthService
	db      *gorm.DB
	aws     *aws.Config
	closers []io.Closer
}

type appOptions struct {
	models  bool
	journal bool
	gate    bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{}
	a.store = registry.Open(cfg.Registry.Path, log)
	matcher := fuzzy.NewMatcher(cfg.Matching.Threshold)

	var journal service.Journal
	if opts.journal && cfg.Database.Enabled() {
		gdb, err := db.Connect(cfg.Database.DSN, log)
		if err != nil {
			return nil, err
		}
		a.db = gdb
		journal = repository.NewAccessEventRepository(gdb)
	}

	var notifier service.GateNotifier
	if opts.gate && cfg.Gate.Enabled {
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		notifier = gate.NewIoTNotifier(gate.NewClient(awsCfg, cfg.Gate.Endpoint), cfg.Gate.Topic, log)
	}

	var frames service.FrameProcessor
	if opts.models {
		p, err := a.newPipeline(ctx, matcher)
		if err != nil {
			log.Error().Err(err).Msg("recognition models failed to load, frame requests will be rejected")
		} else {
			frames = p
		}
	}

	a.service = service.NewANPRService(frames, a.store, matcher, journal, notifier, log)
	a.auth = service.NewAuthService(cfg.Auth, log)
	return a, nil
}

func (a *app) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.aws != nil {
		return *a.aws, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	a.aws = &awsCfg
	return awsCfg, nil
}

func (a *app) newPipeline(ctx context.Context, matcher *fuzzy.Matcher) (*pipeline.Pipeline, error) {
	backend, err := recognizer.ParseBackend(cfg.Recognizer.Backend)
	if err != nil {
		return nil, err
	}

	w, err := worker.Start(1, cfg.Worker.Command, cfg.Worker.Args, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, w)

	pingCtx, cancel := context.WithTimeout(ctx, modelLoadTimeout)
	defer cancel()
	if err := w.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("plate worker not ready: %w", err)
	}

	var rec pipeline.Recognizer
	switch backend {
	case recognizer.BackendWorker:
		rec = w
	case recognizer.BackendRekognition:
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		rec = recognizer.NewRekognition(rekognition.NewFromConfig(awsCfg), cfg.Recognizer.MinConfidence, log)
	case recognizer.BackendTesseract:
		t, err := recognizer.NewTesseract(cfg.Recognizer.TesseractLanguage)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, t)
		rec = t
	}

	opts := pipeline.Options{
		ConfidenceFloor: cfg.Detection.ConfidenceFloor,
		InferenceSize:   cfg.Detection.InferenceSize,
		MaxFrameSide:    cfg.Detection.MaxFrameSide,
		PlateClassID:    cfg.Detection.PlateClassID,
		FilterByClass:   cfg.Detection.FilterByClass,
		PadX:            cfg.Detection.PadX,
		PadY:            cfg.Detection.PadY,
	}

	log.Info().
		Str("recognizer", string(backend)).
		Float64("confidence_floor", opts.ConfidenceFloor).
		Int("threshold", matcher.Threshold()).
		Msg("recognition pipeline ready")
	return pipeline.New(w, rec, a.store, matcher, opts, log), nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := db.Close(a.db); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
