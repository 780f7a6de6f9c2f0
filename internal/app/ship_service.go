package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mmrzaf/logship/internal/checkpoint"
	"github.com/mmrzaf/logship/internal/config"
	"github.com/mmrzaf/logship/internal/domain"
	"github.com/mmrzaf/logship/internal/hashing"
	"github.com/mmrzaf/logship/internal/infra/docstore"
	"github.com/mmrzaf/logship/internal/infra/repos/profiles"
	"github.com/mmrzaf/logship/internal/infra/sinks/elasticsearch"
	"github.com/mmrzaf/logship/internal/infra/sinks/postgres"
	"github.com/mmrzaf/logship/internal/infra/sinks/writer"
	"github.com/mmrzaf/logship/internal/logging"
	"github.com/mmrzaf/logship/internal/shipper"
	"github.com/mmrzaf/logship/internal/source"
	"github.com/mmrzaf/logship/internal/timeutil"
	"github.com/mmrzaf/logship/internal/validation"
)

// Sink receives delivered batches. Connect is called once before the run and
// Close once after, regardless of outcome.
type Sink interface {
	Connect() error
	Close() error
	OnLogsReceived(ctx context.Context, batch []domain.LogRecord) error
}

// ShipService wires profiles, the checkpoint store, a log source and a sink
// together and executes runs.
type ShipService struct {
	profileRepo *profiles.FileRepository
	cfg         *config.Config
	logger      *logging.Logger
}

func NewShipService(profileRepo *profiles.FileRepository, cfg *config.Config, logger *logging.Logger) *ShipService {
	return &ShipService{
		profileRepo: profileRepo,
		cfg:         cfg,
		logger:      logger.WithComponent("ship_service"),
	}
}

// Ship executes one run for the given request and blocks until it finishes.
func (s *ShipService) Ship(ctx context.Context, req *domain.ShipRequest) (*domain.RunResult, error) {
	if err := validation.ValidateShipRequest(req); err != nil {
		return nil, fmt.Errorf("invalid ship request: %w", err)
	}

	srcProfile, err := s.resolveSourceProfile(req.SourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source profile: %w", err)
	}
	if err := validation.ValidateProfile(srcProfile); err != nil {
		return nil, fmt.Errorf("source profile validation failed: %w", err)
	}

	sinkProfile, err := s.resolveSinkProfile(req.SinkID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sink profile: %w", err)
	}
	if err := validation.ValidateProfile(sinkProfile); err != nil {
		return nil, fmt.Errorf("sink profile validation failed: %w", err)
	}

	docs, err := s.openDocStore(srcProfile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint storage: %w", err)
	}
	defer docs.Close()

	sink, err := s.buildSink(sinkProfile)
	if err != nil {
		return nil, fmt.Errorf("failed to build sink: %w", err)
	}
	if err := sink.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect sink %s: %w", sinkProfile.ID, err)
	}
	defer sink.Close()

	startFrom := timeutil.ParseStartFrom(req.StartFrom, time.Now())

	configHash, err := hashing.HashRunConfig(
		srcProfile.ID, sinkProfile.ID,
		req.BatchSize, req.MaxRetries, req.MaxRunTimeSeconds,
		startFrom, req.LogTypes, req.LogLevel,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to hash run config: %w", err)
	}

	opts := shipper.Options{
		BatchSize:  req.BatchSize,
		MaxRetries: req.MaxRetries,
		MaxRunTime: time.Duration(req.MaxRunTimeSeconds) * time.Second,
		StartFrom:  startFrom,
		LogTypes:   req.LogTypes,
		LogLevel:   req.LogLevel,
		ConfigHash: configHash,
	}

	s.logger.Infow("run.start", map[string]interface{}{
		"source": srcProfile.ID,
		"sink":   sinkProfile.ID,
		"hash":   configHash,
	})

	store := checkpoint.NewStore(docs, 0)
	sh := shipper.New(store, s.sourceFactory(srcProfile), opts, s.logger)
	return sh.Run(ctx, sink)
}

// History returns the persisted run statuses for a source profile, newest
// last.
func (s *ShipService) History(ctx context.Context, sourceID string) ([]domain.RunStatus, error) {
	srcProfile, err := s.resolveSourceProfile(sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source profile: %w", err)
	}
	docs, err := s.openDocStore(srcProfile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint storage: %w", err)
	}
	defer docs.Close()
	return checkpoint.NewStore(docs, 0).History(ctx)
}

// Checkpoint returns the persisted resumption checkpoint for a source
// profile, or "" when none exists.
func (s *ShipService) Checkpoint(ctx context.Context, sourceID string) (string, error) {
	srcProfile, err := s.resolveSourceProfile(sourceID)
	if err != nil {
		return "", fmt.Errorf("failed to load source profile: %w", err)
	}
	docs, err := s.openDocStore(srcProfile.ID)
	if err != nil {
		return "", fmt.Errorf("failed to open checkpoint storage: %w", err)
	}
	defer docs.Close()
	return checkpoint.NewStore(docs, 0).GetCheckpoint(ctx, "")
}

// ResetCheckpoint rewrites the persisted checkpoint, keeping the run history.
func (s *ShipService) ResetCheckpoint(ctx context.Context, sourceID, to string) error {
	srcProfile, err := s.resolveSourceProfile(sourceID)
	if err != nil {
		return fmt.Errorf("failed to load source profile: %w", err)
	}
	docs, err := s.openDocStore(srcProfile.ID)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint storage: %w", err)
	}
	defer docs.Close()
	return checkpoint.NewStore(docs, 0).Reset(ctx, to)
}

func (s *ShipService) resolveSourceProfile(id string) (*domain.Profile, error) {
	if p, err := s.profileRepo.Get(id); err == nil {
		return p, nil
	} else if id != domain.SourceKindFake && id != domain.SourceKindHTTP {
		return nil, err
	}
	// Builtin fallbacks: "fake" always works, "http" works when the source
	// endpoint is configured through the environment.
	switch id {
	case domain.SourceKindFake:
		return &domain.Profile{ID: id, Name: "builtin fake source", Kind: domain.SourceKindFake}, nil
	case domain.SourceKindHTTP:
		if s.cfg.SourceDomain == "" {
			return nil, fmt.Errorf("source profile %q not found and no source domain configured", id)
		}
		return &domain.Profile{
			ID:    id,
			Name:  "builtin http source",
			Kind:  domain.SourceKindHTTP,
			URL:   s.cfg.SourceDomain,
			Token: s.cfg.SourceToken,
		}, nil
	}
	return nil, fmt.Errorf("unknown source profile: %s", id)
}

func (s *ShipService) resolveSinkProfile(id string) (*domain.Profile, error) {
	if p, err := s.profileRepo.Get(id); err == nil {
		return p, nil
	} else if id != domain.SinkKindWriter {
		return nil, err
	}
	return &domain.Profile{ID: id, Name: "builtin stdout sink", Kind: domain.SinkKindWriter}, nil
}

func (s *ShipService) openDocStore(stream string) (docstore.Store, error) {
	if s.cfg.CheckpointDSN != "" {
		st := docstore.NewPostgresStore(s.cfg.CheckpointDSN, stream)
		if err := st.Init(); err != nil {
			return nil, err
		}
		return st, nil
	}
	st := docstore.NewSQLiteStore(s.cfg.CheckpointDB, stream)
	if err := st.Init(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *ShipService) sourceFactory(p *domain.Profile) source.Factory {
	return func(cfg source.Config) (source.Stream, error) {
		switch p.Kind {
		case domain.SourceKindHTTP:
			domainURL := p.URL
			if domainURL == "" {
				domainURL = s.cfg.SourceDomain
			}
			token := p.Token
			if token == "" {
				token = s.cfg.SourceToken
			}
			cfg.Domain = domainURL
			cfg.Token = token
			return source.NewHTTPSource(cfg), nil
		case domain.SourceKindFake:
			total := optionInt(p.Options, "total", 250)
			seed := int64(optionInt(p.Options, "seed", 1))
			return source.NewFakeSource(cfg, total, time.Now().Add(-24*time.Hour), seed), nil
		default:
			return nil, fmt.Errorf("unsupported source kind: %s", p.Kind)
		}
	}
}

func (s *ShipService) buildSink(p *domain.Profile) (Sink, error) {
	switch p.Kind {
	case domain.SinkKindWriter:
		if path := p.Options["path"]; path != "" {
			return writer.NewFileSink(path), nil
		}
		return writer.NewWriterSink(os.Stdout), nil
	case domain.SinkKindElasticsearch:
		return elasticsearch.NewElasticsearchSink(p.URL, p.Index), nil
	case domain.SinkKindPostgres:
		return postgres.NewPostgresSink(p.DSN, p.Table)
	default:
		return nil, fmt.Errorf("unsupported sink kind: %s", p.Kind)
	}
}

func optionInt(opts map[string]string, key string, def int) int {
	if v, ok := opts[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
