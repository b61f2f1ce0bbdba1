package cli

import (
	"context"
	"fmt"

	"github.com/okian/autotrain/internal/adapters/objectstore"
	"github.com/okian/autotrain/internal/adapters/registry"
	"github.com/okian/autotrain/internal/adapters/repository"
	"github.com/okian/autotrain/internal/adapters/source"
	service "github.com/okian/autotrain/internal/app"
	"github.com/okian/autotrain/internal/config"
	"github.com/okian/autotrain/internal/domain/estimator"
	"github.com/okian/autotrain/internal/domain/schema"
	"github.com/okian/autotrain/internal/domain/trainer"
	"github.com/okian/autotrain/internal/pipeline"
	"github.com/okian/autotrain/internal/synth"
	"github.com/okian/autotrain/pkg/logger"
)

// components are the collaborators every command is assembled from.
type components struct {
	cfg      *config.Config
	store    objectstore.Store
	registry *registry.Registry
	runs     *repository.RunStore
	pipeline *pipeline.Pipeline
	closers  []func() error
}

// openStore opens only the artifact store and the registry over it.
func openStore(cfg *config.Config) (objectstore.Store, *registry.Registry, error) {
	var store objectstore.Store
	switch cfg.Artifacts.Kind {
	case config.ArtifactsMemory:
		store = objectstore.NewMemory()
	default:
		fs, err := objectstore.NewFS(cfg.Artifacts.Dir)
		if err != nil {
			return nil, nil, err
		}
		store = fs
	}
	policy, err := registry.ParsePolicy(cfg.Registry.ConflictPolicy)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New(store,
		registry.WithConflictPolicy(policy),
		registry.WithLogger(logger.Get().Named("registry")),
	)
	return store, reg, nil
}

// wire assembles the full training stack from cfg.
func wire(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{cfg: cfg}

	store, reg, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	c.store, c.registry = store, reg
	c.runs = repository.NewRunStore(
		repository.WithPersistence(store),
		repository.WithLogger(logger.Get().Named("runs")),
	)

	contract, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}
	src, err := c.openSource(ctx)
	if err != nil {
		return nil, err
	}

	c.pipeline, err = pipeline.New(src, contract, reg, store, pipelineConfig(cfg),
		pipeline.WithLogger(logger.Get().Named("pipeline")),
		pipeline.WithObserver(service.Recorder(c.runs)),
	)
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *components) openSource(ctx context.Context) (source.Source, error) {
	sc := c.cfg.Source
	switch sc.Kind {
	case config.SourceFile:
		var opts []source.FileOption
		if len(sc.NullTokens) > 0 {
			opts = append(opts, source.WithNullTokens(sc.NullTokens...))
		}
		return source.NewFile(sc.Path, opts...)
	case config.SourcePostgres:
		pg, err := source.OpenPostgres(ctx, sc.DSN,
			source.WithTable(sc.Table),
			source.WithLogger(logger.Get().Named("source")),
		)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, pg.Close)
		return pg, nil
	case config.SourceSynthetic:
		opts := synth.DefaultOptions()
		opts.Rows = sc.SyntheticRows
		opts.Seed = sc.SyntheticSeed
		mem := source.NewMemory()
		mem.Add(sc.Collection, synth.Generate(opts)...)
		return mem, nil
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", config.ErrInvalidConfig, sc.Kind)
	}
}

// newService builds the application service over the wired components.
func (c *components) newService(opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithRunStore(c.runs),
		service.WithLogger(logger.Get().Named("service")),
	}, opts...)
	return service.New(c.pipeline, c.registry, opts...)
}

// Close releases sources holding connections.
func (c *components) Close() {
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			logger.Get().Warn(context.Background(), "close failed", logger.Error(err))
		}
	}
	c.closers = nil
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.Config{
		Query: source.Query{
			Collection: cfg.Source.Collection,
			Filter:     cfg.Source.Filter,
			Limit:      cfg.Source.Limit,
		},
		TestRatio: cfg.Pipeline.TestRatio,
		SplitSeed: cfg.Pipeline.SplitSeed,
		Model: trainer.Config{
			Estimator:       cfg.Model.Estimator,
			Hyperparameters: estimator.Params(cfg.Model.Hyperparameters),
			RandomSeed:      cfg.Model.RandomSeed,
			Metric:          cfg.Model.Metric,
		},
		MinDelta: cfg.Model.MinDelta,
	}
	if len(cfg.Source.NullTokens) > 0 {
		pc.NullTokens = cfg.Source.NullTokens
	}
	return pc
}
