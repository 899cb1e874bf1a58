package app

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	"github.com/ousepachn/insta-media-sync/internal/analyzer"
	"github.com/ousepachn/insta-media-sync/internal/analyzer/geminiimpl"
	"github.com/ousepachn/insta-media-sync/internal/audit"
	"github.com/ousepachn/insta-media-sync/internal/audit/auditimpl"
	"github.com/ousepachn/insta-media-sync/internal/enrich"
	"github.com/ousepachn/insta-media-sync/internal/enrich/enrichimpl"
	"github.com/ousepachn/insta-media-sync/internal/fetcher"
	"github.com/ousepachn/insta-media-sync/internal/fetcher/fetcherimpl"
	"github.com/ousepachn/insta-media-sync/internal/guard"
	"github.com/ousepachn/insta-media-sync/internal/imaging"
	"github.com/ousepachn/insta-media-sync/internal/indexer"
	"github.com/ousepachn/insta-media-sync/internal/indexer/pineconeimpl"
	"github.com/ousepachn/insta-media-sync/internal/notifier"
	"github.com/ousepachn/insta-media-sync/internal/notifier/telegramimpl"
	repositories "github.com/ousepachn/insta-media-sync/internal/repositories/fx"
	"github.com/ousepachn/insta-media-sync/internal/server"
	"github.com/ousepachn/insta-media-sync/internal/status"
	"github.com/ousepachn/insta-media-sync/internal/status/mongoimpl"
	"github.com/ousepachn/insta-media-sync/internal/storage"
	"github.com/ousepachn/insta-media-sync/internal/storage/s3impl"
	"github.com/ousepachn/insta-media-sync/internal/syncer"
	"github.com/ousepachn/insta-media-sync/internal/syncer/syncerimpl"
	"github.com/ousepachn/insta-media-sync/pkg/config"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"github.com/ousepachn/insta-media-sync/pkg/pgx"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		config.New,
		logger.FxOption,
		pgx.New,
		guard.New,
	),
	fx.Provide(
		fx.Annotate(
			s3impl.New,
			fx.As(new(storage.ObjectStore)),
		),
		fx.Annotate(
			fetcherimpl.New,
			fx.As(new(fetcher.Client)),
		),
		fx.Annotate(
			geminiimpl.New,
			fx.As(new(analyzer.Client)),
			fx.As(new(analyzer.Embedder)),
		),
		fx.Annotate(
			imaging.New,
			fx.As(new(enrich.GridCompositor)),
		),
		fx.Annotate(
			enrichimpl.New,
			fx.As(new(enrich.Client)),
		),
		fx.Annotate(
			auditimpl.New,
			fx.As(new(audit.Client)),
		),
		fx.Annotate(
			syncerimpl.New,
			fx.As(new(syncer.Client)),
		),
		server.New,
	),
	// Optional collaborators fall back to no-ops when unconfigured so the
	// core pipelines can run with nothing but a bucket and an API key.
	fx.Provide(
		func(lc fx.Lifecycle, cfg *config.Config, log logger.Logger) (status.Sink, error) {
			if cfg.Mongo.URI == "" {
				log.Info("No mongodb configured, status reporting disabled")
				return status.Noop{}, nil
			}
			return mongoimpl.New(mongoimpl.Opts{LC: lc, Config: cfg, Logger: log})
		},
		func(cfg *config.Config, log logger.Logger) (notifier.Client, error) {
			if cfg.Telegram.Token == "" {
				log.Info("No telegram token configured, failure notifications disabled")
				return notifier.Noop{}, nil
			}
			return telegramimpl.New(telegramimpl.Opts{Config: cfg, Logger: log})
		},
		func(cfg *config.Config, log logger.Logger, embedder analyzer.Embedder) indexer.Client {
			if cfg.Indexer.Endpoint == "" {
				log.Info("No vector index configured, indexing disabled")
				return indexer.Noop{}
			}
			return pineconeimpl.New(pineconeimpl.Opts{Config: cfg, Logger: log, Embedder: embedder})
		},
	),
	repositories.Module,
	fx.Invoke(migrate),
	fx.Invoke(run),
)

func migrate(c *config.Config) error {
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	db, err := sql.Open("postgres", c.GetDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	return goose.Up(db, filepath.Join(wd, "migrations"))
}

func run(lc fx.Lifecycle, log logger.Logger, srv *server.Server, sClient syncer.Client) {
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			srv.Start()

			if err := sClient.ScheduleSync(schedulerCtx); err != nil {
				log.Error("Failed to start sync scheduler", "error", err)
				return err
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancelScheduler()
			return srv.Stop(ctx)
		},
	})
}
