package papp

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/you-humble/mybook/internal/infra/config"
	"github.com/you-humble/mybook/internal/infra/extract"
	"github.com/you-humble/mybook/internal/infra/genai"
	filestore "github.com/you-humble/mybook/internal/infra/store/file"
	jobstore "github.com/you-humble/mybook/internal/infra/store/job"
	mio "github.com/you-humble/mybook/internal/libs/minio"
	natsq "github.com/you-humble/mybook/internal/libs/nats"
	rediscli "github.com/you-humble/mybook/internal/libs/redis"
	"github.com/you-humble/mybook/internal/processor"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	cfgPath    = "./configs/processor.yaml"
	streamName = "BOOK_JOBS"
)

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis    *redis.Client
	jobStore processor.JobStore

	inputStore  processor.FileStore
	outputStore processor.FileStore

	genaiClient *genai.Client
	extractor   processor.Extractor

	natsConn *nats.Conn
	js       nats.JetStreamContext

	processor *processor.Processor
	consumer  *processor.Consumer
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(cfgPath)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("redis connect: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) JobStore(ctx context.Context) processor.JobStore {
	if di.jobStore == nil {
		di.jobStore = jobstore.NewRedisJobStore(di.RedisClient(ctx))
	}
	return di.jobStore
}

func (di *dependencyInjector) InputStore(ctx context.Context) processor.FileStore {
	if di.inputStore == nil {
		di.inputStore = di.newFileStore(ctx, di.Config().InputBucket)
	}
	return di.inputStore
}

func (di *dependencyInjector) OutputStore(ctx context.Context) processor.FileStore {
	if di.outputStore == nil {
		di.outputStore = di.newFileStore(ctx, di.Config().OutputBucket)
	}
	return di.outputStore
}

func (di *dependencyInjector) newFileStore(ctx context.Context, cfg config.MinIO) processor.FileStore {
	store, err := filestore.NewMinIOStore(ctx, mio.Config{
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		UseSSL:          cfg.UseSSL,
		Bucket:          cfg.Bucket,
		BasePath:        cfg.BasePath,
	})
	if err != nil {
		log.Fatalf("FileStore minio: %+v", err)
	}
	di.Logger().Info(
		"initialized MinIO file store",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("bucket", cfg.Bucket),
	)
	return store
}

func (di *dependencyInjector) GenAI(ctx context.Context) *genai.Client {
	if di.genaiClient == nil {
		di.genaiClient = genai.NewClient(di.Config().Generator)
		di.Logger().Info("initialized generation client",
			slog.String("base_url", di.Config().Generator.BaseURL),
			slog.String("model", di.Config().Generator.Model),
		)
	}
	return di.genaiClient
}

func (di *dependencyInjector) Extractor(ctx context.Context) processor.Extractor {
	if di.extractor == nil {
		di.extractor = extract.NewService(
			di.GenAI(ctx),
			extract.NewDocumentClient(di.Config().Extractor),
		)
	}
	return di.extractor
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config()
		nc, err := natsq.NewConnect(cfg.NATS.URL, natsq.Config{
			Name:          cfg.NATS.QueueName,
			MaxReconnects: cfg.NATS.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		js, err := natsq.NewJetStream(di.NATSConn(ctx), &nats.StreamConfig{
			Name:     streamName,
			Subjects: []string{di.Config().NATS.Subject},
			Storage:  nats.FileStorage,
			Replicas: 1,
			MaxAge:   2 * di.Config().JobTTL,
		})
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Processor(ctx context.Context) *processor.Processor {
	if di.processor == nil {
		di.processor = processor.New(
			di.JobStore(ctx),
			di.InputStore(ctx),
			di.OutputStore(ctx),
			di.Extractor(ctx),
			di.GenAI(ctx),
			di.Config().Generator.Timeout,
		)
	}
	return di.processor
}

func (di *dependencyInjector) Consumer(ctx context.Context) *processor.Consumer {
	if di.consumer == nil {
		cfg := di.Config()
		di.consumer = processor.NewConsumer(
			di.JetStream(ctx),
			streamName,
			cfg.NATS.Subject,
			cfg.PoolSize,
			di.Processor(ctx),
			cfg.JobTTL,
			cfg.CleanupInterval,
		)
	}
	return di.consumer
}
