package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/you-humble/mybook/internal/infra/config"
	"github.com/you-humble/mybook/internal/infra/queue"
	filestore "github.com/you-humble/mybook/internal/infra/store/file"
	jobstore "github.com/you-humble/mybook/internal/infra/store/job"
	mio "github.com/you-humble/mybook/internal/libs/minio"
	natsq "github.com/you-humble/mybook/internal/libs/nats"
	rediscli "github.com/you-humble/mybook/internal/libs/redis"
	"github.com/you-humble/mybook/internal/transport"
	"github.com/you-humble/mybook/internal/usecase"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	cfgPath    = "./configs/api.yaml"
	streamName = "BOOK_JOBS"
)

type Router interface {
	MountRoutes(*http.ServeMux) *http.ServeMux
}

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis    *redis.Client
	jobStore usecase.JobStore

	inputStore  usecase.FileStore
	outputStore usecase.FileStore

	natsConn *nats.Conn
	js       nats.JetStreamContext

	workQueue usecase.WorkQueue

	usecase transport.Usecase
	handler transport.Handler
	router  Router
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

func (di *dependencyInjector) JobStore(ctx context.Context) usecase.JobStore {
	if di.jobStore == nil {
		di.jobStore = jobstore.NewRedisJobStore(di.RedisClient(ctx))
	}
	return di.jobStore
}

func (di *dependencyInjector) InputStore(ctx context.Context) usecase.FileStore {
	if di.inputStore == nil {
		di.inputStore = di.newFileStore(ctx, di.Config().InputBucket)
	}
	return di.inputStore
}

func (di *dependencyInjector) OutputStore(ctx context.Context) usecase.FileStore {
	if di.outputStore == nil {
		di.outputStore = di.newFileStore(ctx, di.Config().OutputBucket)
	}
	return di.outputStore
}

func (di *dependencyInjector) newFileStore(ctx context.Context, cfg config.MinIO) usecase.FileStore {
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

func (di *dependencyInjector) WorkQueue(ctx context.Context) usecase.WorkQueue {
	if di.workQueue == nil {
		di.workQueue = queue.New(di.JetStream(ctx), di.Config().NATS.Subject)
	}
	return di.workQueue
}

func (di *dependencyInjector) Usecase(ctx context.Context) transport.Usecase {
	if di.usecase == nil {
		di.usecase = usecase.New(
			di.JobStore(ctx),
			di.InputStore(ctx),
			di.OutputStore(ctx),
			di.WorkQueue(ctx),
		)
	}

	return di.usecase
}

func (di *dependencyInjector) Handler(ctx context.Context) transport.Handler {
	if di.handler == nil {
		di.handler = transport.NewHandler(di.Config().MaxUploadMb, di.Usecase(ctx))
	}

	return di.handler
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		di.router = transport.NewRouter(di.Handler(ctx))
	}

	return di.router
}
