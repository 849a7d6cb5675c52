// Package bootstrap builds the application graph from configuration:
// stores, gateway, storage, queue, services and controllers.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/vidorder/app/controllers"
	"github.com/shashiranjanraj/vidorder/app/jobs"
	"github.com/shashiranjanraj/vidorder/app/repositories"
	"github.com/shashiranjanraj/vidorder/app/routes"
	"github.com/shashiranjanraj/vidorder/app/services"
	"github.com/shashiranjanraj/vidorder/config"
	"github.com/shashiranjanraj/vidorder/pkg/auth"
	"github.com/shashiranjanraj/vidorder/pkg/ctx"
	"github.com/shashiranjanraj/vidorder/pkg/database"
	"github.com/shashiranjanraj/vidorder/pkg/dedupe"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
	"github.com/shashiranjanraj/vidorder/pkg/mail"
	"github.com/shashiranjanraj/vidorder/pkg/payment"
	"github.com/shashiranjanraj/vidorder/pkg/queue"
	"github.com/shashiranjanraj/vidorder/pkg/storage"
	"github.com/shashiranjanraj/vidorder/pkg/telemetry"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// App is the wired application. Fields are nil when the corresponding
// backend is not configured (SQL is nil for the mongo driver, Redis is nil
// without a redis-backed queue).
type App struct {
	SQL   *gorm.DB
	Mongo *mongo.Database
	Redis *redis.Client

	Users  repositories.UserRepository
	Orders repositories.OrderRepository

	Gateway payment.Gateway
	Disk    storage.Disk
	Queue   *queue.Manager
	Driver  queue.Driver
	Events  dedupe.Store
	Mailer  mail.Sender
	Tokens  *auth.Tokens

	AuthService      *services.AuthService
	OrderService     *services.OrderService
	PaymentService   *services.PaymentService
	DashboardService *services.DashboardService
	Reconciler       *services.Reconciler

	closers []func(context.Context) error
}

// Logging installs the process logger, teeing into MongoDB when
// LOG_MONGO_URI is set. The returned func flushes the Mongo sink.
func Logging(ctx context.Context, w io.Writer) (func(context.Context) error, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stdout
	}

	uri := config.Get("LOG_MONGO_URI", "")
	if uri == "" {
		logger.Setup(config.AppEnv(), w)
		return func(context.Context) error { return nil }, nil
	}

	level := slog.LevelInfo
	if !config.IsProduction() {
		level = slog.LevelDebug
	}
	h, err := logger.NewMongoHandler(ctx, uri,
		config.Get("LOG_MONGO_DATABASE", config.MongoDatabase()),
		config.Get("LOG_MONGO_COLLECTION", "logs"), level)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: log sink: %w", err)
	}
	logger.Setup(config.AppEnv(), w, h)
	return h.Close, nil
}

// StoresOnly opens the configured store without building services. Used by
// the migrate and seed commands.
func StoresOnly(c context.Context) (*App, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	a := &App{}
	if err := a.openStore(c); err != nil {
		_ = a.Close(c)
		return nil, err
	}
	return a, nil
}

// New wires everything. A store that cannot be reached is an error; the
// caller exits non-zero.
func New(c context.Context) (*App, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}

	a := &App{}
	if err := a.build(c); err != nil {
		_ = a.Close(c)
		return nil, err
	}
	return a, nil
}

func (a *App) build(c context.Context) error {
	shutdown, err := telemetry.InitTracerProvider(c, config.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""), "vidorder", Version)
	if err != nil {
		return fmt.Errorf("bootstrap: tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	if err := a.openStore(c); err != nil {
		return err
	}
	if err := a.openQueue(c); err != nil {
		return err
	}

	a.Gateway, err = newGateway()
	if err != nil {
		return err
	}

	a.Disk, err = storage.New(c, storage.Config{
		Driver:    config.StorageDefault(),
		LocalRoot: config.StorageLocalRoot(),
		LocalURL:  config.StorageURL(),
		S3: storage.S3Config{
			Bucket:   config.StorageS3Bucket(),
			Region:   config.StorageS3Region(),
			Key:      config.StorageS3Key(),
			Secret:   config.StorageS3Secret(),
			Endpoint: config.StorageS3Endpoint(),
			BaseURL:  config.StorageS3URL(),
		},
	})
	if err != nil {
		return fmt.Errorf("bootstrap: storage: %w", err)
	}

	a.Mailer = mail.New(mail.FromConfig())
	jobs.Register(a.Queue, a.Mailer)

	a.Tokens = auth.NewTokens(config.JWTSecret(), config.JWTTTL())
	if config.IsProduction() && config.JWTSecret() == "change-me-in-production" {
		return fmt.Errorf("bootstrap: JWT_SECRET must be set in production")
	}

	a.AuthService = services.NewAuthService(a.Users, a.Tokens)
	a.OrderService = services.NewOrderService(a.Orders, a.Users, a.Gateway, a.Disk, a.Queue)
	a.PaymentService = services.NewPaymentService(a.Orders, a.Users, a.Gateway, a.Events, a.Queue, config.FrontendURL())
	a.DashboardService = services.NewDashboardService(a.Orders, a.Users)
	a.Reconciler = services.NewReconciler(a.PaymentService, config.ReconcileMinAge(), config.Int("RECONCILE_WORKERS", 4))

	ctx.MaxBodyBytes = config.MaxBodyBytes()

	return nil
}

// Controllers builds the HTTP layer on top of the services.
func (a *App) Controllers() routes.Controllers {
	return routes.Controllers{
		Auth:          controllers.NewAuthController(a.AuthService),
		Orders:        controllers.NewOrderController(a.OrderService),
		Payments:      controllers.NewPaymentController(a.PaymentService),
		Dashboard:     controllers.NewDashboardController(a.DashboardService),
		Authenticator: a.AuthService,
	}
}

func (a *App) openStore(c context.Context) error {
	driver := config.DatabaseDriver()

	switch {
	case driver == "memory":
		a.Users = repositories.NewMemoryUserRepository()
		a.Orders = repositories.NewMemoryOrderRepository()
		logger.Warn("using in-memory store; data is lost on exit")

	case driver == "mongo":
		client, db, err := database.OpenMongo(c, config.MongoURI(), config.MongoDatabase())
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Disconnect)
		if err := repositories.EnsureMongoIndexes(c, db); err != nil {
			return fmt.Errorf("bootstrap: mongo indexes: %w", err)
		}
		a.Mongo = db
		a.Users = repositories.NewMongoUserRepository(db)
		a.Orders = repositories.NewMongoOrderRepository(db)

	case config.IsSQLDriver():
		db, err := database.OpenSQL(driver, config.DatabaseDSN())
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return database.CloseSQL(db) })
		a.SQL = db
		a.Users = repositories.NewSQLUserRepository(db)
		a.Orders = repositories.NewSQLOrderRepository(db)

	default:
		return fmt.Errorf("bootstrap: unsupported DB_DRIVER %q", driver)
	}

	logger.Info("store ready", "driver", driver)
	return nil
}

func (a *App) openQueue(c context.Context) error {
	switch config.QueueDriver() {
	case "redis":
		rdb, err := database.OpenRedis(c, config.RedisAddr(), config.RedisPassword())
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		a.Redis = rdb
		a.Driver = queue.NewRedisDriver(rdb)
		a.Events = dedupe.NewRedisStore(rdb)
	default:
		a.Driver = queue.NewMemoryDriver()
		a.Events = dedupe.NewMemoryStore()
	}

	a.Queue = queue.NewManager(a.Driver,
		queue.WithMaxRetry(config.Int("QUEUE_MAX_RETRY", 3)),
		queue.WithBackoff(config.Duration("QUEUE_BACKOFF", time.Second)),
	)
	if a.SQL != nil {
		a.Queue.UseDB(a.SQL)
	}
	return nil
}

func newGateway() (payment.Gateway, error) {
	switch strings.ToLower(config.PaymentDriver()) {
	case "fake":
		logger.Warn("using fake payment gateway")
		return payment.NewFake(config.StripeWebhookSecret()), nil
	case "stripe":
		gw, err := payment.NewStripe(config.StripeSecretKey(), config.StripeWebhookSecret())
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("bootstrap: unsupported PAYMENT_DRIVER %q", config.PaymentDriver())
	}
}

// InProcessQueue reports whether jobs live in process memory, in which
// case the serve command runs the workers itself.
func (a *App) InProcessQueue() bool {
	_, ok := a.Driver.(*queue.MemoryDriver)
	return ok
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close(c context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](c); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
