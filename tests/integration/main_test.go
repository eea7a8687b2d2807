//go:build integration

package integration

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bissquit/notify-engine/internal/app"
	"github.com/bissquit/notify-engine/internal/config"
	"github.com/bissquit/notify-engine/internal/testutil"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Rate limit budget per recipient for the whole suite. Tests use unique
// recipients so they do not share a budget.
const testRateLimitPoints = 5

const openAPISpecPath = "../../api/openapi/openapi.yaml"

var (
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB      *pgxpool.Pool
	testRedis   *redis.Client
	application *app.App

	mailpitContainer *testutil.MailpitContainer
	mailpitClient    *MailpitClient
)

// newTestClient returns a client that checks every API response against the
// OpenAPI document and reports mismatches to t.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client
}

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	redisContainer, err := testutil.NewRedisContainer(ctx)
	if err != nil {
		log.Fatalf("start redis: %v", err)
	}
	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			log.Printf("terminate redis: %v", err)
		}
	}()

	mailpitContainer, err = testutil.NewMailpitContainer(ctx)
	if err != nil {
		log.Fatalf("start mailpit: %v", err)
	}
	defer func() {
		if err := mailpitContainer.Terminate(ctx); err != nil {
			log.Printf("terminate mailpit: %v", err)
		}
	}()
	mailpitClient = NewMailpitClient(mailpitContainer.APIHost, mailpitContainer.APIPort)

	migrator, err := migrate.New("file://../../migrations", pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("run migrations: %v", err)
	}

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Log = config.LogConfig{Level: "error", Format: "text"}
	cfg.Database.URL = pgContainer.ConnectionString
	cfg.Database.ConnectAttempts = 3
	cfg.Redis.URL = redisContainer.URL
	cfg.Redis.ConnectAttempts = 3
	cfg.Dispatch.ChannelTimeout = 20 * time.Second
	cfg.Dispatch.AttemptTimeout = 5 * time.Second
	cfg.Retry.BaseDelay = 10 * time.Millisecond
	cfg.Retry.MaxDelay = 50 * time.Millisecond
	cfg.RateLimit.Points = testRateLimitPoints
	cfg.RateLimit.KeyPrefix = "it:ratelimit"
	cfg.Email = config.EmailConfig{
		Enabled: true,
		From:    "Notify <noreply@notify.test>",
		Primary: config.SMTPConfig{
			Host:    mailpitContainer.SMTPHost,
			Port:    mailpitContainer.SMTPPort,
			Timeout: 5 * time.Second,
		},
		MaxConnections:     2,
		MaxMessagesPerConn: 10,
		RatePerSecond:      100,
		Burst:              100,
		SharedRateLimit:    100,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid test config: %v", err)
	}

	application, err = app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}
	defer testDB.Close()

	redisOpts, err := redis.ParseURL(redisContainer.URL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	testRedis = redis.NewClient(redisOpts)
	defer testRedis.Close()

	testServer = httptest.NewServer(application.Router())
	defer testServer.Close()

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	code := m.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	return code
}
