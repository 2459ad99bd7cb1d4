package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/paifgx/quizdom-sub003/internal/app"
	"github.com/paifgx/quizdom-sub003/internal/domain"
	"github.com/paifgx/quizdom-sub003/internal/engine"
	"github.com/paifgx/quizdom-sub003/internal/infra/memory"
	pginfra "github.com/paifgx/quizdom-sub003/internal/infra/postgres"
	"github.com/paifgx/quizdom-sub003/internal/infra/postgres/migrations"
	redisinfra "github.com/paifgx/quizdom-sub003/internal/infra/redis"
)

func TestSoloGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	source := memory.NewStaticQuestionSource(map[string][]domain.Question{
		"game-1": {
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{Index: 0, BackendID: "o1", Text: "3"},
					{Index: 1, BackendID: "o2", Text: "4"},
				},
				CorrectIndex: 1,
			},
		},
	})
	questions := redisinfra.NewQuestionCache(redisClient, source, 5*time.Minute)
	registry := redisinfra.NewSessionStore(redisClient, 5*time.Minute)
	journal := pginfra.NewResultJournal(pool)
	service := app.NewGameService(questions, registry, journal, clockwork.NewRealClock(), zerolog.Nop())

	game, err := service.CreateGame(ctx, app.GameParams{
		SessionID:    "game-1",
		Mode:         domain.ModeSolo,
		Players:      []engine.PlayerSeed{{ID: "player1", Name: "Alice", Slot: domain.SlotPlayer1}},
		QuestionTime: 30 * time.Second,
		Hearts:       3,
	})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	if exists := redisClient.Exists(ctx, "game:session:game-1").Val(); exists != 1 {
		t.Fatalf("expected a session liveness marker in redis")
	}
	if exists := redisClient.Exists(ctx, "game:game-1:questions").Val(); exists != 1 {
		t.Fatalf("expected the question set cached in redis")
	}

	if !game.Start() {
		t.Fatalf("start failed")
	}
	if !game.SubmitAnswer("player1", 1, time.Now()) {
		t.Fatalf("answer rejected")
	}
	waitFinished(t, game)

	if err := service.FinishGame(ctx, "game-1"); err != nil {
		t.Fatalf("finish game: %v", err)
	}

	result, err := journal.Load(ctx, "game-1")
	if err != nil {
		t.Fatalf("load journaled result: %v", err)
	}
	if result.Outcome != domain.OutcomeWin {
		t.Fatalf("expected win, got %s", result.Outcome)
	}
	if result.Players[0].Score != 100 || result.Players[0].Hearts != 3 {
		t.Fatalf("unexpected journaled player result: %+v", result.Players[0])
	}

	if _, ok := registry.Get("game-1"); ok {
		t.Fatalf("finished game must be deregistered")
	}
	if exists := redisClient.Exists(ctx, "game:session:game-1").Val(); exists != 0 {
		t.Fatalf("expected the session liveness marker cleared")
	}
}

func waitFinished(t *testing.T, game *engine.Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if game.Snapshot().Status == domain.StatusFinished {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("game never finished")
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quizdom", "POSTGRES_PASSWORD": "quizdompass", "POSTGRES_DB": "quizdomdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quizdom:quizdompass@%s:%s/quizdomdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
