package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/paifgx/quizdom-sub003/internal/api"
	"github.com/paifgx/quizdom-sub003/internal/app"
	"github.com/paifgx/quizdom-sub003/internal/config"
	"github.com/paifgx/quizdom-sub003/internal/domain"
	"github.com/paifgx/quizdom-sub003/internal/engine"
	"github.com/paifgx/quizdom-sub003/internal/infra/memory"
	pginfra "github.com/paifgx/quizdom-sub003/internal/infra/postgres"
	redisstore "github.com/paifgx/quizdom-sub003/internal/infra/redis"
	"github.com/paifgx/quizdom-sub003/internal/reconcile"
	"github.com/paifgx/quizdom-sub003/internal/ws"
)

// NewPlayCmd builds the CLI subcommand that runs one game session. Without a
// configured backend it plays a local session against built-in questions.
func NewPlayCmd(configPath *string) *cobra.Command {
	var quizID, topicID, mode, name string
	var difficulty int
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a quiz session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, quizID, topicID, difficulty, mode, name)
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "remote quiz id to start (remote play only)")
	cmd.Flags().StringVar(&topicID, "topic", "", "remote topic id to draw questions from (remote play only)")
	cmd.Flags().IntVar(&difficulty, "difficulty", 1, "difficulty bound for --topic play")
	cmd.Flags().StringVar(&mode, "mode", "", "game mode: solo, competitive or collaborative")
	cmd.Flags().StringVar(&name, "name", "Player", "display name")
	return cmd
}

func runPlay(ctx context.Context, configPath, quizID, topicID string, difficulty int, modeFlag, name string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if token := os.Getenv("QUIZDOM_TOKEN"); token != "" {
		cfg.Backend.Token = token
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var journal app.ResultJournal = memory.NewResultJournal()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		journal = pginfra.NewResultJournal(pool)
	}

	mode := domain.GameMode(modeFlag)
	if mode == "" {
		mode = domain.GameMode(cfg.Game.Mode)
	}
	if mode == "" {
		mode = domain.ModeSolo
	}
	questionTime := config.TTLDuration(cfg.Game.QuestionTime, 30*time.Second)
	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)

	remote := cfg.Backend.BaseURL != ""
	var (
		sessionID string
		provider  app.QuestionProvider
		client    *api.Client
		viewerID  string
	)
	if remote {
		client = api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, logger)
		var info api.SessionInfo
		var err error
		switch {
		case quizID != "":
			info, err = client.StartGameByQuiz(ctx, quizID)
		case topicID != "":
			count := cfg.Game.QuestionCount
			if count <= 0 {
				count = 10
			}
			info, err = client.StartGameByTopic(ctx, topicID, count, difficulty)
		default:
			return fmt.Errorf("remote play requires --quiz or --topic")
		}
		if err != nil {
			return err
		}
		sessionID = info.SessionID
		viewerID = info.PlayerID
		if info.TimeLimitMs > 0 {
			questionTime = time.Duration(info.TimeLimitMs) * time.Millisecond
		}
		source := api.NewRemoteQuestionSource(client, info.QuestionCount)
		if redisClient != nil {
			provider = redisstore.NewQuestionCache(redisClient, source, questionTTL)
		} else {
			provider = memory.NewQuestionCache(source, questionTTL)
		}
	} else {
		sessionID = uuid.New().String()
		source := memory.NewStaticQuestionSource(map[string][]domain.Question{
			sessionID: sampleQuestions(),
		})
		provider = memory.NewQuestionCache(source, questionTTL)
	}

	var registry app.GameRegistry = memory.NewRegistry()
	if redisClient != nil {
		registry = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	}

	service := app.NewGameService(provider, registry, journal, nil, logger)

	seeds := playerSeeds(mode, name)

	game, err := service.CreateGame(ctx, app.GameParams{
		SessionID:    sessionID,
		Mode:         mode,
		Players:      seeds,
		QuestionTime: questionTime,
		Hearts:       cfg.Game.Hearts,
	})
	if err != nil {
		return err
	}

	events, cancel := game.Subscribe()
	defer cancel()

	var rec *reconcile.Reconciler
	if remote {
		rec = reconcile.New(reconcile.Config{
			Engine:           game,
			API:              client,
			SessionID:        sessionID,
			ViewerBackendID:  viewerID,
			PrimaryLocalID:   "player1",
			SecondaryLocalID: "player2",
			PollInterval:     config.TTLDuration(cfg.Polling.Interval, 2*time.Second),
			PollMaxAttempts:  cfg.Polling.MaxAttempts,
			Logger:           logger,
			OnHeartLoss: func(playerID string, remaining int) {
				fmt.Printf("%s lost a heart (%d left)\n", playerID, remaining)
			},
		})

		wsCfg := ws.DefaultConfig(cfg.Backend.WSURL+"/"+sessionID, cfg.Backend.Token)
		wsCfg.BaseBackoff = config.TTLDuration(cfg.Reconnect.BaseInterval, wsCfg.BaseBackoff)
		wsCfg.MaxBackoff = config.TTLDuration(cfg.Reconnect.MaxInterval, wsCfg.MaxBackoff)
		if cfg.Reconnect.MaxAttempts > 0 {
			wsCfg.MaxAttempts = cfg.Reconnect.MaxAttempts
		}
		wsCfg.Logger = logger
		wsClient := ws.NewClient(wsCfg)
		defer wsClient.Close()

		unsubMsg := wsClient.OnMessage(rec.HandleMessage)
		defer unsubMsg()
		unsubStatus := wsClient.OnStatus(func(s ws.State) {
			logger.Info().Str("state", string(s)).Msg("connection state changed")
		})
		defer unsubStatus()

		if err := wsClient.Connect(ctx); err != nil {
			// Reconnects are scheduled internally; play continues in
			// degraded local-only mode if they all fail.
			logger.Warn().Err(err).Msg("initial connect failed")
		}
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	game.Start()

	for {
		select {
		case <-stop:
			logger.Info().Msg("interrupted, leaving game")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch ev.Type {
			case engine.EventGameStarted, engine.EventQuestionAdvanced:
				printQuestion(ev.Snapshot)
			case engine.EventGameOver:
				printResult(*ev.Result)
				if client != nil {
					if summary, err := client.CompleteSession(context.Background(), sessionID); err != nil {
						logger.Warn().Err(err).Msg("failed to complete session with backend")
					} else if summary.RewardCoins > 0 {
						fmt.Printf("Reward: %d coins\n", summary.RewardCoins)
					}
				}
				return service.FinishGame(context.Background(), sessionID)
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			idx, err := strconv.Atoi(line)
			if err != nil {
				fmt.Println("enter the number of an answer option")
				continue
			}
			answeredAt := time.Now()
			if rec != nil {
				accepted := rec.SubmitAnswer(ctx, "player1", idx, answeredAt)
				if accepted && mode != domain.ModeSolo {
					go func() {
						if err := rec.PollUntilAnswered(ctx); err != nil {
							logger.Warn().Err(err).Msg("opponent polling stopped")
						}
					}()
				}
			} else {
				game.SubmitAnswer("player1", idx, answeredAt)
			}
		}
	}
}

// playerSeeds builds the local roster for a mode. Collaborative players share
// the team slot; competitive players take opposing slots.
func playerSeeds(mode domain.GameMode, name string) []engine.PlayerSeed {
	switch mode {
	case domain.ModeSolo:
		return []engine.PlayerSeed{{ID: "player1", Name: name, Slot: domain.SlotPlayer1}}
	case domain.ModeCollaborative:
		return []engine.PlayerSeed{
			{ID: "player1", Name: name, Slot: domain.SlotTeam},
			{ID: "player2", Name: "Teammate", Slot: domain.SlotTeam},
		}
	default:
		return []engine.PlayerSeed{
			{ID: "player1", Name: name, Slot: domain.SlotPlayer1},
			{ID: "player2", Name: "Opponent", Slot: domain.SlotPlayer2},
		}
	}
}

func printQuestion(snap engine.Snapshot) {
	fmt.Printf("\nQuestion %d: %s\n", snap.CurrentIndex+1, snap.Question.Prompt)
	for _, opt := range snap.Question.Options {
		fmt.Printf("  [%d] %s\n", opt.Index, opt.Text)
	}
}

func printResult(result domain.GameResult) {
	fmt.Printf("\nGame over: %s\n", result.Outcome)
	for _, p := range result.Players {
		fmt.Printf("  %s: %d points, %d hearts\n", p.Name, p.Score, p.Hearts)
	}
	if result.WinnerID != "" {
		fmt.Printf("Winner: %s\n", result.WinnerID)
	}
}

// sampleQuestions provides a minimal offline question set; remote play loads
// real content through the API.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:     "q1",
			Prompt: "What is 2 + 2?",
			Options: []domain.Option{
				{Index: 0, BackendID: "o1", Text: "3"},
				{Index: 1, BackendID: "o2", Text: "4"},
				{Index: 2, BackendID: "o3", Text: "5"},
			},
			CorrectIndex: 1,
		},
		{
			ID:     "q2",
			Prompt: "Which planet is closest to the sun?",
			Options: []domain.Option{
				{Index: 0, BackendID: "o1", Text: "Venus"},
				{Index: 1, BackendID: "o2", Text: "Mercury"},
				{Index: 2, BackendID: "o3", Text: "Mars"},
			},
			CorrectIndex: 1,
		},
		{
			ID:     "q3",
			Prompt: "How many continents are there?",
			Options: []domain.Option{
				{Index: 0, BackendID: "o1", Text: "5"},
				{Index: 1, BackendID: "o2", Text: "6"},
				{Index: 2, BackendID: "o3", Text: "7"},
			},
			CorrectIndex: 2,
		},
	}
}
