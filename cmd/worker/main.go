// Highlight worker — processes one live stream end to end: demux, sample,
// transcribe, score, and assemble refined highlights.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/clipworks/highlighter/pkg/config"
	"github.com/clipworks/highlighter/pkg/database"
	"github.com/clipworks/highlighter/pkg/llm"
	"github.com/clipworks/highlighter/pkg/pipeline"
	"github.com/clipworks/highlighter/pkg/refine"
	"github.com/clipworks/highlighter/pkg/secrets"
	"github.com/clipworks/highlighter/pkg/storage"
	"github.com/clipworks/highlighter/pkg/store"
	"github.com/clipworks/highlighter/pkg/transcribe"
)

// jobMessage is the batch payload handed to the container through the
// JOB_MESSAGE environment variable.
type jobMessage struct {
	StreamID  string `json:"stream_id"`
	StreamURL string `json:"stream_url"`
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	// Load .env if present; the batch environment injects variables directly
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}
	slog.SetLogLoggerLevel(logLevel())

	// A missing or malformed job payload is a clean no-op, not a failure:
	// the batch runtime must not retry a job that never described work.
	raw := os.Getenv("JOB_MESSAGE")
	if raw == "" {
		slog.Warn("No JOB_MESSAGE provided, nothing to do")
		return
	}
	var job jobMessage
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.StreamID == "" || job.StreamURL == "" {
		slog.Warn("Malformed JOB_MESSAGE, nothing to do", "payload", raw, "error", err)
		return
	}

	// worker identifier for correlating logs across batch retries
	workerID := uuid.NewString()
	slog.SetDefault(slog.Default().With("worker_id", workerID))
	slog.Info("Starting highlight worker",
		"stream_id", job.StreamID,
		"stream_url", job.StreamURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize AWS clients
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		slog.Error("Failed to load AWS configuration", "error", err)
		os.Exit(1)
	}

	// 3. Initialize database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	if dbConfig.SecretName != "" {
		creds, err := secrets.ResolveDatabaseCredentials(ctx, secretsmanager.NewFromConfig(awsCfg), dbConfig.SecretName)
		if err != nil {
			slog.Error("Failed to resolve database credentials", "secret", dbConfig.SecretName, "error", err)
			os.Exit(1)
		}
		dbConfig.User = creds.Username
		dbConfig.Password = creds.Password
		slog.Info("Resolved database credentials from secret", "secret", dbConfig.SecretName)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	streams := store.NewStreamStore(dbClient.DB())
	frames := store.NewFrameStore(dbClient.DB())
	chunks := store.NewChunkStore(dbClient.DB())
	scores := store.NewScoreStore(dbClient.DB())

	// 4. Initialize LLM callables
	llmClient := llm.NewClient(bedrockruntime.NewFromConfig(awsCfg), cfg.ModelID)
	captioner := llm.NewCaptioner(llmClient)
	grouper := llm.NewGrouper(llmClient)
	refiner := refine.NewRefiner(llm.NewEdgePlanner(llmClient), refine.Options{
		MinLen:       cfg.HighlightMinLen,
		MaxLen:       cfg.HighlightMaxLen,
		MaxEdgeShift: cfg.MaxEdgeShiftSeconds,
		Budgets: refine.Budgets{
			SceneStart: cfg.MaxShiftSceneStart,
			SceneEnd:   cfg.MaxShiftSceneEnd,
			Topic:      cfg.MaxShiftTopic,
		},
		StartDelta: refine.DeltaRange{Min: cfg.StartDeltaMin, Max: cfg.StartDeltaMax},
		EndDelta:   refine.DeltaRange{Min: cfg.EndDeltaMin, Max: cfg.EndDeltaMax},
		FPS:        cfg.VideoFrameSampleRate,
	})
	slog.Info("LLM callables initialized", "model_id", cfg.ModelID)

	// 5. Initialize transcription and the artifact mirror
	engine := transcribe.NewStreaming(transcribestreaming.NewFromConfig(awsCfg), cfg.LanguageCode)
	mirror := storage.NewMirror(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.ImagePrefix, cfg.AudioPrefix)
	if mirror == nil {
		slog.Info("Object store mirror disabled")
	}

	// 6. Register the stream and run the pipeline
	if err := streams.Create(ctx, job.StreamID, job.StreamURL); err != nil {
		slog.Error("Failed to register stream", "stream_id", job.StreamID, "error", err)
		os.Exit(1)
	}

	controller := &pipeline.Controller{
		StreamID:  job.StreamID,
		StreamURL: job.StreamURL,
		Cfg:       cfg,
		Streams:   streams,
		Frames:    frames,
		Chunks:    chunks,
		Scores:    scores,
		Engine:    engine,
		Captioner: captioner,
		Grouper:   grouper,
		Refiner:   refiner,
		Mirror:    mirror,
	}

	if err := controller.Run(ctx); err != nil {
		// the controller already recorded the FAILED status and the cause
		if closeErr := dbClient.Close(); closeErr != nil {
			slog.Error("Error closing database client", "error", closeErr)
		}
		os.Exit(1)
	}
}
