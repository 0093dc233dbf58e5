// Package config holds the process-wide options for the highlight worker.
// Every option has a default; the batch container overrides them through
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the flat option set recognized by the worker.
type Config struct {
	// Media ingestion
	MaxStreamDuration    float64 // stop demuxing past this media time (seconds)
	VideoFrameSampleRate float64 // kept frames per second of media time
	AudioChunkSeconds    float64 // target seconds per audio chunk
	TargetSampleRate     int     // resample target for audio chunks (Hz)
	QueueCapacity        int     // bounded frame queue capacity

	// Scoring
	CandidateSlice float64 // scoring window length (seconds)
	AlphaMotion    float64 // saliency weight for optical-flow magnitude
	AlphaAudio     float64 // saliency weight for audio RMS

	// Assembly / refinement
	HighlightChunk           int     // score rows per assembler iteration
	HighlightMinLen          float64 // duration guard lower bound (seconds)
	HighlightMaxLen          float64 // duration guard upper bound (seconds)
	MaxEdgeShiftSeconds      float64 // edge clamp vs original window (seconds)
	AgenticRefinementEnabled bool    // master switch for snap + refine
	HighlightThreshold       float64 // mask rule: highlight_score >= this
	SaliencyThreshold        float64 // mask rule: saliency gate for the relaxed branch
	RelaxedHighlightScore    float64 // mask rule: highlight_score floor under the saliency gate

	// Boundary detection
	SceneCutThreshold    float64 // Bhattacharyya distance threshold
	MinSceneLenSeconds   float64 // debounce between scene cuts
	TextTilingBlock      int     // tokens per comparison block
	TextTilingStep       int     // token stride between comparisons
	TextTilingSmooth     int     // moving-average radius over the similarity curve
	TextTilingCutoffStd  float64 // valley cutoff in standard deviations below the mean
	TopicRecomputeGrowth int     // recompute topic boundaries after this many new words

	// Snapper budgets
	MaxShiftSceneStart float64
	MaxShiftSceneEnd   float64
	MaxShiftTopic      float64

	// Micro-adjust delta ranges (seconds, signed)
	StartDeltaMin float64
	StartDeltaMax float64
	EndDeltaMin   float64
	EndDeltaMax   float64

	// Local artifacts
	BaseDir string // artifacts root; per-stream layout is BaseDir/<stream_id>/

	// AWS integration
	AWSRegion    string
	LanguageCode string // speech-to-text language hint
	ModelID      string // Bedrock model for all JSON callables
	S3Bucket     string // empty disables the object-store mirror
	ImagePrefix  string
	AudioPrefix  string

	// Transcriber driver
	TranscriberBatchSize int           // chunks fetched per poll
	TranscriberPollDelay time.Duration // sleep when no work is pending
}

// Default returns the configuration with every option at its default value.
func Default() *Config {
	return &Config{
		MaxStreamDuration:    600,
		VideoFrameSampleRate: 2,
		AudioChunkSeconds:    5,
		TargetSampleRate:     16000,
		QueueCapacity:        2048,

		CandidateSlice: 5,
		AlphaMotion:    0.7,
		AlphaAudio:     0.3,

		HighlightChunk:           300,
		HighlightMinLen:          4,
		HighlightMaxLen:          12,
		MaxEdgeShiftSeconds:      3,
		AgenticRefinementEnabled: true,
		HighlightThreshold:       0.7,
		SaliencyThreshold:        0.7,
		RelaxedHighlightScore:    0.6,

		SceneCutThreshold:    0.5,
		MinSceneLenSeconds:   1,
		TextTilingBlock:      20,
		TextTilingStep:       10,
		TextTilingSmooth:     2,
		TextTilingCutoffStd:  0.5,
		TopicRecomputeGrowth: 100,

		MaxShiftSceneStart: 1.0,
		MaxShiftSceneEnd:   2.0,
		MaxShiftTopic:      1.0,

		StartDeltaMin: -1.0,
		StartDeltaMax: 1.0,
		EndDeltaMin:   -1.5,
		EndDeltaMax:   1.5,

		BaseDir: "./data",

		AWSRegion:    "us-east-1",
		LanguageCode: "en-US",
		ModelID:      "us.anthropic.claude-sonnet-4-20250514-v1:0",
		S3Bucket:     "",
		ImagePrefix:  "images/frame/",
		AudioPrefix:  "audio/streams/",

		TranscriberBatchSize: 10,
		TranscriberPollDelay: 2 * time.Second,
	}
}

// Load builds the configuration from the environment on top of the defaults.
func Load() (*Config, error) {
	cfg := Default()

	var err error
	set := func(fn func() error) {
		if err == nil {
			err = fn()
		}
	}

	set(floatVar(&cfg.MaxStreamDuration, "MAX_STREAM_DURATION"))
	set(floatVar(&cfg.VideoFrameSampleRate, "VIDEO_FRAME_SAMPLE_RATE"))
	set(floatVar(&cfg.AudioChunkSeconds, "AUDIO_CHUNK"))
	set(intVar(&cfg.TargetSampleRate, "TARGET_SAMPLE_RATE"))
	set(intVar(&cfg.QueueCapacity, "QUEUE_CAPACITY"))
	set(floatVar(&cfg.CandidateSlice, "CANDIDATE_SLICE"))
	set(intVar(&cfg.HighlightChunk, "HIGHLIGHT_CHUNK"))
	set(floatVar(&cfg.HighlightMinLen, "HIGHLIGHT_MIN_LEN"))
	set(floatVar(&cfg.HighlightMaxLen, "HIGHLIGHT_MAX_LEN"))
	set(floatVar(&cfg.MaxEdgeShiftSeconds, "MAX_EDGE_SHIFT_SECONDS"))
	set(boolVar(&cfg.AgenticRefinementEnabled, "AGENTIC_REFINEMENT_ENABLED"))
	set(floatVar(&cfg.SceneCutThreshold, "SCENE_CUT_THRESHOLD"))
	set(floatVar(&cfg.MinSceneLenSeconds, "MIN_SCENE_LEN_SECONDS"))
	set(intVar(&cfg.TextTilingBlock, "TEXT_TILING_BLOCK"))
	set(intVar(&cfg.TextTilingStep, "TEXT_TILING_STEP"))
	set(intVar(&cfg.TextTilingSmooth, "TEXT_TILING_SMOOTH"))
	set(floatVar(&cfg.TextTilingCutoffStd, "TEXT_TILING_CUTOFF_STD"))
	set(stringVar(&cfg.BaseDir, "BASE_DIR"))
	set(stringVar(&cfg.AWSRegion, "AWS_REGION"))
	set(stringVar(&cfg.LanguageCode, "LANGUAGE_CODE"))
	set(stringVar(&cfg.ModelID, "LLM_MODEL_ID"))
	set(stringVar(&cfg.S3Bucket, "S3_BUCKET_NAME"))
	set(stringVar(&cfg.ImagePrefix, "IMAGE_BUCKET_PREFIX"))
	set(stringVar(&cfg.AudioPrefix, "AUDIO_BUCKET_PREFIX"))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects option combinations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.VideoFrameSampleRate <= 0 {
		return fmt.Errorf("VIDEO_FRAME_SAMPLE_RATE must be positive, got %v", c.VideoFrameSampleRate)
	}
	if c.AudioChunkSeconds <= 0 {
		return fmt.Errorf("AUDIO_CHUNK must be positive, got %v", c.AudioChunkSeconds)
	}
	if c.CandidateSlice <= 0 {
		return fmt.Errorf("CANDIDATE_SLICE must be positive, got %v", c.CandidateSlice)
	}
	if c.HighlightMinLen <= 0 || c.HighlightMaxLen < c.HighlightMinLen {
		return fmt.Errorf("highlight length bounds invalid: min=%v max=%v", c.HighlightMinLen, c.HighlightMaxLen)
	}
	if c.TargetSampleRate <= 0 {
		return fmt.Errorf("TARGET_SAMPLE_RATE must be positive, got %d", c.TargetSampleRate)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	}
	return nil
}

// StreamDir returns the per-stream artifact root.
func (c *Config) StreamDir(streamID string) string {
	return c.BaseDir + "/" + streamID
}

func stringVar(dst *string, key string) func() error {
	return func() error {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
		return nil
	}
}

func intVar(dst *int, key string) func() error {
	return func() error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = parsed
		return nil
	}
}

func floatVar(dst *float64, key string) func() error {
	return func() error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = parsed
		return nil
	}
}

func boolVar(dst *bool, key string) func() error {
	return func() error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = parsed
		return nil
	}
}
