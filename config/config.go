// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type InputMode string

const (
	// InputSpeech relies on the provider's own speech recognition.
	InputSpeech InputMode = "speech"
	// InputRecording records the caller and transcribes with Whisper.
	InputRecording InputMode = "recording"
)

type Config struct {
	Addr string
	// PublicURL is the externally visible base URL Twilio calls, used to
	// verify request signatures behind proxies. Empty means derive it from
	// the request.
	PublicURL string

	LogFormat string // json | text
	LogLevel  string

	// Context store
	StoreType      string // memory | redis | sql
	RedisURL       string
	RedisKeyPrefix string
	DBDriver       string
	DBDSN          string
	SessionTTL     time.Duration
	MaxStoredTurns int

	// Synthesized audio storage
	ObjectStore    string // s3 | supabase
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
	SignedURLTTL   time.Duration
	TempDir        string

	// Agent profiles
	Greeting         string
	SystemPrompt     string
	VoiceID          string
	ProfileFile      string
	SupabaseProfiles bool
	ProfileCacheTTL  time.Duration

	// Language model
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	Model          string
	Temperature    float64
	MaxTokens      int64
	WindowTurns    int
	WindowTokens   int
	EmbeddingModel string

	// Knowledge grounding, enabled when QdrantURL is set
	QdrantURL         string
	QdrantAPIKey      string
	QdrantCollection  string
	KnowledgeLimit    int
	KnowledgeMinScore float64

	// Speech synthesis
	TTSProvider string // neets | elevenlabs
	TTSAPIKey   string
	TTSBaseURL  string

	// Telephony
	InputMode          InputMode
	GatherTimeout      int // seconds of caller silence before giving up
	Language           string
	SayVoice           string
	TwilioAccountSID   string
	TwilioAuthToken    string
	ValidateSignatures bool

	// Per-step budgets
	TranscribeTimeout time.Duration
	CompletionTimeout time.Duration
	SynthesisTimeout  time.Duration
	StoreTimeout      time.Duration
	ProfileTimeout    time.Duration
	RetryMax          int
	RetryBase         time.Duration

	// TurnBudget bounds one webhook, retries included. Twilio gives up
	// after 15 seconds.
	TurnBudget time.Duration

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

// Load reads a .env file from the working directory, if present, then
// calls LoadFromEnv. Variables already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFromEnv()
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("PHONECALL_ADDR", ":8080"),
		PublicURL:           strings.TrimRight(envOr("PHONECALL_PUBLIC_URL", ""), "/"),
		LogFormat:           strings.ToLower(envOr("PHONECALL_LOG_FORMAT", "json")),
		LogLevel:            strings.ToLower(envOr("PHONECALL_LOG_LEVEL", "info")),
		StoreType:           strings.ToLower(envOr("PHONECALL_STORE", "memory")),
		RedisURL:            envOr("PHONECALL_REDIS_URL", "redis://localhost:6379/0"),
		RedisKeyPrefix:      envOr("PHONECALL_REDIS_KEY_PREFIX", "call:"),
		DBDriver:            strings.ToLower(envOr("PHONECALL_DB_DRIVER", "sqlite")),
		DBDSN:               envOr("PHONECALL_DB_DSN", ""),
		SessionTTL:          envDurationOr("PHONECALL_SESSION_TTL", 2*time.Hour),
		MaxStoredTurns:      envIntOr("PHONECALL_MAX_STORED_TURNS", 400),
		ObjectStore:         strings.ToLower(envOr("PHONECALL_OBJECT_STORE", "s3")),
		S3Bucket:            envOr("PHONECALL_S3_BUCKET", ""),
		S3Region:            envOr("PHONECALL_S3_REGION", envOr("AWS_REGION", "us-east-1")),
		S3Endpoint:          envOr("PHONECALL_S3_ENDPOINT", ""),
		SupabaseURL:         envOr("SUPABASE_URL", ""),
		SupabaseKey:         envOr("SUPABASE_KEY", ""),
		SupabaseBucket:      envOr("PHONECALL_SUPABASE_BUCKET", "call-audio"),
		SignedURLTTL:        envDurationOr("PHONECALL_SIGNED_URL_TTL", 10*time.Minute),
		TempDir:             envOr("PHONECALL_TEMP_DIR", ""),
		Greeting:            envOr("PHONECALL_GREETING", "Thanks for calling, how can I help you?"),
		SystemPrompt:        envOr("PHONECALL_SYSTEM_PROMPT", "You are a helpful assistant on a phone call. Keep answers short and conversational."),
		VoiceID:             envOr("PHONECALL_VOICE_ID", ""),
		ProfileFile:         envOr("PHONECALL_PROFILE_FILE", ""),
		SupabaseProfiles:    envBoolOr("PHONECALL_SUPABASE_PROFILES", false),
		ProfileCacheTTL:     envDurationOr("PHONECALL_PROFILE_CACHE_TTL", 5*time.Minute),
		OpenAIAPIKey:        envOr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       envOr("OPENAI_BASE_URL", ""),
		Model:               envOr("PHONECALL_MODEL", "gpt-3.5-turbo"),
		Temperature:         envFloat64Or("PHONECALL_TEMPERATURE", 0.9),
		MaxTokens:           envInt64Or("PHONECALL_MAX_TOKENS", 1000),
		WindowTurns:         envIntOr("PHONECALL_WINDOW_TURNS", 40),
		WindowTokens:        envIntOr("PHONECALL_WINDOW_TOKENS", 3000),
		EmbeddingModel:      envOr("PHONECALL_EMBEDDING_MODEL", "text-embedding-3-small"),
		QdrantURL:           envOr("QDRANT_URL", ""),
		QdrantAPIKey:        envOr("QDRANT_API_KEY", ""),
		QdrantCollection:    envOr("PHONECALL_QDRANT_COLLECTION", "phone_knowledge"),
		KnowledgeLimit:      envIntOr("PHONECALL_KNOWLEDGE_LIMIT", 3),
		KnowledgeMinScore:   envFloat64Or("PHONECALL_KNOWLEDGE_MIN_SCORE", 0.35),
		TTSProvider:         strings.ToLower(envOr("PHONECALL_TTS_PROVIDER", "neets")),
		TTSBaseURL:          envOr("PHONECALL_TTS_BASE_URL", ""),
		InputMode:           InputMode(strings.ToLower(envOr("PHONECALL_INPUT_MODE", string(InputSpeech)))),
		GatherTimeout:       envIntOr("PHONECALL_GATHER_TIMEOUT", 30),
		Language:            envOr("PHONECALL_LANGUAGE", "en-US"),
		SayVoice:            envOr("PHONECALL_SAY_VOICE", "alice"),
		TwilioAccountSID:    envOr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     envOr("TWILIO_AUTH_TOKEN", ""),
		ValidateSignatures:  envBoolOr("PHONECALL_VALIDATE_SIGNATURES", true),
		TranscribeTimeout:   envDurationOr("PHONECALL_TRANSCRIBE_TIMEOUT", 15*time.Second),
		CompletionTimeout:   envDurationOr("PHONECALL_COMPLETION_TIMEOUT", 10*time.Second),
		SynthesisTimeout:    envDurationOr("PHONECALL_SYNTHESIS_TIMEOUT", 10*time.Second),
		StoreTimeout:        envDurationOr("PHONECALL_STORE_TIMEOUT", 2*time.Second),
		ProfileTimeout:      envDurationOr("PHONECALL_PROFILE_TIMEOUT", time.Second),
		TurnBudget:          envDurationOr("PHONECALL_TURN_BUDGET", 12*time.Second),
		RetryMax:            envIntOr("PHONECALL_RETRY_MAX", 2),
		RetryBase:           envDurationOr("PHONECALL_RETRY_BASE", 200*time.Millisecond),
		ReadHeaderTimeout:   envDurationOr("PHONECALL_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("PHONECALL_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
	}

	switch cfg.TTSProvider {
	case "neets":
		cfg.TTSAPIKey = envOr("NEETS_API_KEY", "")
	case "elevenlabs":
		cfg.TTSAPIKey = envOr("ELEVENLABS_API_KEY", "")
	default:
		return Config{}, fmt.Errorf("PHONECALL_TTS_PROVIDER must be neets or elevenlabs, got %q", cfg.TTSProvider)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	switch cfg.StoreType {
	case "memory", "redis", "sql":
	default:
		return fmt.Errorf("PHONECALL_STORE must be memory, redis or sql, got %q", cfg.StoreType)
	}
	switch cfg.ObjectStore {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return fmt.Errorf("PHONECALL_S3_BUCKET must be set when PHONECALL_OBJECT_STORE=s3")
		}
	case "supabase":
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY must be set when PHONECALL_OBJECT_STORE=supabase")
		}
	default:
		return fmt.Errorf("PHONECALL_OBJECT_STORE must be s3 or supabase, got %q", cfg.ObjectStore)
	}
	if cfg.SupabaseProfiles && (cfg.SupabaseURL == "" || cfg.SupabaseKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY must be set when PHONECALL_SUPABASE_PROFILES=true")
	}
	switch cfg.InputMode {
	case InputSpeech, InputRecording:
	default:
		return fmt.Errorf("PHONECALL_INPUT_MODE must be speech or recording, got %q", cfg.InputMode)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("PHONECALL_LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if cfg.ValidateSignatures && cfg.TwilioAuthToken == "" {
		return fmt.Errorf("TWILIO_AUTH_TOKEN must be set when PHONECALL_VALIDATE_SIGNATURES=true")
	}

	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("PHONECALL_SESSION_TTL must be > 0")
	}
	if cfg.SignedURLTTL <= 0 {
		return fmt.Errorf("PHONECALL_SIGNED_URL_TTL must be > 0")
	}
	if cfg.GatherTimeout <= 0 {
		return fmt.Errorf("PHONECALL_GATHER_TIMEOUT must be > 0")
	}
	// The audio URL must still work when Twilio fetches it after the caller
	// has been silent for the whole gather window.
	if cfg.SignedURLTTL <= time.Duration(cfg.GatherTimeout)*time.Second {
		return fmt.Errorf("PHONECALL_SIGNED_URL_TTL must exceed PHONECALL_GATHER_TIMEOUT")
	}
	if cfg.TranscribeTimeout <= 0 || cfg.CompletionTimeout <= 0 || cfg.SynthesisTimeout <= 0 || cfg.StoreTimeout <= 0 || cfg.ProfileTimeout <= 0 {
		return fmt.Errorf("PHONECALL_*_TIMEOUT values must be > 0")
	}
	if cfg.TurnBudget <= 0 {
		return fmt.Errorf("PHONECALL_TURN_BUDGET must be > 0")
	}
	if cfg.RetryMax < 0 {
		return fmt.Errorf("PHONECALL_RETRY_MAX must be >= 0")
	}
	if cfg.RetryBase <= 0 {
		return fmt.Errorf("PHONECALL_RETRY_BASE must be > 0")
	}
	if cfg.MaxStoredTurns < 2 {
		return fmt.Errorf("PHONECALL_MAX_STORED_TURNS must be >= 2")
	}
	if cfg.MaxTokens <= 0 {
		return fmt.Errorf("PHONECALL_MAX_TOKENS must be > 0")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return fmt.Errorf("PHONECALL_TEMPERATURE must be between 0 and 2")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("PHONECALL_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("PHONECALL_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
