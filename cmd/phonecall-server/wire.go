package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/drewburns/ai-phonecall/completion"
	"github.com/drewburns/ai-phonecall/config"
	"github.com/drewburns/ai-phonecall/httpapi"
	"github.com/drewburns/ai-phonecall/internal/db"
	"github.com/drewburns/ai-phonecall/internal/oai"
	"github.com/drewburns/ai-phonecall/metrics"
	"github.com/drewburns/ai-phonecall/objectstore"
	s3store "github.com/drewburns/ai-phonecall/objectstore/s3"
	"github.com/drewburns/ai-phonecall/profile"
	"github.com/drewburns/ai-phonecall/session"
	"github.com/drewburns/ai-phonecall/session/drivers"
	"github.com/drewburns/ai-phonecall/supabase"
	"github.com/drewburns/ai-phonecall/synth"
	"github.com/drewburns/ai-phonecall/transcribe"
	"github.com/drewburns/ai-phonecall/turn"
	"github.com/drewburns/ai-phonecall/vectorstore"
	"github.com/drewburns/ai-phonecall/vectorstore/qdrant"
	"github.com/redis/go-redis/v9"
)

// app is the wired server and everything that must be closed after it.
type app struct {
	handler http.Handler
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func (a *app) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			logger.Warn("close failed", "resource", c.name, "error", err)
		}
	}
	a.closers = nil
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close(logger)
		}
	}()

	m := metrics.New("phonecall")

	store, err := openSessionStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	a.onClose("session store", store.Close)

	var sb *supabase.Client
	if cfg.ObjectStore == "supabase" || cfg.SupabaseProfiles {
		sb, err = supabase.New(supabase.Config{
			URL:      cfg.SupabaseURL,
			APIKey:   cfg.SupabaseKey,
			CacheTTL: cfg.ProfileCacheTTL,
			Bucket:   cfg.SupabaseBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("supabase: %w", err)
		}
		a.onClose("supabase", sb.Close)
	}

	objects, err := openObjectStore(ctx, cfg, sb)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	client := oai.NewClient(oai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL})

	var retriever completion.Retriever
	if cfg.QdrantURL != "" {
		qc, err := qdrant.New(qdrant.Config{
			URL:            cfg.QdrantURL,
			CollectionName: cfg.QdrantCollection,
			APIKey:         cfg.QdrantAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		a.onClose("qdrant", qc.Close)
		embedder := completion.NewEmbedder(client, cfg.EmbeddingModel)
		retriever = vectorstore.NewRetriever(embedder, qc, cfg.KnowledgeLimit, float32(cfg.KnowledgeMinScore))
	}

	completer := completion.NewOpenAI(client, completion.Config{
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		WindowTurns:  cfg.WindowTurns,
		WindowTokens: cfg.WindowTokens,
	}, retriever, completion.WithLogger(logger))

	synthesizer := synth.New(newRenderer(cfg), objects,
		synth.WithURLTTL(cfg.SignedURLTTL),
		synth.WithTempDir(cfg.TempDir),
	)

	transcriber := transcribe.NewWhisper(client,
		transcribe.WithBasicAuth(cfg.TwilioAccountSID, cfg.TwilioAuthToken),
		transcribe.WithTempDir(cfg.TempDir),
	)

	var sources []profile.Source
	if cfg.ProfileFile != "" {
		fs, err := profile.LoadFile(cfg.ProfileFile)
		if err != nil {
			return nil, fmt.Errorf("profiles: %w", err)
		}
		sources = append(sources, fs)
	}
	if cfg.SupabaseProfiles {
		sources = append(sources, sb)
	}
	profiles := profile.NewResolver(profile.Profile{
		Greeting:     cfg.Greeting,
		SystemPrompt: cfg.SystemPrompt,
		VoiceID:      cfg.VoiceID,
	}, logger, sources...)

	ctrl, err := turn.New(turn.Deps{
		Store:       store,
		Completer:   completer,
		Synthesizer: synthesizer,
		Transcriber: transcriber,
		Profiles:    profiles,
		Logger:      logger,
		Metrics:     m,
	}, turn.Config{
		MaxStoredTurns:    cfg.MaxStoredTurns,
		TranscribeTimeout: cfg.TranscribeTimeout,
		CompletionTimeout: cfg.CompletionTimeout,
		SynthesisTimeout:  cfg.SynthesisTimeout,
		StoreTimeout:      cfg.StoreTimeout,
		ProfileTimeout:    cfg.ProfileTimeout,
		TurnBudget:        cfg.TurnBudget,
		RetryMax:          cfg.RetryMax,
		RetryBase:         cfg.RetryBase,
	})
	if err != nil {
		return nil, err
	}

	a.handler = httpapi.New(cfg, ctrl, logger, m).Handler()
	return a, nil
}

func openSessionStore(cfg config.Config) (session.Store, error) {
	opts := []session.StoreOption{session.WithTTL(cfg.SessionTTL)}

	switch session.StoreType(cfg.StoreType) {
	case session.StoreTypeRedis:
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = append(opts,
			session.WithRedisClient(redis.NewClient(redisOpts)),
			session.WithKeyPrefix(cfg.RedisKeyPrefix),
		)
	case session.StoreTypeSQL:
		gdb, err := db.OpenGorm(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithDB(gdb))
	}

	return drivers.New(session.StoreType(cfg.StoreType), opts...)
}

func openObjectStore(ctx context.Context, cfg config.Config, sb *supabase.Client) (objectstore.Store, error) {
	switch cfg.ObjectStore {
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	case "supabase":
		if sb == nil {
			return nil, errors.New("supabase client not configured")
		}
		return sb, nil
	default:
		return nil, fmt.Errorf("unknown object store %q", cfg.ObjectStore)
	}
}

func newRenderer(cfg config.Config) synth.Renderer {
	httpClient := &http.Client{Timeout: cfg.SynthesisTimeout}
	if cfg.TTSProvider == "elevenlabs" {
		return synth.NewElevenLabs(cfg.TTSAPIKey, cfg.TTSBaseURL, httpClient)
	}
	return synth.NewNeets(cfg.TTSAPIKey, cfg.TTSBaseURL, httpClient)
}
