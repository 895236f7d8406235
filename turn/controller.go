// Package turn runs the per-call turn-taking cycle: each webhook loads the
// call's context, produces a reply, commits the turn and tells the telephony
// layer what to play next.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	phonecall "github.com/drewburns/ai-phonecall"
	"github.com/drewburns/ai-phonecall/completion"
	"github.com/drewburns/ai-phonecall/metrics"
	"github.com/drewburns/ai-phonecall/profile"
	"github.com/drewburns/ai-phonecall/session"
	"github.com/drewburns/ai-phonecall/synth"
	"github.com/drewburns/ai-phonecall/transcribe"
)

const (
	defaultApology  = "Sorry, I'm having trouble right now. Could you say that again?"
	defaultReprompt = "Sorry, I didn't catch that. Could you say it again?"
)

// ProfileResolver picks the agent persona for a dialed number.
type ProfileResolver interface {
	Resolve(ctx context.Context, number string) profile.Profile
}

// Config holds turn budgets and canned prompts.
type Config struct {
	// MaxStoredTurns caps the stored history; older turns are dropped in
	// caller/assistant pairs.
	MaxStoredTurns int

	TranscribeTimeout time.Duration
	CompletionTimeout time.Duration
	SynthesisTimeout  time.Duration
	StoreTimeout      time.Duration
	ProfileTimeout    time.Duration

	// TurnBudget bounds a whole webhook, retries included. Retries that
	// could not finish inside it are not started.
	TurnBudget time.Duration

	// RetryMax is how many times a transient adapter failure is retried.
	RetryMax  int
	RetryBase time.Duration

	Apology  string
	Reprompt string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxStoredTurns:    400,
		TranscribeTimeout: 15 * time.Second,
		CompletionTimeout: 10 * time.Second,
		SynthesisTimeout:  10 * time.Second,
		StoreTimeout:      2 * time.Second,
		ProfileTimeout:    time.Second,
		TurnBudget:        12 * time.Second,
		RetryMax:          2,
		RetryBase:         200 * time.Millisecond,
		Apology:           defaultApology,
		Reprompt:          defaultReprompt,
	}
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Store       session.Store
	Completer   completion.Completer
	Synthesizer synth.Synthesizer
	Transcriber transcribe.Transcriber // Only needed for HandleRecording
	Profiles    ProfileResolver
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Controller orchestrates one turn per inbound event. It holds no per-call
// state; everything that outlives a request lives in the store.
type Controller struct {
	store       session.Store
	completer   completion.Completer
	synthesizer synth.Synthesizer
	transcriber transcribe.Transcriber
	profiles    ProfileResolver
	logger      *slog.Logger
	metrics     *metrics.Metrics
	cfg         Config
}

// New returns a Controller. Zero durations and counts in cfg take defaults.
func New(deps Deps, cfg Config) (*Controller, error) {
	if deps.Store == nil || deps.Completer == nil || deps.Synthesizer == nil {
		return nil, errors.New("turn: store, completer and synthesizer are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Profiles == nil {
		deps.Profiles = profile.NewResolver(profile.Profile{}, deps.Logger)
	}

	def := DefaultConfig()
	if cfg.MaxStoredTurns <= 0 {
		cfg.MaxStoredTurns = def.MaxStoredTurns
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = def.TranscribeTimeout
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = def.CompletionTimeout
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = def.SynthesisTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.ProfileTimeout <= 0 {
		cfg.ProfileTimeout = def.ProfileTimeout
	}
	if cfg.TurnBudget <= 0 {
		cfg.TurnBudget = def.TurnBudget
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if strings.TrimSpace(cfg.Apology) == "" {
		cfg.Apology = def.Apology
	}
	if strings.TrimSpace(cfg.Reprompt) == "" {
		cfg.Reprompt = def.Reprompt
	}

	return &Controller{
		store:       deps.Store,
		completer:   deps.Completer,
		synthesizer: deps.Synthesizer,
		transcriber: deps.Transcriber,
		profiles:    deps.Profiles,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		cfg:         cfg,
	}, nil
}

// HandleInboundCall starts a call: any context stored under the call
// identifier is replaced by a fresh empty session, and the greeting is
// played before listening for the caller.
func (c *Controller) HandleInboundCall(ctx context.Context, call Call) Instruction {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TurnBudget)
	defer cancel()

	log := c.logger.With("call_id", call.ID)
	prof := c.resolve(ctx, call.To)

	s := session.New(call.ID)
	s.From = call.From
	s.To = call.To
	if err := s.Transition(session.StateAwaitingSpeech); err != nil {
		return c.fallback(ctx, log, fmt.Errorf("%w: %w", phonecall.ErrStore, err))
	}

	err := c.invoke(ctx, "store", phonecall.ErrStore, c.cfg.StoreTimeout, true, func(ctx context.Context) error {
		return c.store.Create(ctx, s)
	})
	if err != nil {
		// A failed replace must not leave the previous call's history behind.
		if clearErr := c.store.Clear(context.WithoutCancel(ctx), call.ID); clearErr != nil {
			log.Error("clear stale session failed", "error", clearErr)
		}
		return c.fallback(ctx, log, err)
	}

	c.metrics.RecordTurn("greeting")
	log.Info("call started", "from", call.From, "to", call.To, "agent", prof.Name)
	return c.speak(ctx, log, prof.Greeting, prof.VoiceID)
}

// HandleUtterance runs one conversational turn for text the caller said.
// The caller and assistant turns are committed together or not at all.
func (c *Controller) HandleUtterance(ctx context.Context, callID, text string) Instruction {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TurnBudget)
	defer cancel()
	return c.handleUtterance(ctx, callID, text)
}

func (c *Controller) handleUtterance(ctx context.Context, callID, text string) Instruction {
	log := c.logger.With("call_id", callID)

	text = strings.TrimSpace(text)
	if text == "" {
		c.metrics.RecordTurn("reprompt")
		log.Info("empty utterance, reprompting")
		return Instruction{Say: c.cfg.Reprompt, Listen: true}
	}

	var s *session.CallSession
	err := c.invoke(ctx, "store", phonecall.ErrStore, c.cfg.StoreTimeout, true, func(ctx context.Context) error {
		loaded, err := c.store.Load(ctx, callID)
		if err != nil {
			return err
		}
		s = loaded
		return nil
	})
	if err != nil {
		return c.fallback(ctx, log, err)
	}

	if err := s.Transition(session.StateProcessing); err != nil {
		return c.fallback(ctx, log, fmt.Errorf("%w: %w", phonecall.ErrStore, err))
	}
	log = log.With("state", s.State, "turns", len(s.Turns))

	prof := c.resolve(ctx, s.To)
	history := s.Turns.Append(phonecall.RoleCaller, text)

	var reply string
	err = c.invoke(ctx, "completion", phonecall.ErrCompletion, c.cfg.CompletionTimeout, true, func(ctx context.Context) error {
		r, err := c.completer.Complete(ctx, completion.Request{
			SystemPrompt: prof.SystemPrompt,
			Agent:        prof.Name,
			History:      history,
		})
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		return c.fallback(ctx, log, err)
	}

	if err := s.Transition(session.StateResponding); err != nil {
		return c.fallback(ctx, log, fmt.Errorf("%w: %w", phonecall.ErrStore, err))
	}

	next := s.Clone()
	next.Turns = history.Append(phonecall.RoleAssistant, reply)
	next.CapTurns(c.cfg.MaxStoredTurns)
	if err := next.Transition(session.StateAwaitingSpeech); err != nil {
		return c.fallback(ctx, log, fmt.Errorf("%w: %w", phonecall.ErrStore, err))
	}

	// Attempted once.
	err = c.invoke(ctx, "store", phonecall.ErrStore, c.cfg.StoreTimeout, false, func(ctx context.Context) error {
		return c.store.Save(ctx, next)
	})
	if err != nil {
		if errors.Is(err, session.ErrVersionConflict) {
			log.Warn("concurrent turn for call, dropping this one")
		}
		return c.fallback(ctx, log, err)
	}

	c.metrics.RecordTurn("committed")
	log.Info("turn committed", "version", next.Version)
	return c.speak(ctx, log, reply, prof.VoiceID)
}

// HandleRecording transcribes a caller recording and runs it as a turn.
// A recording with no recognizable speech is treated as an empty utterance.
func (c *Controller) HandleRecording(ctx context.Context, callID, recordingURL string) Instruction {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TurnBudget)
	defer cancel()

	log := c.logger.With("call_id", callID)

	if strings.TrimSpace(recordingURL) == "" {
		return c.handleUtterance(ctx, callID, "")
	}
	if c.transcriber == nil {
		return c.fallback(ctx, log, fmt.Errorf("no transcriber configured: %w", phonecall.ErrTranscription))
	}

	var text string
	err := c.invoke(ctx, "transcription", phonecall.ErrTranscription, c.cfg.TranscribeTimeout, true, func(ctx context.Context) error {
		t, err := c.transcriber.Transcribe(ctx, recordingURL)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	if errors.Is(err, transcribe.ErrEmptyTranscript) {
		return c.handleUtterance(ctx, callID, "")
	}
	if err != nil {
		return c.fallback(ctx, log, err)
	}

	return c.handleUtterance(ctx, callID, text)
}

// resolve bounds the persona lookup so a slow profile source costs the turn
// at most ProfileTimeout.
func (c *Controller) resolve(ctx context.Context, number string) profile.Profile {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProfileTimeout)
	defer cancel()
	return c.profiles.Resolve(ctx, number)
}

// speak synthesizes text and plays it, or falls back to the provider's own
// voice so a committed reply is never lost.
func (c *Controller) speak(ctx context.Context, log *slog.Logger, text, voice string) Instruction {
	var art synth.Artifact
	err := c.invoke(ctx, "synthesis", phonecall.ErrSynthesis, c.cfg.SynthesisTimeout, true, func(ctx context.Context) error {
		a, err := c.synthesizer.Synthesize(ctx, text, voice)
		if err != nil {
			return err
		}
		art = a
		return nil
	})
	if err != nil {
		c.metrics.RecordFallback(phonecall.Kind(err))
		log.Warn("synthesis failed, using provider voice", "error", err)
		return Instruction{Say: text, Listen: true}
	}
	return Instruction{PlayURL: art.URL, Listen: true}
}

// fallback apologizes and keeps listening. Nothing has been committed when
// it is called.
func (c *Controller) fallback(ctx context.Context, log *slog.Logger, err error) Instruction {
	kind := phonecall.Kind(err)
	if kind == "unknown" && ctx.Err() != nil {
		kind = "canceled"
	}
	c.metrics.RecordTurn("fallback")
	c.metrics.RecordFallback(kind)
	log.Error("turn failed", "adapter", kind, "error", err)
	return Instruction{Say: c.cfg.Apology, Listen: true, Fallback: kind}
}
