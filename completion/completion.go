// Package completion produces the assistant's next utterance from the
// conversation so far.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	phonecall "github.com/drewburns/ai-phonecall"
	"github.com/drewburns/ai-phonecall/internal/oai"
	"github.com/openai/openai-go/v3"
)

// Request is one completion call.
type Request struct {
	// SystemPrompt sets the agent persona. Optional.
	SystemPrompt string

	// Agent scopes knowledge retrieval. Optional.
	Agent string

	// History is the conversation so far, oldest first. It may be empty.
	History phonecall.History
}

// Completer turns an ordered history into the next assistant reply.
// Failures wrap phonecall.ErrCompletion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Retriever supplies knowledge snippets relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, agent, query string) ([]string, error)
}

const emptyConversationPrompt = "The caller has not said anything yet. Greet them and ask how you can help."

// ErrEmptyReply is returned when the model answers with nothing usable.
var ErrEmptyReply = fmt.Errorf("empty reply: %w", phonecall.ErrCompletion)

// Config holds model parameters.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int64

	// Window bounds what is sent to the model; the stored history is untouched.
	WindowTurns  int
	WindowTokens int
}

// DefaultConfig returns the parameters the agent was tuned with.
func DefaultConfig() Config {
	return Config{
		Model:        openai.ChatModelGPT3_5Turbo,
		Temperature:  0.9,
		MaxTokens:    1000,
		WindowTurns:  40,
		WindowTokens: 3000,
	}
}

// OpenAI completes conversations with the chat completions API.
type OpenAI struct {
	client    openai.Client
	cfg       Config
	retriever Retriever
	logger    *slog.Logger
}

// Option configures an OpenAI completer.
type Option func(*OpenAI)

// WithLogger sets the logger used for degraded knowledge lookups.
func WithLogger(logger *slog.Logger) Option {
	return func(o *OpenAI) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOpenAI returns an OpenAI completer. A blank model or non-positive max
// tokens take defaults; retriever may be nil.
func NewOpenAI(client openai.Client, cfg Config, retriever Retriever, opts ...Option) *OpenAI {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	o := &OpenAI{client: client, cfg: cfg, retriever: retriever, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	window := phonecall.TruncateHistory(req.History, o.cfg.WindowTokens, o.cfg.WindowTurns)

	system := strings.TrimSpace(req.SystemPrompt)
	if o.retriever != nil {
		if last, ok := lastCallerText(window); ok {
			// Knowledge is optional; answer without it.
			snippets, err := o.retriever.Retrieve(ctx, req.Agent, last)
			if err != nil {
				o.logger.WarnContext(ctx, "knowledge retrieval failed", "agent", req.Agent, "error", err)
			} else {
				system = withKnowledge(system, snippets)
			}
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       o.cfg.Model,
		Messages:    buildMessages(system, window),
		MaxTokens:   openai.Int(o.cfg.MaxTokens),
		Temperature: openai.Float(o.cfg.Temperature),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", oai.Wrap("chat completion", err, phonecall.ErrCompletion)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices: %w", phonecall.ErrCompletion)
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

func buildMessages(system string, history phonecall.History) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, turn := range history {
		switch turn.Role {
		case phonecall.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		default:
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}
	// The API rejects an empty message list.
	if len(messages) == 0 {
		messages = append(messages, openai.SystemMessage(emptyConversationPrompt))
	}
	return messages
}

func lastCallerText(history phonecall.History) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == phonecall.RoleCaller {
			return history[i].Text, true
		}
	}
	return "", false
}

func withKnowledge(system string, snippets []string) string {
	if len(snippets) == 0 {
		return system
	}
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	b.WriteString("Use the following reference material when it is relevant:\n")
	for _, s := range snippets {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var _ Completer = (*OpenAI)(nil)
