// Package chat orchestrates a single question/answer turn: classify
// the query, assemble context, generate through the provider gateway,
// then record the exchange in the session, the recent-topics memory,
// and the vector index. Generation failure is the only fatal path;
// every post-generation side effect is best-effort.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/faithh/faithh/internal/intent"
	"github.com/faithh/faithh/internal/knowledge"
	"github.com/faithh/faithh/internal/rag"
	"github.com/faithh/faithh/internal/session"
)

// personaPrompt frames every generation. The assembled context block
// is appended below it, then the user's query.
const personaPrompt = `You are FAITHH, a personal AI assistant with persistent memory of the user's projects, decisions, and past conversations. Answer from the provided context when it is relevant; say plainly when you do not know something. Be direct and concrete.`

// Completer is the generation surface, satisfied by gateway.Gateway.
type Completer interface {
	Complete(ctx context.Context, prompt, preferred string) (text, provider string, err error)
}

// ContextBuilder assembles the context block, satisfied by
// rag.Assembler.
type ContextBuilder interface {
	Assemble(ctx context.Context, query string, in intent.Intent, sessionID string, retrievalEnabled bool) (rag.Block, []rag.Citation)
}

// SessionStore is the session surface the orchestrator needs.
type SessionStore interface {
	GetOrCreate(id string) string
	Append(id, query, answer string, in intent.Intent) error
}

// TopicRecorder persists the rolling recent-topics list, satisfied by
// memory.Store. Nil disables topic recording.
type TopicRecorder interface {
	AppendRecentTopic(query, answer string) error
}

// Config carries the orchestrator's dependencies.
type Config struct {
	Gateway    Completer
	Assembler  ContextBuilder
	Classifier *intent.Classifier
	Sessions   SessionStore
	Logger     *slog.Logger

	// Optional side effects.
	Topics  TopicRecorder
	Indexer *Indexer
}

func (cfg Config) validate() error {
	if cfg.Gateway == nil {
		return errors.New("gateway is required")
	}
	if cfg.Assembler == nil {
		return errors.New("assembler is required")
	}
	if cfg.Classifier == nil {
		return errors.New("classifier is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Result is one completed exchange. ElapsedSeconds carries the turn
// duration over the wire; Elapsed is the same value for Go callers.
type Result struct {
	Text           string         `json:"response"`
	Provider       string         `json:"provider"`
	SessionID      string         `json:"session_id"`
	Intent         intent.Intent  `json:"intent"`
	Citations      []rag.Citation `json:"citations,omitempty"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Elapsed        time.Duration  `json:"-"`
}

// Orchestrator runs chat turns. It is stateless across requests; all
// state lives in the injected stores.
type Orchestrator struct {
	gateway    Completer
	assembler  ContextBuilder
	classifier *intent.Classifier
	sessions   SessionStore
	topics     TopicRecorder
	indexer    *Indexer
	logger     *slog.Logger
}

// New creates an Orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("chat config: %w", err)
	}
	return &Orchestrator{
		gateway:    cfg.Gateway,
		assembler:  cfg.Assembler,
		classifier: cfg.Classifier,
		sessions:   cfg.Sessions,
		topics:     cfg.Topics,
		indexer:    cfg.Indexer,
		logger:     cfg.Logger,
	}, nil
}

// Answer runs one turn. An empty sessionID starts a new session; the
// resolved id is returned in the Result either way. modelPreference
// names the provider to try first ("" uses the configured order).
//
// If generation fails, nothing is recorded anywhere and the session
// history is unchanged.
func (o *Orchestrator) Answer(ctx context.Context, query, sessionID, modelPreference string, retrievalEnabled bool) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}

	start := time.Now()
	sessionID = o.sessions.GetOrCreate(sessionID)
	in := o.classifier.Classify(query)

	block, citations := o.assembler.Assemble(ctx, query, in, sessionID, retrievalEnabled)
	prompt := buildPrompt(block, query)

	text, provider, err := o.gateway.Complete(ctx, prompt, modelPreference)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	o.record(sessionID, query, text, provider, in)

	o.logger.Info("chat turn complete",
		"session_id", sessionID,
		"provider", provider,
		"elapsed", time.Since(start),
		"context_sections", len(block.Sections),
		"citations", len(citations))

	elapsed := time.Since(start)
	return &Result{
		Text:           text,
		Provider:       provider,
		SessionID:      sessionID,
		Intent:         in,
		Citations:      citations,
		ElapsedSeconds: elapsed.Seconds(),
		Elapsed:        elapsed,
	}, nil
}

// record applies the post-generation side effects. Each is
// independent; a failure is logged and the rest still run.
func (o *Orchestrator) record(sessionID, query, text, provider string, in intent.Intent) {
	if err := o.sessions.Append(sessionID, query, text, in); err != nil {
		o.logger.Warn("session append failed", "session_id", sessionID, "error", err)
	}

	if o.topics != nil {
		if err := o.topics.AppendRecentTopic(query, text); err != nil {
			o.logger.Warn("recent topic append failed", "error", err)
		}
	}

	if o.indexer != nil {
		o.indexer.Enqueue(knowledge.Document{
			ID:      "conversation:" + uuid.NewString(),
			Content: "User: " + query + "\nAssistant: " + text,
			Metadata: map[string]string{
				knowledge.MetaCategory: knowledge.CategoryLiveConversation,
				knowledge.MetaProvider: provider,
				knowledge.MetaSession:  sessionID,
			},
		})
	}
}

func buildPrompt(block rag.Block, query string) string {
	var sb strings.Builder
	sb.WriteString(personaPrompt)
	sb.WriteString("\n\n")
	if !block.Empty() {
		sb.WriteString("CONTEXT:\n")
		sb.WriteString(block.Render())
		sb.WriteString("\n\n")
	}
	sb.WriteString("USER QUERY: ")
	sb.WriteString(query)
	return sb.String()
}

// interface checks live here so a drift in session.Store's method set
// fails the build, not a wire-up at runtime.
var _ SessionStore = (*session.Store)(nil)
