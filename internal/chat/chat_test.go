package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/faithh/faithh/internal/intent"
	"github.com/faithh/faithh/internal/knowledge"
	"github.com/faithh/faithh/internal/rag"
	"github.com/faithh/faithh/internal/session"
	"github.com/faithh/faithh/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockCompleter struct {
	text     string
	provider string
	err      error
	prompts  []string
}

func (m *mockCompleter) Complete(ctx context.Context, prompt, preferred string) (string, string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", "", m.err
	}
	return m.text, m.provider, nil
}

type mockBuilder struct {
	block     rag.Block
	citations []rag.Citation
	calls     int
}

func (m *mockBuilder) Assemble(ctx context.Context, query string, in intent.Intent, sessionID string, retrievalEnabled bool) (rag.Block, []rag.Citation) {
	m.calls++
	return m.block, m.citations
}

func newTestOrchestrator(t *testing.T, gw Completer, builder ContextBuilder) (*Orchestrator, *session.Store) {
	t.Helper()
	sessions := session.New(session.Config{}, testutil.DiscardLogger())
	o, err := New(Config{
		Gateway:    gw,
		Assembler:  builder,
		Classifier: intent.NewClassifier(nil),
		Sessions:   sessions,
		Logger:     testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return o, sessions
}

func TestAnswer_Success(t *testing.T) {
	gw := &mockCompleter{text: "the answer", provider: "gemini"}
	builder := &mockBuilder{
		block: rag.Block{Sections: []rag.Section{{Label: "RECENT CONVERSATION", Text: "User: hi"}}},
		citations: []rag.Citation{
			{Source: "notes.md", Snippet: "snippet"},
		},
	}
	o, sessions := newTestOrchestrator(t, gw, builder)

	res, err := o.Answer(context.Background(), "what is pgvector?", "", "", true)
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if res.Text != "the answer" || res.Provider != "gemini" {
		t.Errorf("result = (%q, %q)", res.Text, res.Provider)
	}
	if res.SessionID == "" {
		t.Error("result should carry the created session id")
	}
	if len(res.Citations) != 1 {
		t.Errorf("citations = %d, want 1", len(res.Citations))
	}
	if res.Elapsed <= 0 {
		t.Errorf("Elapsed = %v, want positive", res.Elapsed)
	}
	if res.ElapsedSeconds != res.Elapsed.Seconds() {
		t.Errorf("ElapsedSeconds = %v, want %v", res.ElapsedSeconds, res.Elapsed.Seconds())
	}

	sess, err := sessions.Get(res.SessionID)
	if err != nil {
		t.Fatalf("Get(%q) error: %v", res.SessionID, err)
	}
	if len(sess.History) != 1 || sess.History[0].Answer != "the answer" {
		t.Errorf("history = %+v, want the exchange recorded", sess.History)
	}
}

func TestAnswer_PromptCarriesContextAndQuery(t *testing.T) {
	gw := &mockCompleter{text: "ok", provider: "gemini"}
	builder := &mockBuilder{
		block: rag.Block{Sections: []rag.Section{{Label: "DOMAIN REFERENCE", Text: "briefing"}}},
	}
	o, _ := newTestOrchestrator(t, gw, builder)

	if _, err := o.Answer(context.Background(), "explain resonance", "", "", true); err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if len(gw.prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(gw.prompts))
	}
	prompt := gw.prompts[0]
	if !strings.Contains(prompt, "=== DOMAIN REFERENCE ===") {
		t.Error("prompt missing context block")
	}
	if !strings.Contains(prompt, "USER QUERY: explain resonance") {
		t.Error("prompt missing user query")
	}
	if !strings.HasPrefix(prompt, personaPrompt) {
		t.Error("prompt should start with the persona preamble")
	}
}

func TestAnswer_EmptyContextOmitsBlock(t *testing.T) {
	gw := &mockCompleter{text: "ok", provider: "gemini"}
	o, _ := newTestOrchestrator(t, gw, &mockBuilder{})

	if _, err := o.Answer(context.Background(), "hello", "", "", true); err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if strings.Contains(gw.prompts[0], "CONTEXT:") {
		t.Error("empty block should not emit a CONTEXT header")
	}
}

func TestAnswer_GenerationFailureLeavesSessionUntouched(t *testing.T) {
	gw := &mockCompleter{err: errors.New("all providers down")}
	o, sessions := newTestOrchestrator(t, gw, &mockBuilder{})

	id := sessions.GetOrCreate("")
	_, err := o.Answer(context.Background(), "hello", id, "", true)
	if err == nil {
		t.Fatal("Answer() should fail when generation fails")
	}

	sess, err := sessions.Get(id)
	if err != nil {
		t.Fatalf("Get(%q) error: %v", id, err)
	}
	if len(sess.History) != 0 {
		t.Errorf("history = %+v, want empty after failed generation", sess.History)
	}
}

func TestAnswer_ReusesExistingSession(t *testing.T) {
	gw := &mockCompleter{text: "ok", provider: "gemini"}
	o, sessions := newTestOrchestrator(t, gw, &mockBuilder{})

	first, err := o.Answer(context.Background(), "first", "", "", true)
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	second, err := o.Answer(context.Background(), "second", first.SessionID, "", true)
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session id changed: %q then %q", first.SessionID, second.SessionID)
	}

	sess, _ := sessions.Get(first.SessionID)
	if len(sess.History) != 2 {
		t.Errorf("history length = %d, want 2", len(sess.History))
	}
}

func TestAnswer_EmptyQuery(t *testing.T) {
	o, _ := newTestOrchestrator(t, &mockCompleter{text: "ok"}, &mockBuilder{})

	if _, err := o.Answer(context.Background(), "   ", "", "", true); err == nil {
		t.Error("Answer() should reject an empty query")
	}
}

func TestAnswer_IntentAttached(t *testing.T) {
	gw := &mockCompleter{text: "ok", provider: "gemini"}
	o, _ := newTestOrchestrator(t, gw, &mockBuilder{})

	res, err := o.Answer(context.Background(), "who are you?", "", "", true)
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if !res.Intent.SelfQuery {
		t.Error("result intent should mark the self-query")
	}
}

type mockTopics struct {
	queries []string
	err     error
}

func (m *mockTopics) AppendRecentTopic(query, answer string) error {
	if m.err != nil {
		return m.err
	}
	m.queries = append(m.queries, query)
	return nil
}

func TestAnswer_RecordsTopicAndIndexesConversation(t *testing.T) {
	gw := &mockCompleter{text: "the answer", provider: "ollama"}
	topics := &mockTopics{}
	adder := &mockAdder{}
	ix := NewIndexer(adder, 8, testutil.DiscardLogger())

	o, err := New(Config{
		Gateway:    gw,
		Assembler:  &mockBuilder{},
		Classifier: intent.NewClassifier(nil),
		Sessions:   session.New(session.Config{}, testutil.DiscardLogger()),
		Logger:     testutil.DiscardLogger(),
		Topics:     topics,
		Indexer:    ix,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	res, err := o.Answer(context.Background(), "what is pgvector?", "", "", true)
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	ix.Close()

	if len(topics.queries) != 1 || topics.queries[0] != "what is pgvector?" {
		t.Errorf("topics = %v, want the query recorded", topics.queries)
	}

	docs := adder.added()
	if len(docs) != 1 {
		t.Fatalf("indexed = %d, want 1", len(docs))
	}
	doc := docs[0]
	if !strings.HasPrefix(doc.ID, "conversation:") {
		t.Errorf("doc id = %q, want conversation prefix", doc.ID)
	}
	if doc.Metadata[knowledge.MetaCategory] != knowledge.CategoryLiveConversation {
		t.Errorf("category = %q", doc.Metadata[knowledge.MetaCategory])
	}
	if doc.Metadata[knowledge.MetaProvider] != "ollama" {
		t.Errorf("provider = %q", doc.Metadata[knowledge.MetaProvider])
	}
	if doc.Metadata[knowledge.MetaSession] != res.SessionID {
		t.Errorf("session = %q, want %q", doc.Metadata[knowledge.MetaSession], res.SessionID)
	}
	if !strings.Contains(doc.Content, "User: what is pgvector?") || !strings.Contains(doc.Content, "Assistant: the answer") {
		t.Errorf("content = %q", doc.Content)
	}
}

func TestAnswer_TopicFailureDoesNotFailTurn(t *testing.T) {
	gw := &mockCompleter{text: "ok", provider: "gemini"}
	topics := &mockTopics{err: errors.New("disk full")}
	sessions := session.New(session.Config{}, testutil.DiscardLogger())

	o, err := New(Config{
		Gateway:    gw,
		Assembler:  &mockBuilder{},
		Classifier: intent.NewClassifier(nil),
		Sessions:   sessions,
		Logger:     testutil.DiscardLogger(),
		Topics:     topics,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	res, err := o.Answer(context.Background(), "hello", "", "", true)
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	sess, _ := sessions.Get(res.SessionID)
	if len(sess.History) != 1 {
		t.Error("session should record the exchange despite topic failure")
	}
}

func TestNew_Validation(t *testing.T) {
	base := func() Config {
		return Config{
			Gateway:    &mockCompleter{},
			Assembler:  &mockBuilder{},
			Classifier: intent.NewClassifier(nil),
			Sessions:   session.New(session.Config{}, testutil.DiscardLogger()),
			Logger:     testutil.DiscardLogger(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing gateway", func(c *Config) { c.Gateway = nil }},
		{"missing assembler", func(c *Config) { c.Assembler = nil }},
		{"missing classifier", func(c *Config) { c.Classifier = nil }},
		{"missing sessions", func(c *Config) { c.Sessions = nil }},
		{"missing logger", func(c *Config) { c.Logger = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New() should reject incomplete config")
			}
		})
	}
}
