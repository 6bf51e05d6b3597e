package rag

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/faithh/faithh/internal/intent"
	"github.com/faithh/faithh/internal/knowledge"
	"github.com/faithh/faithh/internal/memory"
	"github.com/faithh/faithh/internal/session"
	"github.com/faithh/faithh/internal/testutil"
)

type mockMemory struct {
	profile   *memory.Profile
	decisions *memory.DecisionLog
	projects  *memory.ProjectStates
	scaffold  *memory.Scaffold
	err       error
}

func (m *mockMemory) Profile() (*memory.Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.profile == nil {
		return &memory.Profile{}, nil
	}
	return m.profile, nil
}

func (m *mockMemory) Decisions() (*memory.DecisionLog, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.decisions == nil {
		return &memory.DecisionLog{}, nil
	}
	return m.decisions, nil
}

func (m *mockMemory) Projects() (*memory.ProjectStates, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.projects == nil {
		return &memory.ProjectStates{}, nil
	}
	return m.projects, nil
}

func (m *mockMemory) Scaffold() (*memory.Scaffold, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.scaffold == nil {
		return &memory.Scaffold{}, nil
	}
	return m.scaffold, nil
}

type mockSessions struct {
	sessions map[string]*session.Session
}

func (m *mockSessions) Get(id string) (*session.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return s, nil
}

// mockIndex returns canned result sets in order, one per Search call.
type mockIndex struct {
	results [][]knowledge.Match
	err     error
	calls   int
}

func (m *mockIndex) Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error) {
	call := m.calls
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if call < len(m.results) {
		return m.results[call], nil
	}
	return nil, nil
}

func match(id, content string, distance float32) knowledge.Match {
	return knowledge.Match{
		Document: knowledge.Document{
			ID:       id,
			Content:  content,
			Metadata: map[string]string{},
		},
		Distance: distance,
	}
}

func newTestAssembler(mem MemorySource, sessions SessionSource, index Index) *Assembler {
	return New(Config{}, mem, sessions, index, testutil.DiscardLogger())
}

func classifier() *intent.Classifier {
	return intent.NewClassifier([]string{"constella", "astris"})
}

func TestAssemble_SelfQueryNeverTouchesIndex(t *testing.T) {
	index := &mockIndex{results: [][]knowledge.Match{{match("d1", "text", 0.1)}}}
	mem := &mockMemory{profile: &memory.Profile{
		SelfAwareness: &memory.SelfAwareness{Identity: "FAITHH", Purpose: "assistant"},
	}}
	a := newTestAssembler(mem, nil, index)

	in := classifier().Classify("who are you?")
	if !in.SelfQuery {
		t.Fatal("query should classify as self-query")
	}

	block, citations := a.Assemble(context.Background(), "who are you?", in, "", true)
	if index.calls != 0 {
		t.Errorf("index searched %d times, want 0 for self-query", index.calls)
	}
	if len(citations) != 0 {
		t.Errorf("citations = %d, want 0", len(citations))
	}
	if !strings.Contains(block.Render(), "=== SELF-AWARENESS ===") {
		t.Error("block missing self-awareness section")
	}
	if !strings.Contains(block.Render(), "Identity: FAITHH") {
		t.Error("block missing profile content")
	}
}

func TestAssemble_SelfQuerySkipsIndexEvenWithoutProfile(t *testing.T) {
	index := &mockIndex{results: [][]knowledge.Match{{match("d1", "text", 0.1)}}}
	mem := &mockMemory{err: errors.New("disk gone")}
	a := newTestAssembler(mem, nil, index)

	in := intent.Intent{SelfQuery: true}
	block, _ := a.Assemble(context.Background(), "who are you?", in, "", true)
	if index.calls != 0 {
		t.Errorf("index searched %d times, want 0", index.calls)
	}
	if !block.Empty() {
		t.Errorf("block should be empty when every source fails, got %q", block.Render())
	}
}

func TestAssemble_RecentConversation(t *testing.T) {
	long := strings.Repeat("x", 600)
	sessions := &mockSessions{sessions: map[string]*session.Session{
		"s1": {
			ID: "s1",
			History: []session.Exchange{
				{Query: "q1", Answer: "a1", Timestamp: time.Now()},
				{Query: "q2", Answer: long, Timestamp: time.Now()},
			},
		},
	}}
	a := newTestAssembler(&mockMemory{}, sessions, nil)

	block, _ := a.Assemble(context.Background(), "anything", intent.Intent{}, "s1", false)
	rendered := block.Render()
	if !strings.Contains(rendered, "=== RECENT CONVERSATION ===") {
		t.Fatal("block missing conversation section")
	}
	if !strings.Contains(rendered, "User: q1") || !strings.Contains(rendered, "Assistant: a1") {
		t.Error("block missing first exchange")
	}
	if strings.Contains(rendered, long) {
		t.Error("long answer should be truncated")
	}
	if !strings.Contains(rendered, strings.Repeat("x", 500)+"...") {
		t.Error("truncated answer should be marked with ellipsis")
	}
}

func TestAssemble_RecentConversationCapped(t *testing.T) {
	var history []session.Exchange
	for i := 0; i < 8; i++ {
		history = append(history, session.Exchange{
			Query:  "q" + string(rune('0'+i)),
			Answer: "a",
		})
	}
	sessions := &mockSessions{sessions: map[string]*session.Session{
		"s1": {ID: "s1", History: history},
	}}
	a := newTestAssembler(&mockMemory{}, sessions, nil)

	block, _ := a.Assemble(context.Background(), "anything", intent.Intent{}, "s1", false)
	rendered := block.Render()
	if strings.Contains(rendered, "User: q2") {
		t.Error("oldest exchanges should be dropped")
	}
	for i := 3; i < 8; i++ {
		if !strings.Contains(rendered, "User: q"+string(rune('0'+i))) {
			t.Errorf("exchange q%d missing from section", i)
		}
	}
}

func TestAssemble_UnknownSessionTolerated(t *testing.T) {
	a := newTestAssembler(&mockMemory{}, &mockSessions{}, nil)

	block, _ := a.Assemble(context.Background(), "anything", intent.Intent{}, "nope", false)
	if !block.Empty() {
		t.Errorf("block should be empty, got %q", block.Render())
	}
}

func TestAssemble_WhyQuestionMatchesDecisions(t *testing.T) {
	mem := &mockMemory{decisions: &memory.DecisionLog{Decisions: []memory.Decision{
		{
			Decision:  "Use Postgres with pgvector for storage",
			Date:      "2026-01-10",
			Rationale: "single store for rows and vectors",
			Alternatives: []memory.Alternative{
				{Option: "dedicated vector DB", RejectedBecause: "extra operational surface"},
			},
			Impact: "one backup story",
		},
		{Decision: "Pick blue for the logo", Date: "2026-02-01", Rationale: "brand", Impact: "none"},
	}}}
	a := newTestAssembler(mem, nil, nil)

	in := classifier().Classify("why did we choose postgres for storage?")
	if !in.WhyQuestion {
		t.Fatal("query should classify as why-question")
	}

	block, _ := a.Assemble(context.Background(), "why did we choose postgres for storage?", in, "", false)
	rendered := block.Render()
	if !strings.Contains(rendered, "=== RELEVANT DECISIONS ===") {
		t.Fatal("block missing decisions section")
	}
	if !strings.Contains(rendered, "Use Postgres with pgvector") {
		t.Error("matching decision missing")
	}
	if !strings.Contains(rendered, "Rejected because extra operational surface") {
		t.Error("alternative missing")
	}
	if strings.Contains(rendered, "blue for the logo") {
		t.Error("unrelated decision should not match")
	}
}

func TestAssemble_DecisionLimitKeepsLogOrder(t *testing.T) {
	var decisions []memory.Decision
	for _, name := range []string{"first", "second", "third", "fourth"} {
		decisions = append(decisions, memory.Decision{
			Decision: name + " storage decision", Rationale: "storage"})
	}
	mem := &mockMemory{decisions: &memory.DecisionLog{Decisions: decisions}}
	a := newTestAssembler(mem, nil, nil)

	in := intent.Intent{WhyQuestion: true}
	block, _ := a.Assemble(context.Background(), "why this storage choice", in, "", false)
	rendered := block.Render()
	for _, want := range []string{"first", "second", "third"} {
		if !strings.Contains(rendered, want+" storage decision") {
			t.Errorf("decision %q missing", want)
		}
	}
	if strings.Contains(rendered, "fourth") {
		t.Error("fourth match should be cut by the limit")
	}
}

func TestAssemble_NextActionNamedProject(t *testing.T) {
	mem := &mockMemory{projects: &memory.ProjectStates{Projects: map[string]memory.ProjectState{
		"constella": {
			FullName:     "Constella",
			CurrentPhase: "phase 2",
			NextMilestone: memory.Milestone{
				Name: "ingest pipeline", TargetDate: "2026-09-15",
			},
			CurrentPriorities: []string{"finish chunker"},
		},
		"astris": {FullName: "Astris", CurrentPhase: "phase 1"},
	}}}
	a := newTestAssembler(mem, nil, nil)

	in := intent.Intent{NextAction: true}
	block, _ := a.Assemble(context.Background(), "what should I work on for constella?", in, "", false)
	rendered := block.Render()
	if !strings.Contains(rendered, "=== PROJECT STATE: CONSTELLA ===") {
		t.Fatalf("block missing named project section, got %q", rendered)
	}
	if !strings.Contains(rendered, "finish chunker") {
		t.Error("priorities missing")
	}
	if strings.Contains(rendered, "Astris") {
		t.Error("other project should not appear when one is named")
	}
}

func TestAssemble_NextActionOverviewWhenNoProjectNamed(t *testing.T) {
	mem := &mockMemory{projects: &memory.ProjectStates{Projects: map[string]memory.ProjectState{
		"constella": {FullName: "Constella", CurrentPhase: "phase 2"},
		"astris":    {FullName: "Astris", CurrentPhase: "phase 1"},
	}}}
	a := newTestAssembler(mem, nil, nil)

	in := intent.Intent{NextAction: true}
	block, _ := a.Assemble(context.Background(), "what should I work on?", in, "", false)
	rendered := block.Render()
	if !strings.Contains(rendered, "=== PROJECT OVERVIEW ===") {
		t.Fatal("block missing overview section")
	}
	if !strings.Contains(rendered, "Astris") || !strings.Contains(rendered, "Constella") {
		t.Error("overview should list every project")
	}
}

func TestAssemble_OrientationScaffold(t *testing.T) {
	mem := &mockMemory{scaffold: &memory.Scaffold{
		Active: memory.ActiveContext{
			PrimaryProject:     "constella",
			StructuralPosition: "phase 2 of 4",
			PhaseGoal:          "working retrieval",
			PositionSummary:    "mid-phase, chunker done",
		},
		RecentCompletions: []memory.Completion{
			{What: "chunker", When: "2026-08-20", Significance: "unblocks ingest", Permission: "move on"},
		},
		OpenLoops: []memory.OpenLoop{
			{Item: "wire embedder", Status: memory.LoopInProgress, WhyStructural: "needed for search"},
			{Item: "old loop", Status: memory.LoopCompleted},
			{Item: "loop b", Status: memory.LoopBlocked, WhyStructural: "b"},
			{Item: "loop c", Status: memory.LoopInProgress, WhyStructural: "c"},
			{Item: "loop d", Status: memory.LoopInProgress, WhyStructural: "d"},
		},
	}}
	a := newTestAssembler(mem, nil, nil)

	in := intent.Intent{NeedsOrientation: true}
	block, _ := a.Assemble(context.Background(), "where was I?", in, "", false)
	rendered := block.Render()
	for _, label := range []string{"=== CURRENT POSITION ===", "=== RECENTLY COMPLETED ===", "=== OPEN LOOPS ==="} {
		if !strings.Contains(rendered, label) {
			t.Errorf("block missing %s", label)
		}
	}
	if !strings.Contains(rendered, "Project: CONSTELLA") {
		t.Error("position should name the project")
	}
	if strings.Contains(rendered, "old loop") {
		t.Error("completed loops should be excluded")
	}
	if strings.Contains(rendered, "loop d") {
		t.Error("open loops should be capped at three")
	}
}

func TestAssemble_TangentWarning(t *testing.T) {
	mem := &mockMemory{scaffold: &memory.Scaffold{
		ParkedTangents: []memory.Tangent{
			{Idea: "rewrite frontend dashboard", WhyParked: "not structural", RevisitWhen: "after phase 2"},
		},
	}}
	a := newTestAssembler(mem, nil, nil)

	in := intent.Intent{NeedsOrientation: true}
	block, _ := a.Assemble(context.Background(), "should I start on the dashboard now?", in, "", false)
	rendered := block.Render()
	if !strings.Contains(rendered, "=== PARKED TANGENT DETECTED ===") {
		t.Fatal("block missing tangent warning")
	}
	if !strings.Contains(rendered, "rewrite frontend dashboard") {
		t.Error("warning should quote the parked idea")
	}
}

func TestAssemble_OrientationSkipsRetrieval(t *testing.T) {
	index := &mockIndex{results: [][]knowledge.Match{{match("d1", "text", 0.1)}}}
	a := newTestAssembler(&mockMemory{}, nil, index)

	in := intent.Intent{NeedsOrientation: true}
	a.Assemble(context.Background(), "where was I?", in, "", true)
	if index.calls != 0 {
		t.Errorf("index searched %d times, want 0 for pure orientation", index.calls)
	}
}

func TestAssemble_DomainQueryRetrievesDespiteOrientation(t *testing.T) {
	index := &mockIndex{results: [][]knowledge.Match{{match("d1", "domain text", 0.1)}}}
	a := newTestAssembler(&mockMemory{}, nil, index)

	in := intent.Intent{NeedsOrientation: true, DomainQuery: true}
	block, _ := a.Assemble(context.Background(), "catch me up on constella", in, "", true)
	if index.calls == 0 {
		t.Fatal("domain query should still retrieve")
	}
	if !strings.Contains(block.Render(), "domain text") {
		t.Error("block missing retrieved excerpt")
	}
}

func TestAssemble_RetrievalDisabled(t *testing.T) {
	index := &mockIndex{results: [][]knowledge.Match{{match("d1", "text", 0.1)}}}
	a := newTestAssembler(&mockMemory{}, nil, index)

	a.Assemble(context.Background(), "anything about postgres", intent.Intent{}, "", false)
	if index.calls != 0 {
		t.Errorf("index searched %d times, want 0 when retrieval disabled", index.calls)
	}
}

func TestAssemble_KnowledgeSectionAndCitations(t *testing.T) {
	long := strings.Repeat("k", 1200)
	index := &mockIndex{results: [][]knowledge.Match{{
		match("d1", long, 0.1),
		match("d2", "second", 0.2),
	}}}
	a := newTestAssembler(&mockMemory{}, nil, index)

	block, citations := a.Assemble(context.Background(), "anything unusual", intent.Intent{}, "", true)
	rendered := block.Render()
	if !strings.Contains(rendered, "=== KNOWLEDGE BASE ===") {
		t.Fatal("block missing knowledge section")
	}
	if strings.Contains(rendered, long) {
		t.Error("excerpt should be truncated to 1000 chars")
	}
	if len(citations) != 2 {
		t.Fatalf("citations = %d, want 2", len(citations))
	}
	if citations[0].Source != "d1" {
		t.Errorf("citation source = %q, want document id fallback", citations[0].Source)
	}
	if len(citations[0].Snippet) != 503 {
		t.Errorf("snippet length = %d, want 500 plus ellipsis", len(citations[0].Snippet))
	}
}

func TestAssemble_CitationPrefersSourceMetadata(t *testing.T) {
	m := match("d1", "content", 0.1)
	m.Document.Metadata["source"] = "notes/architecture.md"
	index := &mockIndex{results: [][]knowledge.Match{{m}}}
	a := newTestAssembler(&mockMemory{}, nil, index)

	_, citations := a.Assemble(context.Background(), "anything unusual", intent.Intent{}, "", true)
	if len(citations) != 1 || citations[0].Source != "notes/architecture.md" {
		t.Errorf("citations = %+v, want source from metadata", citations)
	}
}

func TestAssemble_ConversationFilterGatedByDistance(t *testing.T) {
	// First call is the conversation-filtered search; its best match is
	// too far, so the assembler falls through to the unfiltered search.
	index := &mockIndex{results: [][]knowledge.Match{
		{match("conv", "stale conversation", 0.9)},
		{match("doc", "broad result", 0.3)},
	}}
	a := newTestAssembler(&mockMemory{}, nil, index)

	block, _ := a.Assemble(context.Background(), "what did we decide about chunking?", intent.Intent{}, "", true)
	if index.calls != 2 {
		t.Fatalf("index searched %d times, want 2 (gated fallthrough)", index.calls)
	}
	if !strings.Contains(block.Render(), "broad result") {
		t.Error("block should carry the fallback result")
	}
}

func TestAssemble_ConversationFilterAcceptedUnderThreshold(t *testing.T) {
	index := &mockIndex{results: [][]knowledge.Match{
		{match("conv", "close conversation", 0.2)},
	}}
	a := newTestAssembler(&mockMemory{}, nil, index)

	block, _ := a.Assemble(context.Background(), "what did we decide about chunking?", intent.Intent{}, "", true)
	if index.calls != 1 {
		t.Fatalf("index searched %d times, want 1", index.calls)
	}
	if !strings.Contains(block.Render(), "close conversation") {
		t.Error("block should carry the conversation result")
	}
}

func TestAssemble_DomainFilterFirst(t *testing.T) {
	index := &mockIndex{results: [][]knowledge.Match{
		{match("dom", "domain doc", 0.2)},
	}}
	a := newTestAssembler(&mockMemory{}, nil, index)

	in := intent.Intent{DomainQuery: true}
	block, _ := a.Assemble(context.Background(), "explain the resonance model", in, "", true)
	if index.calls != 1 {
		t.Fatalf("index searched %d times, want 1 (domain filter hit)", index.calls)
	}
	if !strings.Contains(block.Render(), "domain doc") {
		t.Error("block should carry the domain result")
	}
}

func TestAssemble_IndexFailureDegrades(t *testing.T) {
	index := &mockIndex{err: knowledge.ErrIndexUnavailable}
	a := newTestAssembler(&mockMemory{}, nil, index)

	block, citations := a.Assemble(context.Background(), "anything unusual", intent.Intent{}, "", true)
	if !block.Empty() {
		t.Errorf("block should be empty when index is down, got %q", block.Render())
	}
	if len(citations) != 0 {
		t.Errorf("citations = %d, want 0", len(citations))
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	mem := &mockMemory{
		profile: &memory.Profile{
			SelfAwareness: &memory.SelfAwareness{Identity: "FAITHH"},
			Domains:       map[string]string{"domain_reference": "briefing"},
		},
		projects: &memory.ProjectStates{Projects: map[string]memory.ProjectState{
			"a": {FullName: "A", CurrentPhase: "1"},
			"b": {FullName: "B", CurrentPhase: "2"},
			"c": {FullName: "C", CurrentPhase: "3"},
		}},
	}
	a := newTestAssembler(mem, nil, nil)

	in := intent.Intent{NextAction: true}
	first, _ := a.Assemble(context.Background(), "what should I work on?", in, "", false)
	for i := 0; i < 10; i++ {
		again, _ := a.Assemble(context.Background(), "what should I work on?", in, "", false)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%q\nvs\n%q", i, first.Render(), again.Render())
		}
	}
}

func TestAssemble_SectionOrder(t *testing.T) {
	sessions := &mockSessions{sessions: map[string]*session.Session{
		"s1": {ID: "s1", History: []session.Exchange{{Query: "q", Answer: "a"}}},
	}}
	mem := &mockMemory{
		profile: &memory.Profile{
			Domains: map[string]string{"domain_reference": "briefing"},
		},
	}
	index := &mockIndex{results: [][]knowledge.Match{{match("d1", "doc", 0.1)}}}
	a := newTestAssembler(mem, sessions, index)

	in := intent.Intent{DomainQuery: true}
	block, _ := a.Assemble(context.Background(), "explain resonance", in, "s1", true)
	rendered := block.Render()

	conv := strings.Index(rendered, "=== RECENT CONVERSATION ===")
	dom := strings.Index(rendered, "=== DOMAIN REFERENCE ===")
	kb := strings.Index(rendered, "=== KNOWLEDGE BASE ===")
	if conv == -1 || dom == -1 || kb == -1 {
		t.Fatalf("missing sections in %q", rendered)
	}
	if !(conv < dom && dom < kb) {
		t.Errorf("section order wrong: conv=%d dom=%d kb=%d", conv, dom, kb)
	}
}

func TestRender_Empty(t *testing.T) {
	var b Block
	if b.Render() != "" || !b.Empty() {
		t.Error("zero block should render empty")
	}
}
