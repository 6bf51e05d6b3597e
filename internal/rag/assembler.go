package rag

import (
	"context"
	"log/slog"
	"strings"

	"github.com/faithh/faithh/internal/intent"
	"github.com/faithh/faithh/internal/knowledge"
	"github.com/faithh/faithh/internal/memory"
	"github.com/faithh/faithh/internal/session"
)

// devKeywords mark a query as being about past development work, which
// makes archived conversation chunks the preferred retrieval filter.
var devKeywords = []string{
	"discuss", "talk", "said", "conversation", "we", "our",
	"plan", "setup", "configure", "implement", "build",
	"create", "did we", "what was", "how did", "tell me about",
	"what did", "what were", "talked about",
}

// MemorySource provides the persistent memory documents. A read error
// from any method degrades that section only.
type MemorySource interface {
	Profile() (*memory.Profile, error)
	Decisions() (*memory.DecisionLog, error)
	Projects() (*memory.ProjectStates, error)
	Scaffold() (*memory.Scaffold, error)
}

// SessionSource resolves a session id to its history snapshot.
type SessionSource interface {
	Get(id string) (*session.Session, error)
}

// Index is the vector search surface the assembler consumes.
type Index interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error)
}

// Config tunes truncation and retrieval behavior. Zero values fall
// back to the documented defaults.
type Config struct {
	// RecentExchanges is how many session exchanges to include. Default 5.
	RecentExchanges int

	// AnswerPreviewChars truncates each past answer. Default 500.
	AnswerPreviewChars int

	// DecisionLimit caps matched decision-log entries. Default 3.
	DecisionLimit int

	// OpenLoopLimit caps listed open loops. Default 3.
	OpenLoopLimit int

	// TopK is how many index matches feed the knowledge section. Default 3.
	TopK int

	// ExcerptChars truncates each knowledge excerpt. Default 1000.
	ExcerptChars int

	// CitationLimit caps returned citations. Default 5.
	CitationLimit int

	// CitationChars truncates each citation snippet. Default 500.
	CitationChars int

	// DistanceThreshold gates the conversation-filtered search path;
	// a best match at or above it falls through to broader filters.
	// Default 0.7.
	DistanceThreshold float64

	// DomainCategory is the metadata category holding domain
	// reference material.
	DomainCategory string

	// ConversationCategory is the metadata category holding archived
	// conversation chunks.
	ConversationCategory string

	// BroadCategories is the multi-category fallback filter. Empty
	// means go straight to an unfiltered search.
	BroadCategories []string
}

func (c Config) withDefaults() Config {
	if c.RecentExchanges <= 0 {
		c.RecentExchanges = 5
	}
	if c.AnswerPreviewChars <= 0 {
		c.AnswerPreviewChars = 500
	}
	if c.DecisionLimit <= 0 {
		c.DecisionLimit = 3
	}
	if c.OpenLoopLimit <= 0 {
		c.OpenLoopLimit = 3
	}
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.ExcerptChars <= 0 {
		c.ExcerptChars = 1000
	}
	if c.CitationLimit <= 0 {
		c.CitationLimit = 5
	}
	if c.CitationChars <= 0 {
		c.CitationChars = 500
	}
	if c.DistanceThreshold <= 0 {
		c.DistanceThreshold = 0.7
	}
	if c.DomainCategory == "" {
		c.DomainCategory = "domain_reference"
	}
	if c.ConversationCategory == "" {
		c.ConversationCategory = "conversation_archive"
	}
	return c
}

// Assembler builds the context block. It only reads; side effects
// belong to the orchestrator.
type Assembler struct {
	cfg      Config
	mem      MemorySource
	sessions SessionSource
	index    Index
	logger   *slog.Logger
}

// New creates an Assembler. sessions and index may be nil, in which
// case their sections simply never contribute.
func New(cfg Config, mem MemorySource, sessions SessionSource, index Index, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		cfg:      cfg.withDefaults(),
		mem:      mem,
		sessions: sessions,
		index:    index,
		logger:   logger,
	}
}

// Assemble builds the context for one request. Deterministic given
// identical backing-store state; reads only. Each source is
// independently failure-tolerant, so Assemble never returns an error.
func (a *Assembler) Assemble(ctx context.Context, query string, in intent.Intent, sessionID string, retrievalEnabled bool) (Block, []Citation) {
	var block Block

	if s := a.recentConversation(sessionID); s != nil {
		block.Sections = append(block.Sections, *s)
	}

	if in.SelfQuery || in.DomainQuery {
		profile := a.profile()

		if in.SelfQuery && profile != nil && profile.SelfAwareness != nil {
			block.Sections = append(block.Sections, selfAwarenessSection(profile.SelfAwareness))
		}

		if in.DomainQuery && profile != nil {
			if briefing := profile.Domains[a.cfg.DomainCategory]; briefing != "" {
				block.Sections = append(block.Sections, Section{
					Label: "DOMAIN REFERENCE",
					Text:  briefing,
				})
			}
		}
	}

	if in.WhyQuestion {
		if s := a.relevantDecisions(query); s != nil {
			block.Sections = append(block.Sections, *s)
		}
	}

	if in.NextAction {
		if s := a.projectState(query); s != nil {
			block.Sections = append(block.Sections, *s)
		}
	}

	if in.NeedsOrientation || in.NextAction {
		block.Sections = append(block.Sections, a.scaffoldSections(query)...)
	}

	var citations []Citation
	if a.shouldRetrieve(in, retrievalEnabled) {
		var s *Section
		s, citations = a.knowledgeSection(ctx, query, in)
		if s != nil {
			block.Sections = append(block.Sections, *s)
		}
	}

	return block, citations
}

// shouldRetrieve applies the two retrieval short-circuits: self-queries
// never touch the index, and pure orientation queries are already
// answered by the scaffold.
func (a *Assembler) shouldRetrieve(in intent.Intent, retrievalEnabled bool) bool {
	if !retrievalEnabled || a.index == nil {
		return false
	}
	if in.SelfQuery {
		return false
	}
	if in.NeedsOrientation && !in.DomainQuery {
		return false
	}
	return true
}

func (a *Assembler) recentConversation(sessionID string) *Section {
	if sessionID == "" || a.sessions == nil {
		return nil
	}
	sess, err := a.sessions.Get(sessionID)
	if err != nil {
		a.logger.Warn("session lookup failed, skipping history section",
			"session_id", sessionID, "error", err)
		return nil
	}
	if len(sess.History) == 0 {
		return nil
	}

	recent := sess.History
	if len(recent) > a.cfg.RecentExchanges {
		recent = recent[len(recent)-a.cfg.RecentExchanges:]
	}

	var sb strings.Builder
	for i, ex := range recent {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("User: " + ex.Query + "\n")
		sb.WriteString("Assistant: " + truncateEllipsis(ex.Answer, a.cfg.AnswerPreviewChars) + "\n")
	}

	return &Section{Label: "RECENT CONVERSATION", Text: strings.TrimRight(sb.String(), "\n")}
}

func (a *Assembler) profile() *memory.Profile {
	p, err := a.mem.Profile()
	if err != nil {
		a.logger.Warn("profile read failed, skipping profile sections", "error", err)
		return nil
	}
	return p
}

// relevantDecisions matches decision-log entries by bag-of-words
// overlap against the query: any shared word longer than 3 characters
// counts, entries keep log order, no further ranking.
func (a *Assembler) relevantDecisions(query string) *Section {
	log, err := a.mem.Decisions()
	if err != nil {
		a.logger.Warn("decision log read failed, skipping decisions section", "error", err)
		return nil
	}

	queryWords := significantWords(query, 3)
	var matched []memory.Decision
	for _, d := range log.Decisions {
		text := strings.ToLower(d.Decision + " " + d.Rationale)
		if containsAnyWord(text, queryWords) {
			matched = append(matched, d)
			if len(matched) == a.cfg.DecisionLimit {
				break
			}
		}
	}
	if len(matched) == 0 {
		return nil
	}

	var sb strings.Builder
	for i, d := range matched {
		if i > 0 {
			sb.WriteString("---\n")
		}
		sb.WriteString("Decision: " + d.Decision + "\n")
		sb.WriteString("Date: " + d.Date + "\n")
		sb.WriteString("Rationale: " + d.Rationale + "\n")
		if len(d.Alternatives) > 0 {
			sb.WriteString("Alternatives considered:\n")
			for _, alt := range d.Alternatives {
				sb.WriteString("  - " + alt.Option + ": Rejected because " + alt.RejectedBecause + "\n")
			}
		}
		sb.WriteString("Impact: " + d.Impact + "\n")
	}

	return &Section{Label: "RELEVANT DECISIONS", Text: strings.TrimRight(sb.String(), "\n")}
}

// projectState emits the state of the project literally named in the
// query, or an overview of all projects when none matches.
func (a *Assembler) projectState(query string) *Section {
	states, err := a.mem.Projects()
	if err != nil {
		a.logger.Warn("project states read failed, skipping project section", "error", err)
		return nil
	}
	if len(states.Projects) == 0 {
		return nil
	}

	queryLower := strings.ToLower(query)
	for _, name := range sortedKeys(states.Projects) {
		if strings.Contains(queryLower, name) {
			return projectSection(name, states.Projects[name])
		}
	}
	return projectOverviewSection(states)
}

// scaffoldSections emits orientation context: position, most recent
// completion, open loops, and a tangent warning when the query drifts
// toward a parked idea.
func (a *Assembler) scaffoldSections(query string) []Section {
	sc, err := a.mem.Scaffold()
	if err != nil {
		a.logger.Warn("scaffold read failed, skipping orientation sections", "error", err)
		return nil
	}

	var sections []Section

	if sc.Active.PrimaryProject != "" || sc.Active.StructuralPosition != "" {
		sections = append(sections, Section{
			Label: "CURRENT POSITION",
			Text: "Project: " + strings.ToUpper(sc.Active.PrimaryProject) + "\n" +
				"Position: " + sc.Active.StructuralPosition + "\n" +
				"Goal: " + sc.Active.PhaseGoal + "\n\n" +
				"Summary: " + sc.Active.PositionSummary,
		})
	}

	if len(sc.RecentCompletions) > 0 {
		latest := sc.RecentCompletions[0]
		sections = append(sections, Section{
			Label: "RECENTLY COMPLETED",
			Text: "What: " + latest.What + "\n" +
				"When: " + latest.When + "\n" +
				"Significance: " + latest.Significance + "\n" +
				"Permission: " + latest.Permission,
		})
	}

	var open []memory.OpenLoop
	for _, loop := range sc.OpenLoops {
		if loop.Status != memory.LoopCompleted {
			open = append(open, loop)
			if len(open) == a.cfg.OpenLoopLimit {
				break
			}
		}
	}
	if len(open) > 0 {
		var sb strings.Builder
		for _, loop := range open {
			sb.WriteString("- " + loop.Item + "\n")
			sb.WriteString("  Why: " + loop.WhyStructural + "\n")
			sb.WriteString("  Status: " + loop.Status + "\n")
		}
		sections = append(sections, Section{
			Label: "OPEN LOOPS",
			Text:  strings.TrimRight(sb.String(), "\n"),
		})
	}

	if s := tangentSection(query, sc); s != nil {
		sections = append(sections, *s)
	}

	return sections
}

// tangentSection warns when the query's significant words (>4 chars)
// overlap a parked tangent's description. First matching tangent wins.
func tangentSection(query string, sc *memory.Scaffold) *Section {
	queryLower := strings.ToLower(query)
	for _, tg := range sc.ParkedTangents {
		for _, word := range significantWords(tg.Idea, 4) {
			if strings.Contains(queryLower, word) {
				return &Section{
					Label: "PARKED TANGENT DETECTED",
					Text: "You previously parked: \"" + tg.Idea + "\"\n" +
						"Why parked: " + tg.WhyParked + "\n" +
						"Revisit when: " + tg.RevisitWhen + "\n\n" +
						"This is noted but not your current structural priority.",
				}
			}
		}
	}
	return nil
}

// knowledgeSection queries the vector index with cascading filter
// preference: domain filter, then conversation filter (distance
// gated), then broad multi-category, then unfiltered. The first stage
// yielding results wins; stage failures fall through.
func (a *Assembler) knowledgeSection(ctx context.Context, query string, in intent.Intent) (*Section, []Citation) {
	matches := a.retrieve(ctx, query, in)
	if len(matches) == 0 {
		return nil, nil
	}

	excerpts := matches
	if len(excerpts) > a.cfg.TopK {
		excerpts = excerpts[:a.cfg.TopK]
	}
	var sb strings.Builder
	for i, m := range excerpts {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(truncateEllipsis(m.Document.Content, a.cfg.ExcerptChars) + "\n")
	}

	cited := matches
	if len(cited) > a.cfg.CitationLimit {
		cited = cited[:a.cfg.CitationLimit]
	}
	citations := make([]Citation, 0, len(cited))
	for _, m := range cited {
		citations = append(citations, Citation{
			Source:  citationSource(m.Document),
			Snippet: truncateEllipsis(m.Document.Content, a.cfg.CitationChars),
		})
	}

	return &Section{
		Label: "KNOWLEDGE BASE",
		Text:  strings.TrimRight(sb.String(), "\n"),
	}, citations
}

func (a *Assembler) retrieve(ctx context.Context, query string, in intent.Intent) []knowledge.Match {
	// Ask for enough rows to cover both excerpts and citations.
	fetch := a.cfg.TopK
	if a.cfg.CitationLimit > fetch {
		fetch = a.cfg.CitationLimit
	}

	if in.DomainQuery {
		matches, err := a.index.Search(ctx, query,
			knowledge.WithTopK(fetch),
			knowledge.WithEquals(knowledge.MetaCategory, a.cfg.DomainCategory))
		if err != nil {
			a.logger.Warn("domain-filtered search failed, falling through", "error", err)
		} else if len(matches) > 0 {
			return matches
		}
	}

	if isDevQuery(query) {
		matches, err := a.index.Search(ctx, query,
			knowledge.WithTopK(fetch),
			knowledge.WithEquals(knowledge.MetaCategory, a.cfg.ConversationCategory))
		if err != nil {
			a.logger.Warn("conversation-filtered search failed, falling through", "error", err)
		} else if len(matches) > 0 && float64(matches[0].Distance) < a.cfg.DistanceThreshold {
			return matches
		}
	}

	if len(a.cfg.BroadCategories) > 0 {
		matches, err := a.index.Search(ctx, query,
			knowledge.WithTopK(fetch),
			knowledge.WithAnyOf(knowledge.MetaCategory, a.cfg.BroadCategories...))
		if err != nil {
			a.logger.Warn("broad-filtered search failed, falling through", "error", err)
		} else if len(matches) > 0 {
			return matches
		}
	}

	matches, err := a.index.Search(ctx, query, knowledge.WithTopK(fetch))
	if err != nil {
		a.logger.Warn("unfiltered search failed, knowledge section degraded to empty", "error", err)
		return nil
	}
	return matches
}

func isDevQuery(query string) bool {
	queryLower := strings.ToLower(query)
	for _, kw := range devKeywords {
		if strings.Contains(queryLower, kw) {
			return true
		}
	}
	return false
}

func citationSource(doc knowledge.Document) string {
	if src, ok := doc.Metadata["source"]; ok && src != "" {
		return src
	}
	if cat, ok := doc.Metadata[knowledge.MetaCategory]; ok && cat != "" {
		return cat
	}
	return doc.ID
}
