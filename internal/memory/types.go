package memory

import "time"

// Open loop status values.
const (
	LoopInProgress = "in_progress"
	LoopBlocked    = "blocked"
	LoopCompleted  = "completed"
)

// Profile is the assistant's long-lived identity and conversation
// memory document.
type Profile struct {
	// SelfAwareness answers questions about the assistant itself.
	// Nil when the document has never been seeded.
	SelfAwareness *SelfAwareness `json:"self_awareness,omitempty"`

	// Domains holds a briefing text per tracked subject-matter domain,
	// keyed by domain category name.
	Domains map[string]string `json:"domains,omitempty"`

	// Conversation is the rolling recent-topic memory.
	Conversation ConversationContext `json:"conversation_context"`

	LastUpdated time.Time `json:"last_updated"`
}

// SelfAwareness describes what the assistant is and is not.
type SelfAwareness struct {
	Identity          string `json:"identity"`
	Purpose           string `json:"purpose"`
	WhatIAm           string `json:"what_i_am"`
	WhatIAmNot        string `json:"what_i_am_not"`
	HeroWorkflow      string `json:"hero_workflow,omitempty"`
	CurrentCapability string `json:"current_capability,omitempty"`
	TargetCapability  string `json:"target_capability,omitempty"`
}

// ConversationContext carries the most recent conversation topics,
// newest first, capped at 50 entries.
type ConversationContext struct {
	RecentTopics []RecentTopic `json:"recent_topics,omitempty"`
}

// RecentTopic is a truncated record of one exchange.
type RecentTopic struct {
	Timestamp       time.Time `json:"timestamp"`
	Date            string    `json:"date"` // YYYY-MM-DD, for display
	Query           string    `json:"query"`
	ResponsePreview string    `json:"response_preview"`
}

// DecisionLog records past decisions with their rationale so "why did
// we choose X" questions can be answered from memory.
type DecisionLog struct {
	Decisions   []Decision `json:"decisions,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

// Decision is one recorded decision.
type Decision struct {
	Decision     string        `json:"decision"`
	Date         string        `json:"date"`
	Rationale    string        `json:"rationale"`
	Alternatives []Alternative `json:"alternatives_considered,omitempty"`
	Impact       string        `json:"impact,omitempty"`
}

// Alternative is a rejected option attached to a Decision.
type Alternative struct {
	Option          string `json:"option"`
	RejectedBecause string `json:"rejected_because"`
}

// ProjectStates tracks per-project progress, keyed by lowercase
// project identifier.
type ProjectStates struct {
	Projects    map[string]ProjectState `json:"projects,omitempty"`
	LastUpdated time.Time               `json:"last_updated"`
}

// ProjectState is the current state of one project.
type ProjectState struct {
	FullName          string    `json:"full_name"`
	CurrentPhase      string    `json:"current_phase"`
	PhaseDescription  string    `json:"phase_description,omitempty"`
	LastWorked        string    `json:"last_worked,omitempty"`
	NextMilestone     Milestone `json:"next_milestone"`
	CurrentPriorities []string  `json:"current_priorities,omitempty"`
	KnownIssues       []string  `json:"known_issues,omitempty"`
}

// Milestone is the next target for a project.
type Milestone struct {
	Name       string   `json:"name,omitempty"`
	TargetDate string   `json:"target_date,omitempty"`
	Blockers   []string `json:"blockers,omitempty"`
}

// Scaffold is the structural orientation document: where the user is,
// what was just finished, and what is still open.
type Scaffold struct {
	Active            ActiveContext `json:"active_context"`
	RecentCompletions []Completion  `json:"recent_completions,omitempty"`
	OpenLoops         []OpenLoop    `json:"open_loops,omitempty"`
	ParkedTangents    []Tangent     `json:"parked_tangents,omitempty"`
	LastUpdated       time.Time     `json:"last_updated"`
}

// ActiveContext is the "you are here" marker.
type ActiveContext struct {
	PrimaryProject     string `json:"primary_project"`
	StructuralPosition string `json:"structural_position"`
	PhaseGoal          string `json:"phase_goal"`
	PositionSummary    string `json:"position_summary,omitempty"`
	EnteredPhase       string `json:"entered_phase,omitempty"`
}

// Completion records finished work, newest first, capped at 10
// entries. Permission carries the explicit move-on language surfaced
// during orientation.
type Completion struct {
	What         string   `json:"what"`
	When         string   `json:"when"`
	CriteriaMet  []string `json:"criteria_met,omitempty"`
	WhatRemains  string   `json:"what_remains,omitempty"`
	Permission   string   `json:"permission"`
	Significance string   `json:"structural_significance,omitempty"`
}

// OpenLoop is in-progress work that still needs attention.
type OpenLoop struct {
	ID              string `json:"id"`
	Item            string `json:"item"`
	WhyStructural   string `json:"why_structural,omitempty"`
	Created         string `json:"created"`
	Status          string `json:"status"`
	BlockedBy       string `json:"blocked_by,omitempty"`
	SuggestedAction string `json:"suggested_action,omitempty"`
	CompletedDate   string `json:"completed_date,omitempty"`
}

// Tangent is an idea noted and deliberately set aside.
type Tangent struct {
	Idea        string `json:"idea"`
	Noted       string `json:"noted"`
	WhyParked   string `json:"why_parked,omitempty"`
	RevisitWhen string `json:"revisit_when,omitempty"`
}
