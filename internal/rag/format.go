package rag

import (
	"sort"
	"strings"

	"github.com/faithh/faithh/internal/memory"
)

// truncateEllipsis cuts s at limit bytes and marks the cut. A cut
// mid-rune is acceptable for prompt text at these limits.
func truncateEllipsis(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// significantWords extracts lowercase words longer than minLen from s.
func significantWords(s string, minLen int) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) > minLen {
			words = append(words, w)
		}
	}
	return words
}

// containsAnyWord reports whether text contains any of the words as a
// substring. text must already be lowercased.
func containsAnyWord(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// sortedKeys gives deterministic iteration over a project map.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func selfAwarenessSection(sa *memory.SelfAwareness) Section {
	var sb strings.Builder
	sb.WriteString("Identity: " + sa.Identity + "\n")
	sb.WriteString("Purpose: " + sa.Purpose + "\n")
	sb.WriteString("What I am: " + sa.WhatIAm + "\n")
	sb.WriteString("What I am not: " + sa.WhatIAmNot + "\n")
	sb.WriteString("Hero workflow: " + sa.HeroWorkflow + "\n")
	sb.WriteString("Current capability: " + sa.CurrentCapability + "\n")
	sb.WriteString("Target capability: " + sa.TargetCapability)
	return Section{Label: "SELF-AWARENESS", Text: sb.String()}
}

func projectSection(name string, st memory.ProjectState) *Section {
	var sb strings.Builder
	sb.WriteString("Project: " + st.FullName + "\n")
	sb.WriteString("Phase: " + st.CurrentPhase + " (" + st.PhaseDescription + ")\n")
	sb.WriteString("Last worked: " + st.LastWorked + "\n")
	sb.WriteString("Next milestone: " + st.NextMilestone.Name + " (target " + st.NextMilestone.TargetDate + ")\n")
	if len(st.NextMilestone.Blockers) > 0 {
		sb.WriteString("Blockers: " + strings.Join(st.NextMilestone.Blockers, "; ") + "\n")
	}
	if len(st.CurrentPriorities) > 0 {
		sb.WriteString("Priorities:\n")
		for _, p := range st.CurrentPriorities {
			sb.WriteString("  - " + p + "\n")
		}
	}
	if len(st.KnownIssues) > 0 {
		sb.WriteString("Known issues:\n")
		for _, issue := range st.KnownIssues {
			sb.WriteString("  - " + issue + "\n")
		}
	}
	return &Section{
		Label: "PROJECT STATE: " + strings.ToUpper(name),
		Text:  strings.TrimRight(sb.String(), "\n"),
	}
}

func projectOverviewSection(states *memory.ProjectStates) *Section {
	var sb strings.Builder
	for _, name := range sortedKeys(states.Projects) {
		st := states.Projects[name]
		sb.WriteString("- " + st.FullName + ": " + st.CurrentPhase)
		if st.NextMilestone.Name != "" {
			sb.WriteString(", next: " + st.NextMilestone.Name)
		}
		sb.WriteString("\n")
	}
	return &Section{
		Label: "PROJECT OVERVIEW",
		Text:  strings.TrimRight(sb.String(), "\n"),
	}
}
