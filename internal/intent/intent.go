// Package intent classifies user queries into routing flags.
//
// Classification is pure pattern matching: no I/O, no model calls, and
// repeated calls with the same query return identical results. Each
// flag is decided by its own ordered pattern family; families are
// independent and several flags may be true at once. Downstream
// consumers check only the flags they care about.
package intent

import (
	"regexp"
	"strings"
)

// Intent describes what kind of request a query is. It is recomputed
// on every request and never persisted on its own, though a copy may
// ride along inside a session history record for audit.
type Intent struct {
	// SelfQuery is true when the user asks about the assistant itself.
	SelfQuery bool `json:"is_self_query"`

	// WhyQuestion is true when the user asks for the rationale behind
	// a past decision.
	WhyQuestion bool `json:"is_why_question"`

	// NextAction is true when the user asks what to work on next.
	NextAction bool `json:"is_next_action_query"`

	// DomainQuery is true when the query names a tracked
	// subject-matter domain keyword.
	DomainQuery bool `json:"is_domain_query"`

	// NeedsOrientation is true when the user asks where they left off
	// or for a progress summary.
	NeedsOrientation bool `json:"needs_orientation"`

	// Matched records, per family, the first pattern that fired, in
	// family evaluation order. Diagnostics only.
	Matched []string `json:"patterns_matched,omitempty"`
}

// family binds a flag setter to its ordered pattern list. Evaluation
// short-circuits at the first matching pattern.
type family struct {
	name     string
	set      func(*Intent)
	patterns []*regexp.Regexp
}

// Classifier evaluates the declarative pattern table. Adding a new
// intent category means adding a row to the table, not new code paths.
type Classifier struct {
	families       []family
	domainKeywords []string
}

var (
	selfPatterns = compileAll(
		`\bfaithh\b`,
		`what are you`,
		`what is your`,
		`tell me about yourself`,
		`who are you`,
		`what do you do`,
	)

	whyPatterns = compileAll(
		`why did (we|you|i) (choose|use|pick|select|go with)`,
		`why.*instead of`,
		`why.*over`,
		`what was the reason`,
		`rationale for`,
		`why.*decision`,
	)

	nextPatterns = compileAll(
		`what should (i|we) work on`,
		`what('s| is) next`,
		`what to do next`,
		`what should (i|we) focus on`,
		`what are (my|the) priorities`,
		`where should (i|we) start`,
		`what.*missing`,
	)

	orientationPatterns = compileLiterals(
		"where was i",
		"where did i leave off",
		"what was i working on",
		"what was i doing",
		"where am i",
		"what's the status",
		"what's my progress",
		"catch me up",
		"bring me up to speed",
		"what have i done",
		"what's been done",
		"what's complete",
		"what's finished",
		"am i on track",
		"how's it going",
		"what should i work on",
		"what's next",
		"where should i start",
		"what's the priority",
	)
)

// NewClassifier creates a classifier. domainKeywords is the list of
// subject-matter terms that mark a query as domain-specific; it comes
// from configuration so the tracked domain can change without a code
// change.
func NewClassifier(domainKeywords []string) *Classifier {
	c := &Classifier{}
	c.families = []family{
		{"self", func(i *Intent) { i.SelfQuery = true }, selfPatterns},
		{"why", func(i *Intent) { i.WhyQuestion = true }, whyPatterns},
		{"next", func(i *Intent) { i.NextAction = true }, nextPatterns},
		{"orientation", func(i *Intent) { i.NeedsOrientation = true }, orientationPatterns},
	}
	for _, kw := range domainKeywords {
		c.domainKeywords = append(c.domainKeywords, strings.ToLower(kw))
	}
	return c
}

// Classify derives the Intent for query. An empty or whitespace-only
// query yields the zero Intent. Classification never fails.
func (c *Classifier) Classify(query string) Intent {
	var intent Intent
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return intent
	}

	for _, f := range c.families {
		for _, p := range f.patterns {
			if p.MatchString(q) {
				f.set(&intent)
				intent.Matched = append(intent.Matched, f.name+": "+p.String())
				break
			}
		}
	}

	for _, kw := range c.domainKeywords {
		if strings.Contains(q, kw) {
			intent.DomainQuery = true
			intent.Matched = append(intent.Matched, "domain: "+kw)
			break
		}
	}

	return intent
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// compileLiterals quotes plain substrings into the same regexp form
// the table uses, so one evaluation loop serves both kinds.
func compileLiterals(literals ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(literals))
	for i, l := range literals {
		out[i] = regexp.MustCompile(regexp.QuoteMeta(l))
	}
	return out
}
