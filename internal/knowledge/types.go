package knowledge

import "time"

// Metadata keys used by the indexing and retrieval paths.
const (
	MetaCategory = "category"
	MetaProvider = "provider"
	MetaSession  = "session_id"
)

// Document categories written by this system. Imported reference
// material may carry other category values.
const (
	CategoryLiveConversation = "live_conversation"
)

// Document is one indexed text with its metadata.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Match is a search result. Distance is cosine distance, lower is
// closer; results are always ordered ascending.
type Match struct {
	Document Document `json:"document"`
	Distance float32  `json:"distance"`
}

// Filter restricts a search by document metadata. Equals entries must
// all match exactly; AnyOf entries must match one of the listed
// values. Both maps combine with AND. The zero Filter matches
// everything.
type Filter struct {
	Equals map[string]string
	AnyOf  map[string][]string
}

// Empty reports whether the filter imposes no restriction.
func (f Filter) Empty() bool {
	return len(f.Equals) == 0 && len(f.AnyOf) == 0
}

// SearchOption configures a search using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK   int
	filter Filter
}

// WithTopK caps the number of results. Default 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithEquals requires an exact metadata match. Multiple calls combine
// with AND.
func WithEquals(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter.Equals == nil {
			c.filter.Equals = make(map[string]string)
		}
		c.filter.Equals[key] = value
	}
}

// WithAnyOf requires the metadata key to hold one of values.
func WithAnyOf(key string, values ...string) SearchOption {
	return func(c *searchConfig) {
		if c.filter.AnyOf == nil {
			c.filter.AnyOf = make(map[string][]string)
		}
		c.filter.AnyOf[key] = values
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{topK: 5}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
