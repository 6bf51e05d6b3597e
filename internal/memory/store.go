package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Document file names under the data directory.
const (
	profileFile   = "profile.json"
	decisionsFile = "decisions.json"
	projectsFile  = "project_states.json"
	scaffoldFile  = "scaffold.json"
)

const (
	maxRecentTopics = 50
	maxCompletions  = 10
	topicPreviewLen = 100
)

// ErrLoopNotFound indicates no open loop matched the given id or item text.
var ErrLoopNotFound = errors.New("open loop not found")

// Store persists the memory documents as JSON files in a single data
// directory.
//
// Store is safe for concurrent use by multiple goroutines; cross-process
// safety comes from per-document flock files.
type Store struct {
	dir    string
	logger *slog.Logger

	mu sync.Mutex // serializes read-modify-write cycles in-process
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Profile reads the profile document. A missing file yields an empty
// Profile, not an error.
func (s *Store) Profile() (*Profile, error) {
	var p Profile
	if err := s.read(profileFile, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile writes the profile document, stamping LastUpdated.
func (s *Store) SaveProfile(p *Profile) error {
	p.LastUpdated = time.Now()
	return s.write(profileFile, p)
}

// Decisions reads the decision log.
func (s *Store) Decisions() (*DecisionLog, error) {
	var d DecisionLog
	if err := s.read(decisionsFile, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveDecisions writes the decision log, stamping LastUpdated.
func (s *Store) SaveDecisions(d *DecisionLog) error {
	d.LastUpdated = time.Now()
	return s.write(decisionsFile, d)
}

// Projects reads the project states document.
func (s *Store) Projects() (*ProjectStates, error) {
	var p ProjectStates
	if err := s.read(projectsFile, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProjects writes the project states document, stamping LastUpdated.
func (s *Store) SaveProjects(p *ProjectStates) error {
	p.LastUpdated = time.Now()
	return s.write(projectsFile, p)
}

// Scaffold reads the structural orientation document.
func (s *Store) Scaffold() (*Scaffold, error) {
	var sc Scaffold
	if err := s.read(scaffoldFile, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// SaveScaffold writes the structural orientation document, stamping
// LastUpdated.
func (s *Store) SaveScaffold(sc *Scaffold) error {
	sc.LastUpdated = time.Now()
	return s.write(scaffoldFile, sc)
}

// AppendRecentTopic prepends an exchange to the profile's recent
// topics, truncating both sides to 100 characters and keeping at most
// 50 entries.
func (s *Store) AppendRecentTopic(query, responsePreview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Profile()
	if err != nil {
		return err
	}

	now := time.Now()
	topic := RecentTopic{
		Timestamp:       now,
		Date:            now.Format("2006-01-02"),
		Query:           truncate(query, topicPreviewLen),
		ResponsePreview: truncate(responsePreview, topicPreviewLen),
	}

	topics := append([]RecentTopic{topic}, p.Conversation.RecentTopics...)
	if len(topics) > maxRecentTopics {
		topics = topics[:maxRecentTopics]
	}
	p.Conversation.RecentTopics = topics

	return s.SaveProfile(p)
}

// UpdatePosition replaces the scaffold's active context. Called when
// transitioning between phases.
func (s *Store) UpdatePosition(project, position, goal, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.Scaffold()
	if err != nil {
		return err
	}

	sc.Active = ActiveContext{
		PrimaryProject:     project,
		StructuralPosition: position,
		PhaseGoal:          goal,
		PositionSummary:    summary,
		EnteredPhase:       time.Now().Format("2006-01-02"),
	}

	return s.SaveScaffold(sc)
}

// MarkCompletion prepends a completion record, keeping at most 10.
// When is stamped with today's date if unset.
func (s *Store) MarkCompletion(c Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.Scaffold()
	if err != nil {
		return err
	}

	if c.When == "" {
		c.When = time.Now().Format("2006-01-02")
	}

	completions := append([]Completion{c}, sc.RecentCompletions...)
	if len(completions) > maxCompletions {
		completions = completions[:maxCompletions]
	}
	sc.RecentCompletions = completions

	s.logger.Debug("marked completion", "what", c.What)
	return s.SaveScaffold(sc)
}

// ParkTangent records an idea as noted-but-deferred.
func (s *Store) ParkTangent(idea, whyParked, revisitWhen string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.Scaffold()
	if err != nil {
		return err
	}

	sc.ParkedTangents = append(sc.ParkedTangents, Tangent{
		Idea:        idea,
		Noted:       time.Now().Format("2006-01-02"),
		WhyParked:   whyParked,
		RevisitWhen: revisitWhen,
	})

	return s.SaveScaffold(sc)
}

// AddOpenLoop records in-progress work with a generated id.
func (s *Store) AddOpenLoop(item, whyStructural, suggestedAction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.Scaffold()
	if err != nil {
		return err
	}

	now := time.Now()
	sc.OpenLoops = append(sc.OpenLoops, OpenLoop{
		ID:              "loop_" + now.Format("20060102_150405"),
		Item:            item,
		WhyStructural:   whyStructural,
		Created:         now.Format("2006-01-02"),
		Status:          LoopInProgress,
		SuggestedAction: suggestedAction,
	})

	return s.SaveScaffold(sc)
}

// CloseOpenLoop marks the loop matching idOrItem (by id first, then by
// item text) as completed. Returns ErrLoopNotFound if nothing matches.
func (s *Store) CloseOpenLoop(idOrItem string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.Scaffold()
	if err != nil {
		return err
	}

	for i := range sc.OpenLoops {
		loop := &sc.OpenLoops[i]
		if loop.ID == idOrItem || loop.Item == idOrItem {
			loop.Status = LoopCompleted
			loop.CompletedDate = time.Now().Format("2006-01-02")
			return s.SaveScaffold(sc)
		}
	}

	return fmt.Errorf("%w: %q", ErrLoopNotFound, idOrItem)
}

// read unmarshals the named document into v. A missing file leaves v
// at its zero value.
func (s *Store) read(name string, v any) error {
	path := filepath.Join(s.dir, name)

	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("locking %s: %w", name, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release lock", "file", name, "error", err)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// write marshals v and atomically replaces the named document via a
// temp file and rename, holding the document's flock throughout.
func (s *Store) write(name string, v any) error {
	path := filepath.Join(s.dir, name)

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", name, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release lock", "file", name, "error", err)
		}
	}()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", name, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", name, err)
	}

	s.logger.Debug("saved memory document", "file", name, "bytes", len(data))
	return nil
}

// truncate cuts s to at most n bytes. Inputs here are ASCII-dominant;
// a mid-rune cut only affects a preview string.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
