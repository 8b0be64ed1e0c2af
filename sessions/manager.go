// Package sessions keeps one rule engine per browsing session. Each engine is
// seeded from the catalog's enabled rules when the session is created and can
// be extended with session-local rules.
package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/algoshield/rules"
)

// ErrSessionNotFound is returned for an unknown session id
var ErrSessionNotFound = errors.New("session not found")

// RuleSource supplies the rules new sessions start with.
type RuleSource interface {
	Enabled() ([]rules.Rule, error)
}

// Recorder receives evaluation and session-count metrics.
type Recorder interface {
	RecordEvaluation(actions []rules.Action, took time.Duration)
	RecordEvaluationError()
	SetActiveSessions(n int)
	SessionsEvicted(n int)
	// TrackRules receives the catalog rule ids each time an engine is built
	// from the catalog.
	TrackRules(ids []string)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvaluation([]rules.Action, time.Duration) {}
func (nopRecorder) RecordEvaluationError()                         {}
func (nopRecorder) SetActiveSessions(int)                          {}
func (nopRecorder) SessionsEvicted(int)                            {}
func (nopRecorder) TrackRules([]string)                            {}

// Session is a single engine plus the session-local rules and recent activity
// that belong to it.
type Session struct {
	ID        string
	CreatedAt time.Time

	engine   *rules.Engine
	local    []rules.Rule
	activity *ActivityLog
	lastSeen time.Time
	paused   bool
	mu       sync.RWMutex
}

// Info is a point-in-time summary of a session.
type Info struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeen   time.Time `json:"last_seen"`
	Rules      int       `json:"rules"`
	LocalRules int       `json:"local_rules"`
	Activity   int       `json:"activity"`
	Paused     bool      `json:"paused"`
}

func (s *Session) info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LastSeen:   s.lastSeen,
		Rules:      s.engine.Len(),
		LocalRules: len(s.local),
		Activity:   s.activity.Len(),
		Paused:     s.paused,
	}
}

// Manager owns every live session.
type Manager struct {
	source       RuleSource
	engineOpts   []rules.Option
	recorder     Recorder
	activitySize int
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string

	sessions map[string]*Session
	mu       sync.RWMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithEngineOptions is applied to every engine the manager builds.
func WithEngineOptions(opts ...rules.Option) Option {
	return func(m *Manager) { m.engineOpts = append(m.engineOpts, opts...) }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithActivitySize sets the activity log capacity of new sessions
func WithActivitySize(n int) Option {
	return func(m *Manager) { m.activitySize = n }
}

// WithLogger sets the manager logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager whose sessions start from source
func NewManager(source RuleSource, opts ...Option) *Manager {
	m := &Manager{
		source:       source,
		recorder:     nopRecorder{},
		activitySize: DefaultActivitySize,
		now:          time.Now,
		newID:        uuid.NewString,
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

func (m *Manager) buildEngine(local []rules.Rule) (*rules.Engine, error) {
	seed, err := m.source.Enabled()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog rules: %w", err)
	}
	ids := make([]string, len(seed))
	for i, r := range seed {
		ids[i] = r.ID
	}
	m.recorder.TrackRules(ids)

	engine := rules.NewEngine(m.engineOpts...)
	engine.AddRules(seed)
	engine.AddRules(local)
	return engine, nil
}

// Create starts a session seeded with the catalog's enabled rules.
func (m *Manager) Create() (Info, error) {
	engine, err := m.buildEngine(nil)
	if err != nil {
		return Info{}, err
	}

	now := m.now()
	s := &Session{
		ID:        m.newID(),
		CreatedAt: now,
		engine:    engine,
		activity:  NewActivityLog(m.activitySize),
		lastSeen:  now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.recorder.SetActiveSessions(n)
	m.logger.Info("session created", "session_id", s.ID, "rules", engine.Len())
	return s.info(), nil
}

func (m *Manager) session(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// Get returns a summary of the session
func (m *Manager) Get(id string) (Info, error) {
	s, err := m.session(id)
	if err != nil {
		return Info{}, err
	}
	return s.info(), nil
}

// Engine returns the session's current engine.
func (m *Manager) Engine(id string) (*rules.Engine, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine, nil
}

// List returns every session ordered by id.
func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(all))
	for _, s := range all {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Delete removes a session
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	if _, exists := m.sessions[id]; !exists {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	m.recorder.SetActiveSessions(n)
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// AddRule decodes a rule with codec and appends it to the session. The rule
// is kept across reloads. A decode error leaves the session unchanged.
func (m *Manager) AddRule(id string, data []byte, codec rules.Codec) (rules.Rule, error) {
	s, err := m.session(id)
	if err != nil {
		return rules.Rule{}, err
	}

	r, err := codec.DecodeRule(data)
	if err != nil {
		return rules.Rule{}, err
	}

	s.mu.Lock()
	s.engine.AddRule(r)
	s.local = append(s.local, r.Clone())
	s.lastSeen = m.now()
	s.mu.Unlock()

	m.logger.Debug("session rule added", "session_id", id, "rule_id", r.ID)
	return r, nil
}

// Rules returns the session's rules in evaluation order.
func (m *Manager) Rules(id string) ([]rules.Rule, error) {
	engine, err := m.Engine(id)
	if err != nil {
		return nil, err
	}
	return engine.Rules(), nil
}

// Narrate returns the session engine's rule narration.
func (m *Manager) Narrate(id string) (string, error) {
	engine, err := m.Engine(id)
	if err != nil {
		return "", err
	}
	return engine.NarrateRules(), nil
}

// Evaluate runs ctx through the session's engine and records the emitted
// actions in its activity log.
func (m *Manager) Evaluate(id string, ctx rules.Context) ([]rules.Action, error) {
	s, err := m.session(id)
	if err != nil {
		m.recorder.RecordEvaluationError()
		return nil, err
	}
	return m.evaluate(s, ctx), nil
}

// EvaluateEncoded decodes a context with codec and evaluates it in the
// session. An unknown session is reported before the body is decoded.
func (m *Manager) EvaluateEncoded(id string, data []byte, codec rules.Codec) ([]rules.Action, error) {
	s, err := m.session(id)
	if err != nil {
		m.recorder.RecordEvaluationError()
		return nil, err
	}

	ctx, err := codec.DecodeContext(data)
	if err != nil {
		m.recorder.RecordEvaluationError()
		return nil, err
	}
	return m.evaluate(s, ctx), nil
}

func (m *Manager) evaluate(s *Session, ctx rules.Context) []rules.Action {
	now := m.now()
	s.mu.Lock()
	s.lastSeen = now
	engine := s.engine
	paused := s.paused
	s.mu.Unlock()

	if paused {
		m.recorder.RecordEvaluation(nil, 0)
		return []rules.Action{}
	}

	start := time.Now()
	actions := engine.Evaluate(ctx)
	m.recorder.RecordEvaluation(actions, time.Since(start))

	s.activity.RecordActions(actions, now)
	return actions
}

// SetPaused pauses or resumes a session. A paused session keeps its rules
// but every evaluation returns no actions.
func (m *Manager) SetPaused(id string, paused bool) (Info, error) {
	s, err := m.session(id)
	if err != nil {
		return Info{}, err
	}

	s.mu.Lock()
	s.paused = paused
	s.lastSeen = m.now()
	s.mu.Unlock()

	m.logger.Info("session pause changed", "session_id", id, "paused", paused)
	return s.info(), nil
}

// Activity returns the session's recent actions oldest first.
func (m *Manager) Activity(id string) ([]ActivityEntry, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	return s.activity.Entries(), nil
}

// Reload rebuilds the session engine from the current catalog plus the
// session-local rules and swaps it in. Evaluations already running finish
// on the old engine.
func (m *Manager) Reload(id string) (Info, error) {
	s, err := m.session(id)
	if err != nil {
		return Info{}, err
	}
	if err := m.reload(s); err != nil {
		return Info{}, err
	}
	return s.info(), nil
}

func (m *Manager) reload(s *Session) error {
	s.mu.RLock()
	local := append([]rules.Rule{}, s.local...)
	s.mu.RUnlock()

	engine, err := m.buildEngine(local)
	if err != nil {
		return err
	}

	s.mu.Lock()
	// Rules added while the new engine was being built.
	for _, r := range s.local[len(local):] {
		engine.AddRule(r)
	}
	s.engine = engine
	s.mu.Unlock()

	m.logger.Info("session reloaded", "session_id", s.ID, "rules", engine.Len())
	return nil
}

// ReloadAll reloads every session and returns the first error.
func (m *Manager) ReloadAll() error {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, s := range all {
		if err := m.reload(s); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("session %s: %w", s.ID, err)
		}
	}
	return firstErr
}

// SweepIdle deletes sessions not used for longer than maxIdle and returns how
// many were removed.
func (m *Manager) SweepIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	evicted := 0
	for id, s := range m.sessions {
		s.mu.RLock()
		idle := s.lastSeen.Before(cutoff)
		s.mu.RUnlock()
		if idle {
			delete(m.sessions, id)
			evicted++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if evicted > 0 {
		m.recorder.SessionsEvicted(evicted)
		m.recorder.SetActiveSessions(n)
		m.logger.Info("idle sessions evicted", "evicted", evicted, "remaining", n)
	}
	return evicted
}
