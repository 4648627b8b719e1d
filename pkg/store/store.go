// Package store provides in-memory storage for numeric field rules and the
// checks evaluated against them, optionally written through to a Backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a rule or check does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a rule whose name is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Rule is a named numeric constraint.
type Rule struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Constraint  string    `json:"constraint"`
	Source      string    `json:"source,omitempty"`
	RevisionID  string    `json:"revisionId"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
}

// RuleOption adjusts a rule being created or updated.
type RuleOption func(*Rule)

// WithSource marks the rule as loaded from the named rule file. Rules
// without a source were created through the API.
func WithSource(file string) RuleOption {
	return func(r *Rule) { r.Source = file }
}

// Check records one evaluation of a value against a rule revision.
type Check struct {
	ID             string    `json:"id"`
	Rule           string    `json:"rule"`
	RuleRevisionID string    `json:"ruleRevisionId"`
	Value          string    `json:"value"`
	Valid          bool      `json:"valid"`
	Error          string    `json:"error,omitempty"`
	CreateTime     time.Time `json:"createTime"`

	seq int64
}

// Backend persists store mutations. The store calls it while holding its
// write lock, before the in-memory change is applied; a failed write leaves
// the store unchanged.
type Backend interface {
	PutRule(ctx context.Context, r *Rule) error
	// DeleteRule removes the rule and all of its checks.
	DeleteRule(ctx context.Context, name string) error
	PutCheck(ctx context.Context, c *Check) error
	DeleteChecksBefore(ctx context.Context, t time.Time) (int, error)
	// Load returns every rule, and every check in the order it was recorded.
	Load(ctx context.Context) ([]*Rule, []*Check, error)
}

// Store is a thread-safe in-memory storage for rules and checks.
type Store struct {
	mu      sync.RWMutex
	rules   map[string]*Rule
	checks  map[string]*Check
	backend Backend

	// Counters for revision IDs and check ordering
	revCounter   int64
	checkCounter int64
}

// New creates a new empty store.
func New() *Store {
	return &Store{
		rules:  make(map[string]*Rule),
		checks: make(map[string]*Check),
	}
}

// Open creates a store holding everything b has persisted and writing every
// later change through to b.
func Open(ctx context.Context, b Backend) (*Store, error) {
	rules, checks, err := b.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading store: %w", err)
	}

	s := New()
	s.backend = b
	for _, r := range rules {
		cp := *r
		s.rules[r.Name] = &cp
		s.revCounter = max(s.revCounter, revisionNumber(r.RevisionID))
	}
	for _, c := range checks {
		s.checkCounter++
		cp := *c
		cp.seq = s.checkCounter
		s.checks[c.ID] = &cp
		s.revCounter = max(s.revCounter, revisionNumber(c.RuleRevisionID))
	}
	return s, nil
}

func revisionID(n int64) string {
	return fmt.Sprintf("%06d-000", n)
}

func revisionNumber(id string) int64 {
	head, _, _ := strings.Cut(id, "-")
	n, _ := strconv.ParseInt(head, 10, 64)
	return n
}

func (s *Store) persist(fn func(ctx context.Context, b Backend) error) error {
	if s.backend == nil {
		return nil
	}
	if err := fn(context.Background(), s.backend); err != nil {
		return fmt.Errorf("persisting: %w", err)
	}
	return nil
}

// CreateRule stores a new rule. The constraint is stored as given; callers
// compile it first.
func (s *Store) CreateRule(name, constraint, description string, opts ...RuleOption) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[name]; exists {
		return nil, fmt.Errorf("rule '%s': %w", name, ErrAlreadyExists)
	}

	s.revCounter++
	now := time.Now()
	r := &Rule{
		Name:        name,
		Description: description,
		Constraint:  constraint,
		RevisionID:  revisionID(s.revCounter),
		CreateTime:  now,
		UpdateTime:  now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := s.persist(func(ctx context.Context, b Backend) error { return b.PutRule(ctx, r) }); err != nil {
		return nil, err
	}
	s.rules[name] = r
	cp := *r
	return &cp, nil
}

// GetRule retrieves a rule by name.
func (s *Store) GetRule(name string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[name]
	if !ok {
		return nil, fmt.Errorf("rule '%s': %w", name, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// ListRules returns all rules sorted by name.
func (s *Store) ListRules() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// UpdateRule replaces a rule's constraint and starts a new revision. An
// empty description keeps the current one.
func (s *Store) UpdateRule(name, constraint, description string, opts ...RuleOption) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[name]
	if !ok {
		return nil, fmt.Errorf("rule '%s': %w", name, ErrNotFound)
	}

	s.revCounter++
	next := *r
	next.Constraint = constraint
	if description != "" {
		next.Description = description
	}
	next.RevisionID = revisionID(s.revCounter)
	next.UpdateTime = time.Now()
	for _, opt := range opts {
		opt(&next)
	}

	if err := s.persist(func(ctx context.Context, b Backend) error { return b.PutRule(ctx, &next) }); err != nil {
		return nil, err
	}
	*r = next

	cp := next
	return &cp, nil
}

// DeleteRule removes a rule and its checks.
func (s *Store) DeleteRule(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[name]; !ok {
		return fmt.Errorf("rule '%s': %w", name, ErrNotFound)
	}
	if err := s.persist(func(ctx context.Context, b Backend) error { return b.DeleteRule(ctx, name) }); err != nil {
		return err
	}
	delete(s.rules, name)
	for id, c := range s.checks {
		if c.Rule == name {
			delete(s.checks, id)
		}
	}
	return nil
}

// RecordCheck stores the outcome of evaluating value against the current
// revision of a rule. evalErr, if any, is kept as text.
func (s *Store) RecordCheck(ruleName, value string, valid bool, evalErr error) (*Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ruleName]
	if !ok {
		return nil, fmt.Errorf("rule '%s': %w", ruleName, ErrNotFound)
	}

	c := &Check{
		ID:             uuid.NewString(),
		Rule:           ruleName,
		RuleRevisionID: r.RevisionID,
		Value:          value,
		Valid:          valid,
		CreateTime:     time.Now(),
	}
	if evalErr != nil {
		c.Error = evalErr.Error()
	}
	if err := s.persist(func(ctx context.Context, b Backend) error { return b.PutCheck(ctx, c) }); err != nil {
		return nil, err
	}
	s.checkCounter++
	c.seq = s.checkCounter
	s.checks[c.ID] = c

	cp := *c
	return &cp, nil
}

// GetCheck retrieves a check of the given rule by ID.
func (s *Store) GetCheck(ruleName, id string) (*Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.checks[id]
	if !ok || c.Rule != ruleName {
		return nil, fmt.Errorf("check '%s': %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// ListChecks returns the checks of a rule, newest first.
func (s *Store) ListChecks(ruleName string) []*Check {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Check
	for _, c := range s.checks {
		if c.Rule == ruleName {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq > result[j].seq })
	return result
}

// PruneChecks removes every check recorded before t and reports how many
// were removed.
func (s *Store) PruneChecks(t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(func(ctx context.Context, b Backend) error {
		_, err := b.DeleteChecksBefore(ctx, t)
		return err
	}); err != nil {
		return 0, err
	}

	n := 0
	for id, c := range s.checks {
		if c.CreateTime.Before(t) {
			delete(s.checks, id)
			n++
		}
	}
	return n, nil
}
