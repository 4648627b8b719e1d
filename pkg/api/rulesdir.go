package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/lemonberrylabs/fieldrules/pkg/rules"
	"github.com/lemonberrylabs/fieldrules/pkg/store"
)

// watchDebounce is how long WatchDir waits for file events to settle
// before reloading.
var watchDebounce = 100 * time.Millisecond

func isRuleFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadDir synchronizes the store with the .yaml, .yml and .json rule files
// in dir. Rules new to the directory are created, changed ones get a new
// revision and rules whose definition disappeared are deleted. Files that
// fail to parse are skipped with a warning and the rules previously loaded
// from them are kept. Ownership is the rule's Source, so it survives a
// restart on a persistent store. Rules created through the API are never
// touched.
func (s *Server) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading rules directory: %w", err)
	}

	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	seen := make(map[string]bool)
	broken := make(map[string]bool)
	changed, deleted := 0, 0

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isRuleFile(name) {
			continue
		}

		rs, err := rules.ParseFile(filepath.Join(dir, name))
		if err != nil {
			s.log.Warn("Skipping rule file", zap.String("file", name), zap.Error(err))
			broken[name] = true
			continue
		}

		for _, rule := range rs.Rules {
			if seen[rule.Name] {
				s.log.Warn("Skipping rule",
					zap.String("file", name),
					zap.String("rule", rule.Name),
					zap.String("reason", "defined in another file"))
				continue
			}
			seen[rule.Name] = true

			ok, err := s.applyRule(name, rule)
			if err != nil {
				s.log.Warn("Skipping rule", zap.String("file", name), zap.Error(err))
				continue
			}
			if ok {
				changed++
				s.log.Info("Loaded rule", zap.String("rule", rule.Name), zap.String("file", name))
			}
		}
	}

	managed := 0
	for _, r := range s.store.ListRules() {
		if r.Source == "" {
			continue
		}
		if seen[r.Name] || broken[r.Source] {
			managed++
			continue
		}
		if err := s.deleteRule(r.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("Could not delete rule", zap.String("rule", r.Name), zap.Error(err))
			managed++
			continue
		}
		deleted++
		s.log.Info("Deleted rule", zap.String("rule", r.Name), zap.String("file", r.Source))
	}

	s.metrics.SetRules(len(s.store.ListRules()))
	s.log.Info("Loaded rules directory",
		zap.String("dir", dir),
		zap.Int("changed", changed),
		zap.Int("deleted", deleted),
		zap.Int("managed", managed))
	return nil
}

// applyRule creates or updates one rule from file. It reports whether the
// store changed. Callers hold dirMu.
func (s *Server) applyRule(file string, rule *rules.Rule) (bool, error) {
	current, err := s.store.GetRule(rule.Name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r, err := s.store.CreateRule(rule.Name, rule.Constraint, rule.Description, store.WithSource(file))
		if err != nil {
			return false, err
		}
		s.cache(r, rule.Program())
		return true, nil
	case err != nil:
		return false, err
	case current.Source == "":
		return false, fmt.Errorf("rule '%s' was created through the API: %w", rule.Name, store.ErrAlreadyExists)
	case current.Source == file && current.Constraint == rule.Constraint &&
		(rule.Description == "" || rule.Description == current.Description):
		return false, nil
	}

	r, err := s.store.UpdateRule(rule.Name, rule.Constraint, rule.Description, store.WithSource(file))
	if err != nil {
		return false, err
	}
	s.cache(r, rule.Program())
	return true, nil
}

// WatchDir reloads dir with LoadDir whenever a rule file in it is created,
// written, renamed or removed. It blocks until ctx is cancelled.
func (s *Server) WatchDir(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating rules directory watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching rules directory: %w", err)
	}
	s.log.Info("Watching rules directory", zap.String("dir", dir))

	reload := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("rules directory watcher closed")
			}
			if ev.Op == fsnotify.Chmod || !isRuleFile(ev.Name) {
				continue
			}
			s.log.Debug("Rule file event", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))

			if timer == nil {
				timer = time.AfterFunc(watchDebounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(watchDebounce)
			}

		case <-reload:
			if err := s.LoadDir(dir); err != nil {
				s.log.Error("Reloading rules directory failed", zap.Error(err))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("rules directory watcher closed")
			}
			s.log.Error("Rules directory watcher error", zap.Error(err))
		}
	}
}
