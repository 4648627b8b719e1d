package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lemonberrylabs/fieldrules/pkg/store"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func ruleNames(s *store.Store) []string {
	names := make([]string, 0)
	for _, r := range s.ListRules() {
		names = append(names, r.Name)
	}
	return names
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fields.yaml", "rules:\n  - name: zip-code\n    constraint: '>=10000 & <=99999'\n  - name: age\n    constraint: '0 <= & <= 150'\n")
	writeFile(t, dir, "more.json", `{"rules":[{"name":"percent","constraint":"!<0 & !>100"}]}`)
	writeFile(t, dir, "broken.yml", "rules:\n  - name: bad\n    constraint: '>1 $'\n")
	writeFile(t, dir, "unbalanced.yaml", "rules:\n  - name: range\n    constraint: '(>1'\n  - name: span\n    constraint: '>=1000 <=9999'\n")
	writeFile(t, dir, "zz-dup.yaml", "rules:\n  - name: age\n    constraint: '>0'\n")
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, ".hidden.yaml", "rules:\n  - name: hidden\n    constraint: '>0'\n")

	core, logs := observer.New(zap.WarnLevel)
	srv := New(store.New(), zap.New(core), nil)
	require.NoError(t, srv.LoadDir(dir))

	assert.Equal(t, []string{"age", "percent", "zip-code"}, ruleNames(srv.store))

	age, err := srv.store.GetRule("age")
	require.NoError(t, err)
	assert.Equal(t, "0 <= & <= 150", age.Constraint)

	assert.Equal(t, 2, logs.FilterMessage("Skipping rule file").Len())
	assert.Equal(t, 1, logs.FilterMessage("Skipping rule").Len())

	c, err := srv.Check("percent", "101")
	require.NoError(t, err)
	assert.False(t, c.Valid)

	assert.Error(t, srv.LoadDir(filepath.Join(dir, "missing")))
}

func TestLoadDirResync(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "rules:\n  - name: age\n    constraint: '>=0'\n  - name: qty\n    constraint: '>0'\n")
	writeFile(t, dir, "b.yaml", "rules:\n  - name: percent\n    constraint: '>=0 & <=100'\n")

	srv := New(store.New(), nil, nil)
	_, err := srv.store.CreateRule("manual", ">1", "")
	require.NoError(t, err)
	require.NoError(t, srv.LoadDir(dir))
	assert.Equal(t, []string{"age", "manual", "percent", "qty"}, ruleNames(srv.store))

	// Unchanged files keep their revisions.
	before, err := srv.store.GetRule("age")
	require.NoError(t, err)
	require.NoError(t, srv.LoadDir(dir))
	after, err := srv.store.GetRule("age")
	require.NoError(t, err)
	assert.Equal(t, before.RevisionID, after.RevisionID)

	// Edit one rule, drop another, break b.yaml.
	writeFile(t, dir, "a.yaml", "rules:\n  - name: age\n    constraint: '>=18'\n")
	writeFile(t, dir, "b.yaml", "rules: [")
	require.NoError(t, srv.LoadDir(dir))

	assert.Equal(t, []string{"age", "manual", "percent"}, ruleNames(srv.store))
	age, err := srv.store.GetRule("age")
	require.NoError(t, err)
	assert.Equal(t, ">=18", age.Constraint)
	assert.NotEqual(t, before.RevisionID, age.RevisionID)

	c, err := srv.Check("age", "17")
	require.NoError(t, err)
	assert.False(t, c.Valid)

	// Removing the broken file finally drops its rules.
	require.NoError(t, os.Remove(filepath.Join(dir, "b.yaml")))
	require.NoError(t, srv.LoadDir(dir))
	assert.Equal(t, []string{"age", "manual"}, ruleNames(srv.store))
}

func TestLoadDirLeavesAPIRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "rules:\n  - name: age\n    constraint: '>=0'\n")

	core, logs := observer.New(zap.WarnLevel)
	srv := New(store.New(), zap.New(core), nil)
	_, err := srv.store.CreateRule("age", "<5", "")
	require.NoError(t, err)

	require.NoError(t, srv.LoadDir(dir))
	age, err := srv.store.GetRule("age")
	require.NoError(t, err)
	assert.Equal(t, "<5", age.Constraint)
	assert.Equal(t, 1, logs.FilterMessage("Skipping rule").Len())
}

func TestWatchDir(t *testing.T) {
	dir := t.TempDir()
	srv := New(store.New(), nil, nil)
	require.NoError(t, srv.LoadDir(dir))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.WatchDir(ctx, dir) }()

	// Files are rewritten on every poll so an event lands after the
	// watcher has started.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "fields.yaml"), []byte("rules:\n  - name: age\n    constraint: '>=0'\n"), 0o644)
		_, err := srv.store.GetRule("age")
		return err == nil
	}, 5*time.Second, 150*time.Millisecond)

	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "fields.yaml"), []byte("rules:\n  - name: age\n    constraint: '>=21'\n"), 0o644)
		r, err := srv.store.GetRule("age")
		return err == nil && r.Constraint == ">=21"
	}, 5*time.Second, 150*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "fields.yaml")))
	require.Eventually(t, func() bool {
		return len(srv.store.ListRules()) == 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WatchDir did not stop after cancel")
	}
}

func TestLoadDirOwnershipSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "rules:\n  - name: age\n    constraint: '>=0'\n  - name: qty\n    constraint: '>0'\n")

	st := store.New()
	require.NoError(t, New(st, nil, nil).LoadDir(dir))
	age, err := st.GetRule("age")
	require.NoError(t, err)
	assert.Equal(t, "a.yaml", age.Source)

	// A fresh server over the same store still manages the file's rules.
	writeFile(t, dir, "a.yaml", "rules:\n  - name: age\n    constraint: '>=18'\n")
	restarted := New(st, nil, nil)
	require.NoError(t, restarted.LoadDir(dir))
	assert.Equal(t, []string{"age"}, ruleNames(st))

	age, err = st.GetRule("age")
	require.NoError(t, err)
	assert.Equal(t, ">=18", age.Constraint)

	// Moving a rule to another file moves its source.
	require.NoError(t, os.Remove(filepath.Join(dir, "a.yaml")))
	writeFile(t, dir, "b.yaml", "rules:\n  - name: age\n    constraint: '>=18'\n")
	require.NoError(t, restarted.LoadDir(dir))
	age, err = st.GetRule("age")
	require.NoError(t, err)
	assert.Equal(t, "b.yaml", age.Source)
}
