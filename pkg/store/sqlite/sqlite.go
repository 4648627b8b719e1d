// Package sqlite implements store.Backend on a SQLite database file, so rules
// and check history survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lemonberrylabs/fieldrules/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS rules (
	name        TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	expr        TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	revision_id TEXT NOT NULL,
	create_time INTEGER NOT NULL,
	update_time INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS checks (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT NOT NULL UNIQUE,
	rule             TEXT NOT NULL,
	rule_revision_id TEXT NOT NULL,
	value            TEXT NOT NULL,
	valid            INTEGER NOT NULL,
	error            TEXT NOT NULL,
	create_time      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_rule ON checks(rule);
CREATE INDEX IF NOT EXISTS idx_checks_create_time ON checks(create_time);
`

// Backend stores rules and checks in SQLite.
type Backend struct {
	db        *sql.DB
	closeOnce sync.Once

	putRuleStmt    *sql.Stmt
	deleteRuleStmt *sql.Stmt
	deleteRuleRefs *sql.Stmt
	putCheckStmt   *sql.Stmt
	pruneStmt      *sql.Stmt
}

var _ store.Backend = (*Backend)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Backend, error) {
	if path == "" {
		return nil, errors.New("db path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	b := &Backend{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := b.prepare(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) prepare() error {
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&b.putRuleStmt, `
			INSERT INTO rules (name, description, expr, source, revision_id, create_time, update_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET
				description = excluded.description,
				expr = excluded.expr,
				source = excluded.source,
				revision_id = excluded.revision_id,
				update_time = excluded.update_time`},
		{&b.deleteRuleStmt, `DELETE FROM rules WHERE name = ?`},
		{&b.deleteRuleRefs, `DELETE FROM checks WHERE rule = ?`},
		{&b.putCheckStmt, `
			INSERT INTO checks (id, rule, rule_revision_id, value, valid, error, create_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)`},
		{&b.pruneStmt, `DELETE FROM checks WHERE create_time < ?`},
	}
	for _, st := range stmts {
		stmt, err := b.db.Prepare(st.query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		*st.dst = stmt
	}
	return nil
}

// PutRule inserts or replaces a rule.
func (b *Backend) PutRule(ctx context.Context, r *store.Rule) error {
	_, err := b.putRuleStmt.ExecContext(ctx,
		r.Name, r.Description, r.Constraint, r.Source, r.RevisionID,
		r.CreateTime.UnixNano(), r.UpdateTime.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save rule '%s': %w", r.Name, err)
	}
	return nil
}

// DeleteRule removes a rule and its checks in one transaction.
func (b *Backend) DeleteRule(ctx context.Context, name string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.StmtContext(ctx, b.deleteRuleRefs).ExecContext(ctx, name); err != nil {
		return fmt.Errorf("failed to delete checks of rule '%s': %w", name, err)
	}
	if _, err := tx.StmtContext(ctx, b.deleteRuleStmt).ExecContext(ctx, name); err != nil {
		return fmt.Errorf("failed to delete rule '%s': %w", name, err)
	}
	return tx.Commit()
}

// PutCheck appends a check.
func (b *Backend) PutCheck(ctx context.Context, c *store.Check) error {
	_, err := b.putCheckStmt.ExecContext(ctx,
		c.ID, c.Rule, c.RuleRevisionID, c.Value, c.Valid, c.Error, c.CreateTime.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save check '%s': %w", c.ID, err)
	}
	return nil
}

// DeleteChecksBefore removes checks created before t.
func (b *Backend) DeleteChecksBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := b.pruneStmt.ExecContext(ctx, t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune checks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Load reads every rule, and every check in insertion order.
func (b *Backend) Load(ctx context.Context) ([]*store.Rule, []*store.Check, error) {
	rules, err := b.loadRules(ctx)
	if err != nil {
		return nil, nil, err
	}
	checks, err := b.loadChecks(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rules, checks, nil
}

func (b *Backend) loadRules(ctx context.Context) ([]*store.Rule, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT name, description, expr, source, revision_id, create_time, update_time
		FROM rules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*store.Rule
	for rows.Next() {
		var (
			r                store.Rule
			created, updated int64
		)
		if err := rows.Scan(&r.Name, &r.Description, &r.Constraint, &r.Source, &r.RevisionID, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.CreateTime = time.Unix(0, created)
		r.UpdateTime = time.Unix(0, updated)
		rules = append(rules, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

func (b *Backend) loadChecks(ctx context.Context) ([]*store.Check, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, rule, rule_revision_id, value, valid, error, create_time
		FROM checks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	defer rows.Close()

	var checks []*store.Check
	for rows.Next() {
		var (
			c       store.Check
			created int64
		)
		if err := rows.Scan(&c.ID, &c.Rule, &c.RuleRevisionID, &c.Value, &c.Valid, &c.Error, &created); err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		c.CreateTime = time.Unix(0, created)
		checks = append(checks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checks: %w", err)
	}
	return checks, nil
}

// Close checkpoints the WAL and closes the database. It is safe to call
// more than once.
func (b *Backend) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{b.putRuleStmt, b.deleteRuleStmt, b.deleteRuleRefs, b.putCheckStmt, b.pruneStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		_, _ = b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = b.db.Close()
	})
	return closeErr
}
