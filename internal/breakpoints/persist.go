package breakpoints

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	_ "modernc.org/sqlite"

	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// Persister keeps a copy of the breakpoint set in a SQLite database so that
// breakpoints survive a restart of the host. Data breakpoints are only stored
// when they can persist.
type Persister struct {
	db  *sql.DB
	log logr.Logger
}

// OpenPersister opens (creating if needed) the database at path.
func OpenPersister(path string, log logr.Logger) (*Persister, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite connections do not share in-memory databases
	db.SetMaxOpenConns(1)

	p := &Persister{db: db, log: log.WithName("breakpoint-db")}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return p, nil
}

func (p *Persister) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS breakpoints (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    payload TEXT NOT NULL
);
`
	_, err := p.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (p *Persister) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Load returns the stored breakpoints in the order they were first saved.
func (p *Persister) Load(ctx context.Context) ([]Breakpoint, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, payload FROM breakpoints ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query breakpoints: %w", err)
	}
	defer rows.Close()

	var out []Breakpoint
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan breakpoint: %w", err)
		}
		var dto types.BreakpointDTO
		if err := json.Unmarshal([]byte(payload), &dto); err != nil {
			p.log.Error(err, "skipping unreadable breakpoint", "id", id)
			continue
		}
		out = append(out, fromDTOs(dto)...)
	}
	return out, rows.Err()
}

// Save upserts the given breakpoints.
func (p *Persister) Save(ctx context.Context, bps ...Breakpoint) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, bp := range bps {
		if d, ok := bp.(*DataBreakpoint); ok && !d.CanPersist() {
			continue
		}
		payload, err := json.Marshal(bp.DTO())
		if err != nil {
			return fmt.Errorf("marshal breakpoint %s: %w", bp.ID(), err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO breakpoints (id, kind, payload) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
			bp.ID(), bp.Kind().String(), string(payload))
		if err != nil {
			return fmt.Errorf("save breakpoint %s: %w", bp.ID(), err)
		}
	}
	return tx.Commit()
}

// Delete removes breakpoints by id.
func (p *Persister) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := p.db.ExecContext(ctx, `DELETE FROM breakpoints WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete breakpoint %s: %w", id, err)
		}
	}
	return nil
}

// Restore loads the stored breakpoints into store. They go through Store.Add
// so the main thread learns about them.
func (p *Persister) Restore(ctx context.Context, store *Store) error {
	bps, err := p.Load(ctx)
	if err != nil {
		return err
	}
	if len(bps) == 0 {
		return nil
	}
	p.log.Info("restoring breakpoints", "count", len(bps))
	return store.Add(ctx, bps...)
}

// Attach mirrors every change of store into the database until the returned
// subscription is disposed.
func (p *Persister) Attach(store *Store) *event.Subscription {
	return store.OnDidChange(func(ev ChangeEvent) {
		ctx := context.Background()
		saved := make([]Breakpoint, 0, len(ev.Added)+len(ev.Changed))
		saved = append(saved, ev.Added...)
		saved = append(saved, ev.Changed...)
		if err := p.Save(ctx, saved...); err != nil {
			p.log.Error(err, "failed to persist breakpoints")
		}
		ids := make([]string, 0, len(ev.Removed))
		for _, bp := range ev.Removed {
			ids = append(ids, bp.ID())
		}
		if err := p.Delete(ctx, ids...); err != nil {
			p.log.Error(err, "failed to delete persisted breakpoints")
		}
	})
}
