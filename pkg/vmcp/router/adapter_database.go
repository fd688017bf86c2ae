package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// DSNResolver maps a tool's dsn_ref to a real connection string, keeping
// credentials out of the tool definition file itself.
type DSNResolver func(ref string) (driver, dsn string, err error)

// DatabaseAdapter runs a parameterized, substituted query against a
// configured database connection, pooling one *sql.DB per resolved DSN.
// Only the pure-Go sqlite driver is registered by default (matching the
// rest of this module's cgo-free storage choices); other drivers can be
// added by importing them for side effect before constructing the adapter.
type DatabaseAdapter struct {
	resolve DSNResolver

	mu   sync.Mutex
	dbs  map[string]*sql.DB
}

func NewDatabaseAdapter(resolve DSNResolver) *DatabaseAdapter {
	return &DatabaseAdapter{resolve: resolve, dbs: make(map[string]*sql.DB)}
}

func (a *DatabaseAdapter) Call(ctx context.Context, tool vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error) {
	cfg := tool.Routing.Database
	if cfg == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "tool %q missing database routing config", tool.Name)
	}

	driverName, dsn, err := a.resolve(cfg.DSNRef)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInternalError, err, "resolve dsn_ref %q", cfg.DSNRef)
	}
	db, err := a.dbFor(driverName, dsn)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "open database")
	}

	query, err := Substitute(cfg.Query, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "database query")
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.QueryContext(queryCtx, query)
	if err != nil {
		return vmcp.ToolCallResult{OK: false, IsError: true, ErrorMsg: err.Error()}, nil
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInternalError, err, "scan database result")
	}
	raw, _ := json.Marshal(result)
	return vmcp.ToolCallResult{OK: true, Content: []vmcp.Content{{Type: "text", Text: string(raw), MimeType: "application/json"}}}, nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (a *DatabaseAdapter) dbFor(driverName, dsn string) (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := driverName + "|" + dsn
	if db, ok := a.dbs[key]; ok {
		return db, nil
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	a.dbs[key] = db
	return db, nil
}

// Close tears down every pooled database connection.
func (a *DatabaseAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for key, db := range a.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.dbs, key)
	}
	return firstErr
}
