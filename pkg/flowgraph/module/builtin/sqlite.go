package builtin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	fgerrors "github.com/randalmurphal/flowhost/pkg/flowgraph/errors"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/registry"
)

// SQLiteDB is the store key holding an application's database once the
// initializer has opened it.
var SQLiteDB = registry.NewKey[*sql.DB]("sqlite.db")

type sqliteModule struct{}

// SQLite returns the sqlite module.
//
// The database is opened, and the init statements run, by the
// application's initializer. It is closed when the application is
// undeployed. Statements that find the database busy or locked are
// retried with backoff.
func SQLite() module.Module { return sqliteModule{} }

func (sqliteModule) Name() string       { return "sqlite" }
func (sqliteModule) Requires() []string { return nil }

type sqliteSettings struct {
	Path string   `yaml:"path"`
	Init []string `yaml:"init"`
}

func (c sqliteSettings) Validate() error {
	if c.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

func (sqliteModule) Configure(settings *config.Node, s *module.Setup) error {
	cfg, err := module.Typed[sqliteSettings](settings)
	if err != nil {
		return err
	}

	path := cfg.Path
	memory := path == ":memory:" || strings.HasPrefix(path, "file:")
	if !memory {
		path = s.Path(path)
	}

	s.Initializer(flowgraph.Func("sqlite.open", func(ctx flowgraph.Context, _ *document.Document) error {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if memory {
			// Each connection to :memory: is a separate database.
			db.SetMaxOpenConns(1)
		} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return fmt.Errorf("enable WAL mode: %w", err)
		}
		for _, stmt := range cfg.Init {
			if _, err := execRetry(ctx, db, stmt, nil); err != nil {
				db.Close()
				return fmt.Errorf("init statement: %w", err)
			}
		}
		registry.Put(ctx.Store(), SQLiteDB, db)
		return nil
	}))

	store := s.Store()
	s.OnUndeploy(func(context.Context) error {
		db, ok := registry.Get(store, SQLiteDB)
		if !ok {
			return nil
		}
		registry.Delete(store, SQLiteDB)
		return db.Close()
	})

	s.Operation("sqlite.exec", module.Op(newSQLiteExec))
	s.Operation("sqlite.query", module.Op(newSQLiteQuery))
	return nil
}

type statementConfig struct {
	SQL string `yaml:"sql"`
	// Args are document paths bound to the statement's placeholders.
	// Missing paths bind NULL.
	Args []string `yaml:"args"`
	Out  string   `yaml:"out"`
	// Single stores the first row instead of a list.
	Single bool `yaml:"single"`
}

func (c statementConfig) Validate() error {
	if strings.TrimSpace(c.SQL) == "" {
		return errors.New("sql is required")
	}
	return nil
}

func (c statementConfig) bind(doc *document.Document) []any {
	args := make([]any, len(c.Args))
	for i, p := range c.Args {
		args[i], _ = doc.Get(p)
	}
	return args
}

func database(ctx flowgraph.Context) (*sql.DB, error) {
	db, ok := registry.Get(ctx.Store(), SQLiteDB)
	if !ok {
		return nil, errors.New("sqlite database is not open")
	}
	return db, nil
}

// newSQLiteExec runs a statement. With out set, it stores the number of
// affected rows.
func newSQLiteExec(cfg statementConfig, _ *module.Step) (flowgraph.Operation, error) {
	return flowgraph.OperationFunc(func(ctx flowgraph.Context, doc *document.Document) error {
		db, err := database(ctx)
		if err != nil {
			return err
		}
		res, err := execRetry(ctx, db, cfg.SQL, cfg.bind(doc))
		if err != nil {
			return err
		}
		if cfg.Out == "" {
			return nil
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		return doc.Put(cfg.Out, n)
	}), nil
}

// newSQLiteQuery stores the result rows as a list of column maps.
func newSQLiteQuery(cfg statementConfig, s *module.Step) (flowgraph.Operation, error) {
	if cfg.Out == "" {
		return nil, s.Errorf("out is required")
	}
	return flowgraph.OperationFunc(func(ctx flowgraph.Context, doc *document.Document) error {
		db, err := database(ctx)
		if err != nil {
			return err
		}
		res := fgerrors.WithRetry(ctx, fgerrors.DefaultRetry, func(ctx context.Context) ([]map[string]any, error) {
			rows, err := queryRows(ctx, db, cfg.SQL, cfg.bind(doc))
			return rows, classify(err)
		})
		if res.Err != nil {
			return res.Err
		}
		if cfg.Single {
			if len(res.Value) == 0 {
				doc.Delete(cfg.Out)
				return nil
			}
			return doc.Put(cfg.Out, res.Value[0])
		}
		list := make([]any, len(res.Value))
		for i, r := range res.Value {
			list[i] = r
		}
		return doc.Put(cfg.Out, list)
	}), nil
}

func execRetry(ctx context.Context, db *sql.DB, stmt string, args []any) (sql.Result, error) {
	res := fgerrors.WithRetry(ctx, fgerrors.DefaultRetry, func(ctx context.Context) (sql.Result, error) {
		r, err := db.ExecContext(ctx, stmt, args...)
		return r, classify(err)
	})
	return res.Value, res.Err
}

func queryRows(ctx context.Context, db *sql.DB, stmt string, args []any) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

// SQLite primary result codes worth retrying.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// classify marks busy and locked errors as transient.
func classify(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		if code := se.Code() & 0xff; code == sqliteBusy || code == sqliteLocked {
			return fgerrors.Transient(err, "sqlite")
		}
	}
	return err
}
