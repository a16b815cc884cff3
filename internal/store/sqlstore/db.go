package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/migrate"

	"settingsvc/internal/store/sqlstore/migrations"
)

// DB holds the read/write bun pool split the teacher's internal/db package
// uses: one single-connection write handle (sqlite allows exactly one
// writer), and a small read pool for concurrent Find calls.
type DB struct {
	mu sync.Mutex

	sqlWrite *sql.DB
	sqlRead  *sql.DB
	write    *bun.DB
	read     *bun.DB
	path     string
}

type sqliteConfig struct {
	BusyTimeoutMs int
	ForeignKeys   bool
}

func defaultSQLiteConfig() sqliteConfig {
	return sqliteConfig{BusyTimeoutMs: 5000, ForeignKeys: true}
}

const (
	defaultMaxReadConns  = 4
	defaultMaxWriteConns = 1
)

// Path returns the resolved sqlite file path once Open has succeeded.
func (d *DB) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// WriteDB returns the bun handle used for mutating queries and migrations.
func (d *DB) WriteDB() *bun.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write
}

// SQLWriteDB returns the raw *sql.DB backing the write pool, for
// collaborators that need the connection itself rather than a bun handle —
// the task engine's goqite-backed queue shares this pool rather than
// opening a second sqlite connection for its own bookkeeping table.
func (d *DB) SQLWriteDB() *sql.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sqlWrite
}

// ReadDB returns the bun handle used for Find.
func (d *DB) ReadDB() *bun.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read
}

func resolveDBPath(baseDir, fileName string) (string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(baseDir, fileName), nil
}

func openSQLite(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path)
}

func configureSQLitePool(sqldb *sql.DB, maxOpenConns int) {
	if maxOpenConns <= 0 {
		maxOpenConns = 1
	}
	sqldb.SetMaxOpenConns(maxOpenConns)
	sqldb.SetMaxIdleConns(maxOpenConns)
	sqldb.SetConnMaxLifetime(0)
}

type sqliteExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applySQLitePragmas(ctx context.Context, execer sqliteExecer, cfg sqliteConfig) error {
	if cfg.BusyTimeoutMs > 0 {
		_, _ = execer.ExecContext(ctx, `PRAGMA busy_timeout = `+strconv.Itoa(cfg.BusyTimeoutMs)+`;`)
	}
	if cfg.ForeignKeys {
		if _, err := execer.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
			return err
		}
	}
	return nil
}

func warmUpSQLitePool(ctx context.Context, sqldb *sql.DB, cfg sqliteConfig, connections int) error {
	for i := 0; i < connections; i++ {
		conn, err := sqldb.Conn(ctx)
		if err != nil {
			return err
		}
		if err := applySQLitePragmas(ctx, conn, cfg); err != nil {
			_ = conn.Close()
			return err
		}
		_ = conn.Close()
	}
	return nil
}

func runMigrations(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, err
	}
	return migrator.Migrate(ctx)
}

// Open creates (or reopens, idempotently within a process) the sqlite pool
// at baseDir/fileName and runs pending migrations against the write handle.
func Open(ctx context.Context, log *slog.Logger, baseDir, fileName string) (*DB, error) {
	path, err := resolveDBPath(baseDir, fileName)
	if err != nil {
		return nil, err
	}

	writeSQL, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	configureSQLitePool(writeSQL, defaultMaxWriteConns)

	readSQL, err := openSQLite(path)
	if err != nil {
		_ = writeSQL.Close()
		return nil, err
	}
	configureSQLitePool(readSQL, defaultMaxReadConns)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := writeSQL.PingContext(pingCtx); err != nil {
		_ = writeSQL.Close()
		_ = readSQL.Close()
		return nil, err
	}
	if err := readSQL.PingContext(pingCtx); err != nil {
		_ = writeSQL.Close()
		_ = readSQL.Close()
		return nil, err
	}

	cfg := defaultSQLiteConfig()
	if err := applySQLitePragmas(pingCtx, writeSQL, cfg); err != nil {
		_ = writeSQL.Close()
		_ = readSQL.Close()
		return nil, err
	}
	if err := applySQLitePragmas(pingCtx, readSQL, cfg); err != nil {
		_ = writeSQL.Close()
		_ = readSQL.Close()
		return nil, err
	}
	if err := warmUpSQLitePool(pingCtx, writeSQL, cfg, defaultMaxWriteConns); err != nil {
		_ = writeSQL.Close()
		_ = readSQL.Close()
		return nil, err
	}
	if err := warmUpSQLitePool(pingCtx, readSQL, cfg, defaultMaxReadConns); err != nil {
		_ = writeSQL.Close()
		_ = readSQL.Close()
		return nil, err
	}

	writeBun := bun.NewDB(writeSQL, sqlitedialect.New())
	readBun := bun.NewDB(readSQL, sqlitedialect.New())

	group, err := runMigrations(pingCtx, writeBun)
	if err != nil {
		_ = writeBun.Close()
		_ = readBun.Close()
		return nil, err
	}

	if log != nil {
		if group != nil && !group.IsZero() {
			log.Info("settings store migrated", "path", path, "group", group.String())
		} else {
			log.Debug("settings store migration up-to-date", "path", path)
		}
	}

	return &DB{sqlWrite: writeSQL, sqlRead: readSQL, write: writeBun, read: readBun, path: path}, nil
}

// Close releases both pool handles.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.write == nil {
		return nil
	}
	errWrite := d.write.Close()
	var errRead error
	if d.read != nil {
		errRead = d.read.Close()
	}
	d.write, d.read, d.sqlWrite, d.sqlRead = nil, nil, nil, nil

	if errWrite != nil && !errors.Is(errWrite, sql.ErrConnDone) {
		return errWrite
	}
	if errRead != nil && !errors.Is(errRead, sql.ErrConnDone) {
		return errRead
	}
	return nil
}
