package migrate

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/emiliopalmerini/mvariant/internal/ports"
	"github.com/emiliopalmerini/mvariant/migrations"
)

// Migration represents a single database migration with up and down SQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Runner applies embedded migrations to a database.
type Runner struct {
	db     *sql.DB
	fsys   fs.FS
	logger ports.Logger
}

func NewRunner(db *sql.DB, logger ports.Logger) *Runner {
	return &Runner{db: db, fsys: migrations.FS, logger: logger}
}

// EnsureMigrationsTable creates the schema_migrations table if it doesn't exist.
func (r *Runner) EnsureMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// CurrentVersion returns the current migration version and dirty state.
func (r *Runner) CurrentVersion(ctx context.Context) (int, bool, error) {
	var version int
	var dirty int

	err := r.db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return version, dirty == 1, nil
}

func (r *Runner) setVersion(ctx context.Context, version int, dirty bool) error {
	dirtyInt := 0
	if dirty {
		dirtyInt = 1
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		return err
	}
	if version == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirtyInt)
	return err
}

var upPattern = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// Load reads all embedded migration files sorted by version.
func (r *Runner) Load() ([]Migration, error) {
	var result []Migration

	err := fs.WalkDir(r.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		matches := upPattern.FindStringSubmatch(filepath.Base(path))
		if matches == nil {
			return nil
		}

		version, _ := strconv.Atoi(matches[1])
		name := matches[2]

		upSQL, err := fs.ReadFile(r.fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		// A missing down file leaves DownSQL empty.
		downSQL, _ := fs.ReadFile(r.fsys, fmt.Sprintf("%03d_%s.down.sql", version, name))

		result = append(result, Migration{
			Version: version,
			Name:    name,
			UpSQL:   string(upSQL),
			DownSQL: string(downSQL),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})
	return result, nil
}

func (r *Runner) run(ctx context.Context, m Migration, up bool) error {
	direction := "up"
	sqlContent := m.UpSQL
	targetVersion := m.Version
	if !up {
		direction = "down"
		sqlContent = m.DownSQL
		targetVersion = m.Version - 1
	}

	r.logger.Info("applying migration", "direction", direction, "version", m.Version, "name", m.Name)

	if err := r.setVersion(ctx, m.Version, true); err != nil {
		return fmt.Errorf("failed to set dirty flag: %w", err)
	}

	for _, stmt := range SplitSQL(sqlContent) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration %d %s: %w\nSQL: %s", m.Version, direction, err, stmt)
		}
	}

	if err := r.setVersion(ctx, targetVersion, false); err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}
	return nil
}

// SplitSQL drops "--" comment lines and splits the rest by semicolons.
func SplitSQL(content string) []string {
	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Up runs every pending migration, or those up to target when target > 0.
// It returns the number of migrations applied.
func (r *Runner) Up(ctx context.Context, target int) (int, error) {
	all, current, err := r.prepare(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range all {
		if m.Version <= current {
			continue
		}
		if target > 0 && m.Version > target {
			break
		}
		if err := r.run(ctx, m, true); err != nil {
			return count, err
		}
		count++
	}

	if count == 0 {
		r.logger.Info("no migrations to run", "version", current)
	}
	return count, nil
}

// DownTo reverts migrations above target.
func (r *Runner) DownTo(ctx context.Context, target int) error {
	all, current, err := r.prepare(ctx)
	if err != nil {
		return err
	}

	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		if m.Version > current {
			continue
		}
		if m.Version <= target {
			break
		}
		if m.DownSQL == "" {
			return fmt.Errorf("no down migration for version %d", m.Version)
		}
		if err := r.run(ctx, m, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) prepare(ctx context.Context) ([]Migration, int, error) {
	if err := r.EnsureMigrationsTable(ctx); err != nil {
		return nil, 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, dirty, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get current version: %w", err)
	}
	if dirty {
		return nil, 0, fmt.Errorf("database is in dirty state at version %d", current)
	}

	all, err := r.Load()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load migrations: %w", err)
	}
	return all, current, nil
}

// RunAll runs all pending migrations on the provided database.
func RunAll(ctx context.Context, db *sql.DB, logger ports.Logger) error {
	_, err := NewRunner(db, logger).Up(ctx, 0)
	return err
}
