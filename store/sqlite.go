package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tmshv/reader/internal"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite's default limit on bound parameters is 999.
const deleteBatchSize = 500

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type SqliteStore struct {
	logger *slog.Logger
	db     *sql.DB
	now    func() time.Time
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) initPragmas() error {
	// busy_timeout must come first so the connection blocks on busy before
	// switching to WAL.
	_, err := s.db.Exec(`
        PRAGMA busy_timeout       = 10000;
        PRAGMA journal_mode       = WAL;
        PRAGMA synchronous        = NORMAL;
        PRAGMA foreign_keys       = TRUE;
    `)
	return err
}

// setup migrates the schema from migrationsPath, or from the embedded
// migrations when the path is empty.
func (s *SqliteStore) setup(migrationsPath string) error {
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{
		MigrationsTable: "migrations",
	})
	if err != nil {
		return err
	}

	var m *migrate.Migrate
	if migrationsPath != "" {
		sourceUrl := fmt.Sprintf("file://%s", migrationsPath)
		m, err = migrate.NewWithDatabaseInstance(sourceUrl, "sqlite3", driver)
	} else {
		src, srcErr := iofs.New(migrations, "migrations")
		if srcErr != nil {
			return srcErr
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	}
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("nothing to migrate")
			return nil
		}
		return err
	}

	s.logger.Info("successfully migrated to the latest version")
	return nil
}

func (s *SqliteStore) CreateArticle(ctx context.Context, article internal.Article) (internal.CreateResult, error) {
	return s.createArticle(ctx, s.db, article)
}

func (s *SqliteStore) createArticle(ctx context.Context, db execer, article internal.Article) (internal.CreateResult, error) {
	publishDate, ok := internal.NormalizeDate(article.PublishDate)
	if !ok {
		return internal.CreateResult{}, internal.NewValidationError("publish_date", fmt.Sprintf("unparseable date %q", article.PublishDate))
	}
	origin := article.SyncOrigin
	if origin == "" {
		origin = internal.OriginManual
	}

	res, err := db.ExecContext(ctx, `
        INSERT OR IGNORE INTO
        articles(title, url, publish_date, source, sync_origin, is_read, is_starred, created_at)
        VALUES
        (?, ?, ?, ?, ?, 0, 0, ?)
    `, article.Title, article.Url, publishDate, article.Source, origin, s.now().UTC())
	if err != nil {
		return internal.CreateResult{}, &internal.PersistenceError{Op: "create article", Cause: err}
	}

	changes, err := res.RowsAffected()
	if err != nil {
		return internal.CreateResult{}, &internal.PersistenceError{Op: "create article", Cause: err}
	}
	result := internal.CreateResult{Changes: changes}
	if changes == 1 {
		result.LastID, err = res.LastInsertId()
		if err != nil {
			return internal.CreateResult{}, &internal.PersistenceError{Op: "create article", Cause: err}
		}
	}
	return result, nil
}

// ImportArticles inserts a manual batch atomically. Every entry must carry
// title, url, publish_date and source.
func (s *SqliteStore) ImportArticles(ctx context.Context, articles []internal.Article) (internal.ImportResult, error) {
	for i, a := range articles {
		if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.Url) == "" ||
			strings.TrimSpace(a.PublishDate) == "" || strings.TrimSpace(a.Source) == "" {
			return internal.ImportResult{}, internal.NewValidationError(
				fmt.Sprintf("articles[%d]", i),
				"missing required field (title/url/publish_date/source)",
			)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internal.ImportResult{}, &internal.PersistenceError{Op: "import articles", Cause: err}
	}
	defer tx.Rollback()

	var result internal.ImportResult
	for _, a := range articles {
		if a.SyncOrigin == "" {
			a.SyncOrigin = internal.OriginManual
		}
		res, err := s.createArticle(ctx, tx, a)
		if err != nil {
			return internal.ImportResult{}, err
		}
		if res.Changes == 1 {
			result.Inserted++
		} else {
			result.Ignored++
		}
	}

	if err := tx.Commit(); err != nil {
		return internal.ImportResult{}, &internal.PersistenceError{Op: "import articles", Cause: err}
	}
	return result, nil
}

const articleColumns = `id, title, url, publish_date, source, sync_origin, is_read, is_starred, created_at,
    (SELECT COUNT(*) FROM article_links l WHERE l.article_id = articles.id) AS link_count`

func scanArticle(row interface{ Scan(...any) error }) (internal.Article, error) {
	var a internal.Article
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Url,
		&a.PublishDate,
		&a.Source,
		&a.SyncOrigin,
		&a.IsRead,
		&a.IsStarred,
		&a.CreatedAt,
		&a.LinkCount,
	)
	return a, err
}

func (s *SqliteStore) getArticle(ctx context.Context, where string, arg any) (*internal.Article, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+articleColumns+`
        FROM articles
        WHERE `+where+`
        LIMIT 1
        ;
    `, arg)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetArticleByUrl returns nil without error when no row has the url.
func (s *SqliteStore) GetArticleByUrl(ctx context.Context, url string) (*internal.Article, error) {
	return s.getArticle(ctx, "url = ?", url)
}

func (s *SqliteStore) GetArticleByID(ctx context.Context, id int64) (*internal.Article, error) {
	return s.getArticle(ctx, "id = ?", id)
}

func (s *SqliteStore) ListArticles(ctx context.Context, filter internal.ArticleFilter) ([]internal.Article, error) {
	result := make([]internal.Article, 0)

	where := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.SyncOrigin != "" {
		where = append(where, "sync_origin = ?")
		args = append(args, filter.SyncOrigin)
	}
	query := `SELECT ` + articleColumns + ` FROM articles`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY publish_date DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	return result, rows.Err()
}

func (s *SqliteStore) MarkSyncOrigin(ctx context.Context, id int64, origin string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE articles SET sync_origin = ? WHERE id = ?`, origin, id)
	if err != nil {
		return &internal.PersistenceError{Op: "mark sync origin", Cause: err}
	}
	return nil
}

func (s *SqliteStore) updateFlag(ctx context.Context, column string, id int64, value bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE articles SET `+column+` = ? WHERE id = ?`, value, id)
	if err != nil {
		return false, &internal.PersistenceError{Op: "update " + column, Cause: err}
	}
	x, err := res.RowsAffected()
	if err != nil {
		return false, &internal.PersistenceError{Op: "update " + column, Cause: err}
	}
	if x == 0 {
		s.logger.Debug("article flag not updated", "id", id, "column", column)
	}
	return x > 0, nil
}

// UpdateReadStatus reports false when no article has the id.
func (s *SqliteStore) UpdateReadStatus(ctx context.Context, id int64, isRead bool) (bool, error) {
	return s.updateFlag(ctx, "is_read", id, isRead)
}

// UpdateStarStatus reports false when no article has the id.
func (s *SqliteStore) UpdateStarStatus(ctx context.Context, id int64, isStarred bool) (bool, error) {
	return s.updateFlag(ctx, "is_starred", id, isStarred)
}

func (s *SqliteStore) ListArticleIDsBySourceOrigin(ctx context.Context, source string, origin string) ([]internal.ArticleRef, error) {
	result := make([]internal.ArticleRef, 0)
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, url
        FROM articles
        WHERE source = ? AND sync_origin = ?
        ;
    `, source, origin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ref internal.ArticleRef
		if err := rows.Scan(&ref.ID, &ref.Url); err != nil {
			return nil, err
		}
		result = append(result, ref)
	}

	return result, rows.Err()
}

func (s *SqliteStore) DeleteArticlesByIDs(ctx context.Context, ids []int64) (int64, error) {
	var deleted int64
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(batch)), ", ")

		res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return deleted, &internal.PersistenceError{Op: "delete articles", Cause: err}
		}
		x, err := res.RowsAffected()
		if err != nil {
			return deleted, &internal.PersistenceError{Op: "delete articles", Cause: err}
		}
		deleted += x
	}
	return deleted, nil
}

// CleanupDuplicatesByTitleDate collapses rows sharing title and publish_date
// into the one with the smallest id.
func (s *SqliteStore) CleanupDuplicatesByTitleDate(ctx context.Context) (internal.CleanupResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internal.CleanupResult{}, &internal.PersistenceError{Op: "cleanup duplicates", Cause: err}
	}
	defer tx.Rollback()

	const duplicates = `
        FROM articles
        WHERE id NOT IN (
            SELECT MIN(id)
            FROM articles
            GROUP BY title, publish_date
        )
    `
	var result internal.CleanupResult
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) `+duplicates).Scan(&result.DuplicateCandidates)
	if err != nil {
		return internal.CleanupResult{}, &internal.PersistenceError{Op: "cleanup duplicates", Cause: err}
	}
	res, err := tx.ExecContext(ctx, `DELETE `+duplicates)
	if err != nil {
		return internal.CleanupResult{}, &internal.PersistenceError{Op: "cleanup duplicates", Cause: err}
	}
	result.Deleted, err = res.RowsAffected()
	if err != nil {
		return internal.CleanupResult{}, &internal.PersistenceError{Op: "cleanup duplicates", Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return internal.CleanupResult{}, &internal.PersistenceError{Op: "cleanup duplicates", Cause: err}
	}
	return result, nil
}

func (s *SqliteStore) GetStats(ctx context.Context) (internal.Stats, error) {
	var stats internal.Stats
	today := internal.DateOnly(s.now())
	err := s.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN is_read = 1 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN publish_date = ? AND is_read = 0 THEN 1 ELSE 0 END), 0)
        FROM articles
        ;
    `, today).Scan(&stats.TotalArticles, &stats.ReadArticles, &stats.UnreadToday)
	if err != nil {
		return internal.Stats{}, err
	}
	if stats.TotalArticles > 0 {
		rate := float64(stats.ReadArticles) / float64(stats.TotalArticles) * 100
		stats.CompletionRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

func NewSqliteStore(dbpath string, migrationsPath string, logger *slog.Logger) (*SqliteStore, error) {
	if dir := filepath.Dir(dbpath); dbpath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbpath)
	if err != nil {
		return nil, err
	}
	// single writer; the pragmas below are per connection
	db.SetMaxOpenConns(1)

	store := SqliteStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    time.Now,
	}

	if err := store.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init pragmas: %w", err)
	}
	if err := store.setup(migrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbpath, err)
	}

	return &store, nil
}
