package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tmshv/reader/internal"
)

const linkColumns = `id, article_id, url, domain, title, is_collected, created_at`

func scanLink(row interface{ Scan(...any) error }) (internal.ArticleLink, error) {
	var l internal.ArticleLink
	err := row.Scan(
		&l.ID,
		&l.ArticleID,
		&l.Url,
		&l.Domain,
		&l.Title,
		&l.IsCollected,
		&l.CreatedAt,
	)
	return l, err
}

// UpsertArticleLinks attaches links to an article. A url the article already
// has is left untouched, collected flag included. Returns how many were new.
func (s *SqliteStore) UpsertArticleLinks(ctx context.Context, articleID int64, links []internal.ArticleLink) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &internal.PersistenceError{Op: "upsert article links", Cause: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR IGNORE INTO
        article_links(article_id, url, domain, title, is_collected, created_at)
        VALUES
        (?, ?, ?, ?, 0, ?)
    `)
	if err != nil {
		return 0, &internal.PersistenceError{Op: "upsert article links", Cause: err}
	}
	defer stmt.Close()

	now := s.now().UTC()
	inserted := 0
	for _, l := range links {
		res, err := stmt.ExecContext(ctx, articleID, l.Url, l.Domain, l.Title, now)
		if err != nil {
			return 0, &internal.PersistenceError{Op: "upsert article links", Cause: err}
		}
		x, err := res.RowsAffected()
		if err != nil {
			return 0, &internal.PersistenceError{Op: "upsert article links", Cause: err}
		}
		inserted += int(x)
	}

	if err := tx.Commit(); err != nil {
		return 0, &internal.PersistenceError{Op: "upsert article links", Cause: err}
	}
	return inserted, nil
}

func (s *SqliteStore) queryLinks(ctx context.Context, query string, args ...any) ([]internal.ArticleLink, error) {
	result := make([]internal.ArticleLink, 0)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// ListArticleLinks returns the newest links first.
func (s *SqliteStore) ListArticleLinks(ctx context.Context, articleID int64) ([]internal.ArticleLink, error) {
	return s.queryLinks(ctx, `
        SELECT `+linkColumns+`
        FROM article_links
        WHERE article_id = ?
        ORDER BY id DESC
        ;
    `, articleID)
}

func (s *SqliteStore) ListCollectedLinks(ctx context.Context) ([]internal.ArticleLink, error) {
	return s.queryLinks(ctx, `
        SELECT `+linkColumns+`
        FROM article_links
        WHERE is_collected = 1
        ORDER BY created_at DESC, id DESC
        ;
    `)
}

// GetArticleLink returns nil without error when no link has the id.
func (s *SqliteStore) GetArticleLink(ctx context.Context, linkID int64) (*internal.ArticleLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM article_links WHERE id = ?`, linkID)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// SetLinkCollected reports false when no link has the id.
func (s *SqliteStore) SetLinkCollected(ctx context.Context, linkID int64, collected bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE article_links SET is_collected = ? WHERE id = ?`, collected, linkID)
	if err != nil {
		return false, &internal.PersistenceError{Op: "set link collected", Cause: err}
	}
	x, err := res.RowsAffected()
	if err != nil {
		return false, &internal.PersistenceError{Op: "set link collected", Cause: err}
	}
	return x > 0, nil
}

// DeleteArticleLink reports false when no link has the id.
func (s *SqliteStore) DeleteArticleLink(ctx context.Context, linkID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM article_links WHERE id = ?`, linkID)
	if err != nil {
		return false, &internal.PersistenceError{Op: "delete link", Cause: err}
	}
	x, err := res.RowsAffected()
	if err != nil {
		return false, &internal.PersistenceError{Op: "delete link", Cause: err}
	}
	return x > 0, nil
}
