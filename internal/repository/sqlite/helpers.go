package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"marginalia/internal/domain"
)

// commentColumns is the SELECT column list for comment queries.
const commentColumns = `id, annotationId, title, content, date, status`

// commentRow is the flat persisted form of a comment.
type commentRow struct {
	ID           string
	AnnotationID string
	Title        string
	Content      string
	Date         string
	Status       sql.NullInt64
}

func (r *commentRow) scanArgs() []any {
	return []any{&r.ID, &r.AnnotationID, &r.Title, &r.Content, &r.Date, &r.Status}
}

func (r *commentRow) toDomain() domain.Comment {
	var status *int
	if r.Status.Valid {
		s := int(r.Status.Int64)
		status = &s
	}
	return domain.Comment{
		ID:      r.ID,
		Title:   r.Title,
		Content: r.Content,
		Date:    r.Date,
		Status:  status,
	}
}

func commentInsertArgs(annotationID string, c *domain.Comment) []any {
	var status sql.NullInt64
	if c.Status != nil {
		status = sql.NullInt64{Int64: int64(*c.Status), Valid: true}
	}
	return []any{c.ID, annotationID, c.Title, c.Content, c.Date, status}
}

// predicate is one WHERE conjunct with its bound argument.
type predicate struct {
	expr string
	arg  any
}

// buildWhere renders predicates into a WHERE clause and its argument list.
// Conjuncts are ANDed; an empty slice yields an empty clause.
func buildWhere(preds []predicate) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}
	exprs := make([]string, len(preds))
	args := make([]any, len(preds))
	for i, p := range preds {
		exprs[i] = p.expr
		args[i] = p.arg
	}
	return "WHERE " + strings.Join(exprs, " AND "), args
}

// placeholders returns n comma-separated ? markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// tableColumns returns the set of column names currently on a table.
func (r *Repository) tableColumns(table string) (map[string]bool, error) {
	rows, err := r.db.Query(`PRAGMA table_info(` + table + `)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// commentsFor fetches an annotation's comment thread in chronological order.
func (r *Repository) commentsFor(ctx context.Context, annotationID string) ([]domain.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE annotationId = ? ORDER BY date ASC`,
		annotationID)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorage, "query comments for %s: %v", annotationID, err)
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		var row commentRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, errors.Wrapf(domain.ErrStorage, "scan comment: %v", err)
		}
		comments = append(comments, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(domain.ErrStorage, "iterate comments: %v", err)
	}
	return comments, nil
}
