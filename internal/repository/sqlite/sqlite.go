package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"marginalia/internal/codec"
	"marginalia/internal/domain"
)

// emptyKeepSentinel stands in for an empty keep-set during a prune. No
// client-generated id can collide with it, so NOT IN (sentinel) matches
// every row in scope and the prune empties the scope.
const emptyKeepSentinel = "__EMPTY__"

// Repository implements repository.Repository using SQLite.
type Repository struct {
	db *sql.DB
}

// New creates a SQLite repository, opening the database at dbPath and
// migrating the schema. Use ":memory:" for an ephemeral store.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite",
		dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorage, "open database: %v", err)
	}

	// An in-memory database exists per connection; pin the pool to one so
	// every statement sees the same store.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrapf(domain.ErrStorage, "migrate: %v", err)
	}
	return repo, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the schema if missing and upgrades stores written by
// older releases: columns added after the first schema get backfilled with
// defaults, then the listing indexes are ensured.
func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS annotations (
		id TEXT PRIMARY KEY,
		docId TEXT NOT NULL DEFAULT 'default',
		username TEXT NOT NULL DEFAULT 'unknown',
		pageNumber INTEGER NOT NULL,
		title TEXT NOT NULL,
		type INTEGER NOT NULL,
		color TEXT,
		subtype TEXT NOT NULL,
		fontSize INTEGER,
		pdfjsType INTEGER NOT NULL,
		pdfjsEditorType INTEGER NOT NULL,
		date TEXT NOT NULL,
		konvaClientRect TEXT NOT NULL,
		konvaString TEXT,
		contentsText TEXT,
		contentsImage TEXT,
		resizable INTEGER NOT NULL DEFAULT 0,
		draggable INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		annotationId TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		date TEXT NOT NULL,
		status INTEGER,
		FOREIGN KEY (annotationId) REFERENCES annotations(id) ON DELETE CASCADE
	);`

	if _, err := r.db.Exec(schema); err != nil {
		return err
	}

	cols, err := r.tableColumns("annotations")
	if err != nil {
		return err
	}
	additions := []struct {
		name string
		ddl  string
	}{
		{"konvaString", `ALTER TABLE annotations ADD COLUMN konvaString TEXT`},
		{"docId", `ALTER TABLE annotations ADD COLUMN docId TEXT NOT NULL DEFAULT 'default'`},
		{"username", `ALTER TABLE annotations ADD COLUMN username TEXT NOT NULL DEFAULT 'unknown'`},
	}
	for _, add := range additions {
		if cols[add.name] {
			continue
		}
		if _, err := r.db.Exec(add.ddl); err != nil {
			return err
		}
	}

	indexes := `
	CREATE INDEX IF NOT EXISTS idx_annotations_doc_user_page
		ON annotations(docId, username, pageNumber);
	CREATE INDEX IF NOT EXISTS idx_annotations_doc_user_title
		ON annotations(docId, username, title);
	CREATE INDEX IF NOT EXISTS idx_comments_annotation
		ON comments(annotationId);`

	_, err = r.db.Exec(indexes)
	return err
}

// SaveAnnotation upserts the annotation under the scope. The annotation's
// comment list is authoritative: the stored comment set is replaced in the
// same transaction.
func (r *Repository) SaveAnnotation(ctx context.Context, scope domain.Scope, a *domain.Annotation) error {
	row := codec.Serialize(scope, a)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(domain.ErrStorage, "begin save: %v", err)
	}
	defer tx.Rollback()

	upsert := `INSERT OR REPLACE INTO annotations (` + codec.Columns + `)
		VALUES (` + placeholders(18) + `)`
	if _, err := tx.ExecContext(ctx, upsert, row.InsertArgs()...); err != nil {
		return errors.Wrapf(domain.ErrStorage, "upsert annotation %s: %v", a.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE annotationId = ?`, a.ID); err != nil {
		return errors.Wrapf(domain.ErrStorage, "clear comments for %s: %v", a.ID, err)
	}

	if len(a.Comments) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO comments (`+commentColumns+`) VALUES (`+placeholders(6)+`)`)
		if err != nil {
			return errors.Wrapf(domain.ErrStorage, "prepare comment insert: %v", err)
		}
		defer stmt.Close()

		for i := range a.Comments {
			if _, err := stmt.ExecContext(ctx, commentInsertArgs(a.ID, &a.Comments[i])...); err != nil {
				return errors.Wrapf(domain.ErrStorage, "insert comment %s: %v", a.Comments[i].ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(domain.ErrStorage, "commit save: %v", err)
	}
	return nil
}

// GetAnnotation returns the annotation with its comment thread, or
// (nil, nil) when no row matches the (id, scope) pair.
func (r *Repository) GetAnnotation(ctx context.Context, scope domain.Scope, id string) (*domain.Annotation, error) {
	var row codec.Row
	err := r.db.QueryRowContext(ctx,
		`SELECT `+codec.Columns+` FROM annotations WHERE id = ? AND docId = ? AND username = ?`,
		id, scope.DocID, scope.Username).Scan(row.ScanArgs()...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorage, "query annotation %s: %v", id, err)
	}

	comments, err := r.commentsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return codec.Deserialize(row, comments)
}

// ListAnnotations returns every annotation in scope matching the filter,
// ordered by page then by date descending within each page. Filter fields
// compose conjunctively; the author filter matches the title column.
func (r *Repository) ListAnnotations(ctx context.Context, scope domain.Scope, filter domain.ListFilter) ([]*domain.Annotation, error) {
	preds := []predicate{
		{"docId = ?", scope.DocID},
		{"username = ?", scope.Username},
	}
	if filter.PageNumber != nil {
		preds = append(preds, predicate{"pageNumber = ?", *filter.PageNumber})
	}
	if filter.Author != "" {
		preds = append(preds, predicate{"title = ?", filter.Author})
	}
	if filter.Type != nil {
		preds = append(preds, predicate{"type = ?", *filter.Type})
	}
	if filter.Subtype != "" {
		preds = append(preds, predicate{"subtype = ?", filter.Subtype})
	}

	where, args := buildWhere(preds)
	query := `SELECT ` + codec.Columns + ` FROM annotations ` + where +
		` ORDER BY pageNumber ASC, date DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorage, "query annotations: %v", err)
	}
	defer rows.Close()

	// Drain the result set before fetching comments so the pool's single
	// in-memory connection is free for the follow-up queries.
	var flat []codec.Row
	for rows.Next() {
		var row codec.Row
		if err := rows.Scan(row.ScanArgs()...); err != nil {
			return nil, errors.Wrapf(domain.ErrStorage, "scan annotation: %v", err)
		}
		flat = append(flat, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(domain.ErrStorage, "iterate annotations: %v", err)
	}
	rows.Close()

	annotations := make([]*domain.Annotation, 0, len(flat))
	for _, row := range flat {
		comments, err := r.commentsFor(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		a, err := codec.Deserialize(row, comments)
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, a)
	}
	return annotations, nil
}

// DeleteAnnotation removes the annotation and its comments in one
// transaction, comments first. A scope mismatch or unknown id deletes
// nothing and returns nil.
func (r *Repository) DeleteAnnotation(ctx context.Context, scope domain.Scope, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(domain.ErrStorage, "begin delete: %v", err)
	}
	defer tx.Rollback()

	// The subquery confines the cascade to the scoped row, so a mismatched
	// scope cannot strip another owner's comments.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE annotationId IN
			(SELECT id FROM annotations WHERE id = ? AND docId = ? AND username = ?)`,
		id, scope.DocID, scope.Username); err != nil {
		return errors.Wrapf(domain.ErrStorage, "delete comments for %s: %v", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM annotations WHERE id = ? AND docId = ? AND username = ?`,
		id, scope.DocID, scope.Username); err != nil {
		return errors.Wrapf(domain.ErrStorage, "delete annotation %s: %v", id, err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(domain.ErrStorage, "commit delete: %v", err)
	}
	return nil
}

// PruneAnnotationsExcept deletes every annotation in scope whose id is not
// in keepIDs, cascading to comments. An empty keep-set empties the scope.
// Other scopes are untouched.
func (r *Repository) PruneAnnotationsExcept(ctx context.Context, scope domain.Scope, keepIDs []string) error {
	ids := keepIDs
	if len(ids) == 0 {
		ids = []string{emptyKeepSentinel}
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, scope.DocID, scope.Username)
	for _, id := range ids {
		args = append(args, id)
	}
	notIn := `docId = ? AND username = ? AND id NOT IN (` + placeholders(len(ids)) + `)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(domain.ErrStorage, "begin prune: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE annotationId IN
			(SELECT id FROM annotations WHERE `+notIn+`)`, args...); err != nil {
		return errors.Wrapf(domain.ErrStorage, "prune comments: %v", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM annotations WHERE `+notIn, args...); err != nil {
		return errors.Wrapf(domain.ErrStorage, "prune annotations: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(domain.ErrStorage, "commit prune: %v", err)
	}
	return nil
}

// AddComment attaches a comment to an annotation, replacing any existing
// comment with the same id.
func (r *Repository) AddComment(ctx context.Context, annotationID string, c *domain.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO comments (`+commentColumns+`) VALUES (`+placeholders(6)+`)`,
		commentInsertArgs(annotationID, c)...)
	if err != nil {
		return errors.Wrapf(domain.ErrStorage, "add comment %s: %v", c.ID, err)
	}
	return nil
}

// UpdateComment rewrites a comment's mutable fields in place. An unknown
// id is a silent no-op.
func (r *Repository) UpdateComment(ctx context.Context, c *domain.Comment) error {
	var status sql.NullInt64
	if c.Status != nil {
		status = sql.NullInt64{Int64: int64(*c.Status), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE comments SET title = ?, content = ?, date = ?, status = ? WHERE id = ?`,
		c.Title, c.Content, c.Date, status, c.ID)
	if err != nil {
		return errors.Wrapf(domain.ErrStorage, "update comment %s: %v", c.ID, err)
	}
	return nil
}

// DeleteComment removes a single comment by id. An unknown id is a silent
// no-op.
func (r *Repository) DeleteComment(ctx context.Context, commentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, commentID)
	if err != nil {
		return errors.Wrapf(domain.ErrStorage, "delete comment %s: %v", commentID, err)
	}
	return nil
}
