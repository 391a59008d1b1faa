package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginalia/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testAnnotation(id string, page int) *domain.Annotation {
	return &domain.Annotation{
		ID:              id,
		PageNumber:      page,
		Title:           "alice",
		Type:            3,
		Subtype:         "highlight",
		PdfjsType:       20,
		PdfjsEditorType: 9,
		Date:            "2024-03-01T10:00:00Z",
		KonvaClientRect: domain.Rect{X: 10, Y: 20, Width: 100, Height: 40},
		ContentsObj:     domain.Contents{Text: "first note"},
		Resizable:       true,
	}
}

func commentCount(t *testing.T, repo *Repository, annotationID string) int {
	t.Helper()
	var n int
	err := repo.db.QueryRow(
		`SELECT COUNT(*) FROM comments WHERE annotationId = ?`, annotationID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	scope := domain.NewScope("doc-1", "alice")

	color := "#ff0000"
	fontSize := 14
	status := 1
	a := testAnnotation("ann-1", 2)
	a.Color = &color
	a.FontSize = &fontSize
	a.KonvaString = `{"attrs":{}}`
	a.Draggable = true
	a.Comments = []domain.Comment{
		{ID: "c-1", Title: "alice", Content: "looks wrong", Date: "2024-03-01T10:05:00Z", Status: &status},
	}

	require.NoError(t, repo.SaveAnnotation(ctx, scope, a))

	got, err := repo.GetAnnotation(ctx, scope, "ann-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a, got)
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := newTestRepo(t)
	scope := domain.NewScope("doc-1", "alice")

	got, err := repo.GetAnnotation(context.Background(), scope, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestScopeIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := domain.NewScope("doc-1", "alice")
	bob := domain.NewScope("doc-1", "bob")
	otherDoc := domain.NewScope("doc-2", "alice")

	require.NoError(t, repo.SaveAnnotation(ctx, alice, testAnnotation("ann-1", 1)))

	for _, scope := range []domain.Scope{bob, otherDoc} {
		got, err := repo.GetAnnotation(ctx, scope, "ann-1")
		require.NoError(t, err)
		assert.Nil(t, got)

		list, err := repo.ListAnnotations(ctx, scope, domain.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, list)
	}

	list, err := repo.ListAnnotations(ctx, alice, domain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSaveIsUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	scope := domain.NewScope("doc-1", "alice")

	require.NoError(t, repo.SaveAnnotation(ctx, scope, testAnnotation("ann-1", 1)))

	updated := testAnnotation("ann-1", 1)
	updated.ContentsObj.Text = "revised note"
	require.NoError(t, repo.SaveAnnotation(ctx, scope, updated))

	list, err := repo.ListAnnotations(ctx, scope, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "revised note", list[0].ContentsObj.Text)
}

func TestSaveReplacesCommentSet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	scope := domain.NewScope("doc-1", "alice")

	a := testAnnotation("ann-1", 1)
	a.Comments = []domain.Comment{
		{ID: "c-1", Title: "alice", Content: "one", Date: "2024-03-01T10:01:00Z"},
		{ID: "c-2", Title: "alice", Content: "two", Date: "2024-03-01T10:02:00Z"},
	}
	require.NoError(t, repo.SaveAnnotation(ctx, scope, a))

	a.Comments = []domain.Comment{
		{ID: "c-3", Title: "alice", Content: "three", Date: "2024-03-01T10:03:00Z"},
	}
	require.NoError(t, repo.SaveAnnotation(ctx, scope, a))

	got, err := repo.GetAnnotation(ctx, scope, "ann-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "c-3", got.Comments[0].ID)
}

func TestCommentsOrderedByDate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	scope := domain.NewScope("doc-1", "alice")

	a := testAnnotation("ann-1", 1)
	a.Comments = []domain.Comment{
		{ID: "c-late", Title: "alice", Content: "later", Date: "2024-03-02T00:00:00Z"},
		{ID: "c-early", Title: "alice", Content: "earlier", Date: "2024-03-01T00:00:00Z"},
	}
	require.NoError(t, repo.SaveAnnotation(ctx, scope, a))

	got, err := repo.GetAnnotation(ctx, scope, "ann-1")
	require.NoError(t, err)
	require.Len(t, got.Comments, 2)
	assert.Equal(t, "c-early", got.Comments[0].ID)
	assert.Equal(t, "c-late", got.Comments[1].ID)
}

func TestDeleteCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	scope := domain.NewScope("doc-1", "alice")

	a := testAnnotation("ann-1", 1)
	a.Comments = []domain.Comment{
		{ID: "c-1", Title: "alice", Content: "one", Date: "2024-03-01T10:01:00Z"},
	}
	require.NoError(t, repo.SaveAnnotation(ctx, scope, a))

	require.NoError(t, repo.DeleteAnnotation(ctx, scope, "ann-1"))

	got, err := repo.GetAnnotation(ctx, scope, "ann-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, commentCount(t, repo, "ann-1"))
}

func TestDeleteWrongScopeIsNoOp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := domain.NewScope("doc-1", "alice")
	bob := domain.NewScope("doc-1", "bob")

	a := testAnnotation("ann-1", 1)
	a.Comments = []domain.Comment{
		{ID: "c-1", Title: "alice", Content: "one", Date: "2024-03-01T10:01:00Z"},
	}
	require.NoError(t, repo.SaveAnnotation(ctx, alice, a))

	require.NoError(t, repo.DeleteAnnotation(ctx, bob, "ann-1"))

	got, err := repo.GetAnnotation(ctx, alice, "ann-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Comments, 1)
}

func TestPruneKeepsOnlyListedIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	scope := domain.NewScope("doc-1", "alice")
	other := domain.NewScope("doc-2", "alice")

	for _, id := range []string{"ann-1", "ann-2", "ann-3"} {
		require.NoError(t, repo.SaveAnnotation(ctx, scope, testAnnotation(id, 1)))
	}
	require.NoError(t, repo.SaveAnnotation(ctx, other, testAnnotation("ann-other", 1)))

	dropped := testAnnotation("ann-3", 1)
	dropped.Comments = []domain.Comment{
		{ID: "c-3", Title: "alice", Content: "gone", Date: "2024-03-01T10:01:00Z"},
	}
	require.NoError(t, repo.SaveAnnotation(ctx, scope, dropped))

	require.NoError(t, repo.PruneAnnotationsExcept(ctx, scope, []string{"ann-1", "ann-2"}))

	list, err := repo.ListAnnotations(ctx, scope, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 0, commentCount(t, repo, "ann-3"))

	otherList, err := repo.ListAnnotations(ctx, other, domain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, otherList, 1)
}

func TestPruneEmptyKeepSetEmptiesScope(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	scope := domain.NewScope("doc-1", "alice")
	other := domain.NewScope("doc-1", "bob")

	require.NoError(t, repo.SaveAnnotation(ctx, scope, testAnnotation("ann-1", 1)))
	require.NoError(t, repo.SaveAnnotation(ctx, scope, testAnnotation("ann-2", 2)))
	require.NoError(t, repo.SaveAnnotation(ctx, other, testAnnotation("ann-bob", 1)))

	require.NoError(t, repo.PruneAnnotationsExcept(ctx, scope, nil))

	list, err := repo.ListAnnotations(ctx, scope, domain.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	otherList, err := repo.ListAnnotations(ctx, other, domain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, otherList, 1)
}

func TestListOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	scope := domain.NewScope("doc-1", "alice")

	mk := func(id string, page int, date string) *domain.Annotation {
		a := testAnnotation(id, page)
		a.Date = date
		return a
	}
	require.NoError(t, repo.SaveAnnotation(ctx, scope, mk("p2-old", 2, "2024-03-01T00:00:00Z")))
	require.NoError(t, repo.SaveAnnotation(ctx, scope, mk("p1", 1, "2024-03-02T00:00:00Z")))
	require.NoError(t, repo.SaveAnnotation(ctx, scope, mk("p2-new", 2, "2024-03-03T00:00:00Z")))

	list, err := repo.ListAnnotations(ctx, scope, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)

	ids := []string{list[0].ID, list[1].ID, list[2].ID}
	assert.Equal(t, []string{"p1", "p2-new", "p2-old"}, ids)
}

func TestListFiltersCompose(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	scope := domain.NewScope("doc-1", "alice")

	a := testAnnotation("ann-1", 1)
	a.Title = "alice"
	a.Subtype = "highlight"
	require.NoError(t, repo.SaveAnnotation(ctx, scope, a))

	b := testAnnotation("ann-2", 1)
	b.Title = "bob"
	b.Subtype = "underline"
	b.Type = 5
	require.NoError(t, repo.SaveAnnotation(ctx, scope, b))

	c := testAnnotation("ann-3", 2)
	c.Title = "alice"
	require.NoError(t, repo.SaveAnnotation(ctx, scope, c))

	page := 1
	list, err := repo.ListAnnotations(ctx, scope, domain.ListFilter{PageNumber: &page, Author: "alice"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ann-1", list[0].ID)

	typ := 5
	list, err = repo.ListAnnotations(ctx, scope, domain.ListFilter{Type: &typ})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ann-2", list[0].ID)

	list, err = repo.ListAnnotations(ctx, scope, domain.ListFilter{Subtype: "underline", Author: "alice"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCommentLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	scope := domain.NewScope("doc-1", "alice")

	require.NoError(t, repo.SaveAnnotation(ctx, scope, testAnnotation("ann-1", 1)))

	c := &domain.Comment{ID: "c-1", Title: "alice", Content: "draft", Date: "2024-03-01T10:01:00Z"}
	require.NoError(t, repo.AddComment(ctx, "ann-1", c))

	status := 2
	c.Content = "final"
	c.Status = &status
	require.NoError(t, repo.UpdateComment(ctx, c))

	got, err := repo.GetAnnotation(ctx, scope, "ann-1")
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "final", got.Comments[0].Content)
	require.NotNil(t, got.Comments[0].Status)
	assert.Equal(t, 2, *got.Comments[0].Status)

	require.NoError(t, repo.DeleteComment(ctx, "c-1"))
	got, err = repo.GetAnnotation(ctx, scope, "ann-1")
	require.NoError(t, err)
	assert.Empty(t, got.Comments)

	// Unknown ids are silent no-ops.
	require.NoError(t, repo.UpdateComment(ctx, &domain.Comment{ID: "ghost"}))
	require.NoError(t, repo.DeleteComment(ctx, "ghost"))
}

func TestMigrateLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	// Seed a store in the pre-scope shape: no docId, username or
	// konvaString columns.
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE annotations (
			id TEXT PRIMARY KEY,
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
			contentsText TEXT,
			contentsImage TEXT,
			resizable INTEGER NOT NULL DEFAULT 0,
			draggable INTEGER NOT NULL DEFAULT 0
		)`)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO annotations
			(id, pageNumber, title, type, subtype, pdfjsType, pdfjsEditorType,
			 date, konvaClientRect, resizable, draggable)
		VALUES ('old-1', 4, 'alice', 3, 'highlight', 20, 9,
			'2023-11-01T00:00:00Z', '{"x":1,"y":2,"width":3,"height":4}', 1, 0)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := New(path)
	require.NoError(t, err)
	defer repo.Close()

	// Legacy rows land in the default scope after migration.
	got, err := repo.GetAnnotation(context.Background(), domain.NewScope("", ""), "old-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.PageNumber)
	assert.Equal(t, "", got.KonvaString)
	assert.True(t, got.Resizable)
}
