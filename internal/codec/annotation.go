package codec

import (
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"marginalia/internal/domain"
)

// Columns is the SELECT column list for annotation queries.
//
// CRITICAL: column order must match between Columns, ScanArgs and
// InsertArgs. Append new columns at the end and migrate in sqlite.go.
const Columns = `id, docId, username, pageNumber, title, type, color, subtype,
	fontSize, pdfjsType, pdfjsEditorType, date, konvaClientRect, konvaString,
	contentsText, contentsImage, resizable, draggable`

// Row is the flat persisted form of an annotation: one record with the
// owning scope stamped on, nested structures encoded to text and booleans
// coerced to 0/1 integers.
type Row struct {
	ID              string
	DocID           string
	Username        string
	PageNumber      int64
	Title           string
	Type            int64
	Color           sql.NullString
	Subtype         string
	FontSize        sql.NullInt64
	PdfjsType       int64
	PdfjsEditorType int64
	Date            string
	KonvaClientRect string
	KonvaString     sql.NullString
	ContentsText    sql.NullString
	ContentsImage   sql.NullString
	Resizable       int64
	Draggable       int64
}

// ScanArgs returns pointers to all fields for sql.Scan, in Columns order.
func (r *Row) ScanArgs() []any {
	return []any{
		&r.ID,              // 1
		&r.DocID,           // 2
		&r.Username,        // 3
		&r.PageNumber,      // 4
		&r.Title,           // 5
		&r.Type,            // 6
		&r.Color,           // 7
		&r.Subtype,         // 8
		&r.FontSize,        // 9
		&r.PdfjsType,       // 10
		&r.PdfjsEditorType, // 11
		&r.Date,            // 12
		&r.KonvaClientRect, // 13
		&r.KonvaString,     // 14
		&r.ContentsText,    // 15
		&r.ContentsImage,   // 16
		&r.Resizable,       // 17
		&r.Draggable,       // 18
	}
}

// InsertArgs returns values for INSERT/UPSERT, in Columns order.
func (r *Row) InsertArgs() []any {
	return []any{
		r.ID, r.DocID, r.Username, r.PageNumber, r.Title, r.Type, r.Color,
		r.Subtype, r.FontSize, r.PdfjsType, r.PdfjsEditorType, r.Date,
		r.KonvaClientRect, r.KonvaString, r.ContentsText, r.ContentsImage,
		r.Resizable, r.Draggable,
	}
}

// Serialize maps an annotation to its flat row form under the given scope.
// Contents text defaults to empty, absent nullable fields to SQL NULL, the
// rectangle is JSON-encoded and flags become 0/1. Pure; never fails for a
// well-typed annotation.
func Serialize(scope domain.Scope, a *domain.Annotation) Row {
	rect, _ := json.Marshal(a.KonvaClientRect)

	return Row{
		ID:              a.ID,
		DocID:           scope.DocID,
		Username:        scope.Username,
		PageNumber:      int64(a.PageNumber),
		Title:           a.Title,
		Type:            int64(a.Type),
		Color:           stringPtrToNull(a.Color),
		Subtype:         a.Subtype,
		FontSize:        intPtrToNull(a.FontSize),
		PdfjsType:       int64(a.PdfjsType),
		PdfjsEditorType: int64(a.PdfjsEditorType),
		Date:            a.Date,
		KonvaClientRect: string(rect),
		KonvaString:     stringToNull(a.KonvaString),
		ContentsText:    sql.NullString{String: a.ContentsObj.Text, Valid: true},
		ContentsImage:   stringPtrToNull(a.ContentsObj.Image),
		Resizable:       boolToInt(a.Resizable),
		Draggable:       boolToInt(a.Draggable),
	}
}

// Deserialize is the inverse of Serialize. Comments are attached as
// supplied; the repository fetches them separately. Returns ErrDecode when
// the stored rectangle text is not valid encoded structure.
func Deserialize(r Row, comments []domain.Comment) (*domain.Annotation, error) {
	var rect domain.Rect
	if err := json.Unmarshal([]byte(r.KonvaClientRect), &rect); err != nil {
		return nil, errors.Wrapf(domain.ErrDecode, "konvaClientRect for %s: %v", r.ID, err)
	}

	return &domain.Annotation{
		ID:              r.ID,
		PageNumber:      int(r.PageNumber),
		Title:           r.Title,
		Type:            int(r.Type),
		Color:           nullToStringPtr(r.Color),
		Subtype:         r.Subtype,
		FontSize:        nullToIntPtr(r.FontSize),
		PdfjsType:       int(r.PdfjsType),
		PdfjsEditorType: int(r.PdfjsEditorType),
		Date:            r.Date,
		KonvaClientRect: rect,
		KonvaString:     nullToString(r.KonvaString),
		ContentsObj: domain.Contents{
			Text:  nullToString(r.ContentsText),
			Image: nullToStringPtr(r.ContentsImage),
		},
		Comments:  comments,
		Resizable: r.Resizable != 0,
		Draggable: r.Draggable != 0,
	}, nil
}

// stringToNull converts string to sql.NullString, mapping "" to NULL
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullToString converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringPtrToNull converts *string to sql.NullString
func stringPtrToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullToStringPtr converts sql.NullString to *string
func nullToStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// intPtrToNull converts *int to sql.NullInt64
func intPtrToNull(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// nullToIntPtr converts sql.NullInt64 to *int (NULL yields nil, not zero)
func nullToIntPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}

// boolToInt coerces a flag to its persisted 0/1 form
func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
