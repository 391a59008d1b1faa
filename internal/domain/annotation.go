package domain

// DefaultDocID is the document scope used when a request names none.
// Databases written before scoping existed hold their rows under this value.
const DefaultDocID = "default"

// DefaultUsername is the user scope used when a request names none.
const DefaultUsername = "unknown"

// Scope is the (document, user) pair that partitions annotation data.
// Every repository read and write is confined to one scope.
type Scope struct {
	DocID    string
	Username string
}

// NewScope builds a Scope, substituting defaults for empty components so
// that unscoped legacy data stays reachable.
func NewScope(docID, username string) Scope {
	if docID == "" {
		docID = DefaultDocID
	}
	if username == "" {
		username = DefaultUsername
	}
	return Scope{DocID: docID, Username: username}
}

// Rect is the bounding rectangle of an annotation's visual shape, in
// viewer coordinates. It is persisted as encoded text and never
// interpreted by the server.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contents holds the textual payload of an annotation and an optional
// embedded image (typically a data URI).
type Contents struct {
	Text  string  `json:"text"`
	Image *string `json:"image,omitempty"`
}

// Annotation is a user-authored mark on a PDF page: a highlight, shape,
// text note or free-draw stroke, plus its discussion thread.
//
// The id is client-generated and globally unique; the server treats it as
// the primary key and stamps the owning scope onto the row at write time.
// Classification codes (Type, PdfjsType, PdfjsEditorType) and the Konva
// shape state are opaque to the server.
type Annotation struct {
	ID              string    `json:"id"`
	PageNumber      int       `json:"pageNumber"`
	Title           string    `json:"title"`
	Type            int       `json:"type"`
	Color           *string   `json:"color"`
	Subtype         string    `json:"subtype"`
	FontSize        *int      `json:"fontSize"`
	PdfjsType       int       `json:"pdfjsType"`
	PdfjsEditorType int       `json:"pdfjsEditorType"`
	Date            string    `json:"date"`
	KonvaClientRect Rect      `json:"konvaClientRect"`
	KonvaString     string    `json:"konvaString,omitempty"`
	ContentsObj     Contents  `json:"contentsObj"`
	Comments        []Comment `json:"comments"`
	Resizable       bool      `json:"resizable"`
	Draggable       bool      `json:"draggable"`
}

// Comment is a threaded reply attached to an annotation. Comments are
// exclusively owned by their parent: deleting the annotation deletes them,
// and saving the annotation replaces the whole set.
type Comment struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Date    string `json:"date"`
	Status  *int   `json:"status"`
}

// ListFilter narrows a listing to annotations matching every set field.
// Nil/empty fields are ignored; Author matches the annotation title.
type ListFilter struct {
	PageNumber *int
	Author     string
	Type       *int
	Subtype    string
}
