package document

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"

	"drive-ocr/internal/internalerr"
)

type Placement int

const (
	// PlacementEnd appends after the existing content, oldest block first.
	PlacementEnd Placement = iota
	// PlacementStart inserts at the top of the body, newest block first.
	PlacementStart
)

func ParsePlacement(s string) (Placement, error) {
	switch s {
	case "", "end":
		return PlacementEnd, nil
	case "start":
		return PlacementStart, nil
	}
	return PlacementEnd, fmt.Errorf("%w: unknown placement %q", internalerr.ErrConfiguration, s)
}

// Cursor describes where a block landed.
type Cursor struct {
	DocID string
	// Index is where the block text starts.
	Index int64
	// End is the body end index after the insert.
	End      int64
	Revision string
}

// Docs appends blocks to Google Docs documents.
type Docs struct {
	svc           *docs.Service
	placement     Placement
	revisionCheck bool
}

func New(ctx context.Context, placement Placement, revisionCheck bool, opts ...option.ClientOption) (*Docs, error) {
	svc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("docs client: %w", err)
	}
	return &Docs{svc: svc, placement: placement, revisionCheck: revisionCheck}, nil
}

// EndIndex is the end offset of the last structural element of the body, 1 for an empty body.
func EndIndex(doc *docs.Document) int64 {
	if doc == nil || doc.Body == nil || len(doc.Body.Content) == 0 {
		return 1
	}
	end := doc.Body.Content[len(doc.Body.Content)-1].EndIndex
	if end < 1 {
		return 1
	}
	return end
}

// InsertionIndex keeps inserts strictly before the body's terminal newline.
func InsertionIndex(end int64, p Placement) int64 {
	if p == PlacementStart {
		return 1
	}
	if end-1 < 1 {
		return 1
	}
	return end - 1
}

// StyleRequests turns block-relative style ranges into absolute requests for a
// block inserted at index.
func StyleRequests(index int64, b Block) []*docs.Request {
	reqs := make([]*docs.Request, 0, len(b.Styles))
	for _, s := range b.Styles {
		start := index + int64(s.Offset)
		reqs = append(reqs, &docs.Request{UpdateTextStyle: &docs.UpdateTextStyleRequest{
			Range:     &docs.Range{StartIndex: start, EndIndex: start + int64(s.Length)},
			TextStyle: &docs.TextStyle{Link: &docs.Link{Url: s.Link}},
			Fields:    "link",
		}})
	}
	return reqs
}

// Append inserts b into docID and then applies its links. The two updates are
// separate calls, so the text can briefly exist without its styling.
func (d *Docs) Append(ctx context.Context, docID string, b Block) (Cursor, error) {
	if err := b.validate(); err != nil {
		return Cursor{}, fmt.Errorf("%w: %s: %w", internalerr.ErrDocumentUpdate, docID, err)
	}
	b = b.clean()
	doc, err := d.svc.Documents.Get(docID).Context(ctx).Do()
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: read %s: %w", internalerr.ErrDocumentUpdate, docID, err)
	}
	end := EndIndex(doc)
	cur := Cursor{DocID: docID, Index: InsertionIndex(end, d.placement), Revision: doc.RevisionId}
	if b.Text == "" {
		cur.End = end
		return cur, nil
	}

	insert := []*docs.Request{{InsertText: &docs.InsertTextRequest{
		Location: &docs.Location{Index: cur.Index},
		Text:     b.Text,
	}}}
	if cur.Revision, err = d.batch(ctx, docID, insert, cur.Revision); err != nil {
		return Cursor{}, fmt.Errorf("%w: insert into %s at %d: %w", internalerr.ErrDocumentUpdate, docID, cur.Index, err)
	}
	cur.End = end + int64(Len(b.Text))

	if len(b.Styles) > 0 {
		if cur.Revision, err = d.batch(ctx, docID, StyleRequests(cur.Index, b), cur.Revision); err != nil {
			return Cursor{}, fmt.Errorf("%w: style %s: %w", internalerr.ErrDocumentUpdate, docID, err)
		}
	}
	return cur, nil
}

func (d *Docs) batch(ctx context.Context, docID string, reqs []*docs.Request, revision string) (string, error) {
	body := &docs.BatchUpdateDocumentRequest{Requests: reqs}
	if d.revisionCheck && revision != "" {
		body.WriteControl = &docs.WriteControl{RequiredRevisionId: revision}
	}
	res, err := d.svc.Documents.BatchUpdate(docID, body).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if res.WriteControl != nil {
		return res.WriteControl.RequiredRevisionId, nil
	}
	return "", nil
}

// Create makes a new document titled title holding b.
func (d *Docs) Create(ctx context.Context, title string, b Block) (Cursor, error) {
	doc, err := d.svc.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: create %q: %w", internalerr.ErrDocumentUpdate, title, err)
	}
	log.Printf("document: created %s (%q)", doc.DocumentId, title)
	return d.Append(ctx, doc.DocumentId, b)
}

// URL is the browser link of a document.
func URL(docID string) string {
	return "https://docs.google.com/document/d/" + docID
}
