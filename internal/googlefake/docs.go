package googlefake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf16"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

// Link is a hyperlinked range of a fake document, in absolute UTF-16 indices.
type Link struct {
	Start, End int
	URL        string
}

type fakeDoc struct {
	title string
	// body text after the leading section break; always ends with "\n".
	text  []uint16
	links []Link
	rev   int
}

func (d *fakeDoc) end() int { return 1 + len(d.text) }

// Docs fakes documents.get, documents.create and documents.batchUpdate for
// insertText and updateTextStyle requests.
type Docs struct {
	// Fail, when set, makes the matching operation answer 500.
	// Ops: get, create, insert, style.
	Fail func(op, docID string) bool

	mu      sync.Mutex
	docs    map[string]*fakeDoc
	order   []string
	batches int
	server  *httptest.Server
}

func NewDocs(t testing.TB) *Docs {
	t.Helper()
	d := &Docs{docs: map[string]*fakeDoc{}}
	d.server = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.server.Close)
	return d
}

func (d *Docs) Options() []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(d.server.URL + "/"), option.WithoutAuthentication()}
}

// AddDocument stores a document whose body holds text followed by the terminal newline.
func (d *Docs) AddDocument(id, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[id] = &fakeDoc{title: id, text: utf16.Encode([]rune(text + "\n"))}
	d.order = append(d.order, id)
}

// Text returns the document body without the terminal newline.
func (d *Docs) Text(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return ""
	}
	return strings.TrimSuffix(string(utf16.Decode(doc.text)), "\n")
}

// EndIndex reports the end index of the document body.
func (d *Docs) EndIndex(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if doc, ok := d.docs[id]; ok {
		return doc.end()
	}
	return 0
}

func (d *Docs) Links(id string) []Link {
	d.mu.Lock()
	defer d.mu.Unlock()
	if doc, ok := d.docs[id]; ok {
		return append([]Link(nil), doc.links...)
	}
	return nil
}

// LinkedText returns the text covered by a link range.
func (d *Docs) LinkedText(id string, l Link) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok || l.Start < 1 || l.End > doc.end() || l.Start > l.End {
		return ""
	}
	return string(utf16.Decode(doc.text[l.Start-1 : l.End-1]))
}

// Created lists documents made through documents.create, oldest first.
func (d *Docs) Created() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, id := range d.order {
		if strings.HasPrefix(id, "created-") {
			out = append(out, id)
		}
	}
	return out
}

func (d *Docs) Title(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if doc, ok := d.docs[id]; ok {
		return doc.title
	}
	return ""
}

// Batches counts batchUpdate calls accepted so far.
func (d *Docs) Batches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches
}

// Touch simulates another writer appending text and bumping the revision.
func (d *Docs) Touch(id, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc := d.docs[id]
	doc.insert(doc.end()-1, utf16.Encode([]rune(text)))
	doc.rev++
}

func (doc *fakeDoc) insert(index int, text []uint16) {
	pos := index - 1
	out := make([]uint16, 0, len(doc.text)+len(text))
	out = append(out, doc.text[:pos]...)
	out = append(out, text...)
	out = append(out, doc.text[pos:]...)
	doc.text = out
	for i := range doc.links {
		if doc.links[i].Start >= index {
			doc.links[i].Start += len(text)
			doc.links[i].End += len(text)
		}
	}
}

// stripUnsupported drops what the service drops from inserted text: C0 controls
// except tab, newline and vertical tab, and the BMP private use area.
func stripUnsupported(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x08 || (r >= 0x0C && r <= 0x1F) || (r >= 0xE000 && r <= 0xF8FF) {
			return -1
		}
		return r
	}, s)
}

func (doc *fakeDoc) revision() string { return fmt.Sprintf("rev-%d", doc.rev) }

func (d *Docs) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/documents")
	switch {
	case path == "" && r.Method == http.MethodPost:
		d.create(w, r)
	case strings.HasSuffix(path, ":batchUpdate") && r.Method == http.MethodPost:
		d.batchUpdate(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/"), ":batchUpdate"))
	case strings.HasPrefix(path, "/") && r.Method == http.MethodGet:
		d.get(w, strings.TrimPrefix(path, "/"))
	default:
		writeError(w, http.StatusNotFound, "unknown route "+r.Method+" "+r.URL.Path)
	}
}

func (d *Docs) failed(w http.ResponseWriter, op, id string) bool {
	if d.Fail != nil && d.Fail(op, id) {
		writeError(w, http.StatusInternalServerError, "injected "+op+" failure")
		return true
	}
	return false
}

func (d *Docs) get(w http.ResponseWriter, id string) {
	if d.failed(w, "get", id) {
		return
	}
	d.mu.Lock()
	doc, ok := d.docs[id]
	if !ok {
		d.mu.Unlock()
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	res := render(id, doc)
	d.mu.Unlock()
	writeJSON(w, res)
}

// render lays the body out as a section break followed by one paragraph per line.
func render(id string, doc *fakeDoc) *docs.Document {
	content := []*docs.StructuralElement{{EndIndex: 1, SectionBreak: &docs.SectionBreak{}}}
	start := 1
	for i, c := range doc.text {
		if c != '\n' {
			continue
		}
		end := 1 + i + 1
		run := string(utf16.Decode(doc.text[start-1 : end-1]))
		content = append(content, &docs.StructuralElement{
			StartIndex: int64(start),
			EndIndex:   int64(end),
			Paragraph: &docs.Paragraph{Elements: []*docs.ParagraphElement{{
				StartIndex: int64(start),
				EndIndex:   int64(end),
				TextRun:    &docs.TextRun{Content: run},
			}}},
		})
		start = end
	}
	return &docs.Document{
		DocumentId: id,
		Title:      doc.title,
		RevisionId: doc.revision(),
		Body:       &docs.Body{Content: content},
	}
}

func (d *Docs) create(w http.ResponseWriter, r *http.Request) {
	var req docs.Document
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if d.failed(w, "create", "") {
		return
	}
	d.mu.Lock()
	id := fmt.Sprintf("created-%d", len(d.order)+1)
	doc := &fakeDoc{title: req.Title, text: []uint16{'\n'}}
	d.docs[id] = doc
	d.order = append(d.order, id)
	res := render(id, doc)
	d.mu.Unlock()
	writeJSON(w, res)
}

func (d *Docs) batchUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var req docs.BatchUpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	op := "style"
	for _, rq := range req.Requests {
		if rq.InsertText != nil {
			op = "insert"
		}
	}
	if d.failed(w, op, id) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	if wc := req.WriteControl; wc != nil && wc.RequiredRevisionId != "" && wc.RequiredRevisionId != doc.revision() {
		writeError(w, http.StatusBadRequest, "The required revision ID does not match the latest revision.")
		return
	}
	for _, rq := range req.Requests {
		switch {
		case rq.InsertText != nil:
			idx := 0
			if rq.InsertText.Location != nil {
				idx = int(rq.InsertText.Location.Index)
			}
			if idx < 1 || idx >= doc.end() {
				writeError(w, http.StatusBadRequest, "Index must be less than the end index of the referenced segment.")
				return
			}
			doc.insert(idx, utf16.Encode([]rune(stripUnsupported(rq.InsertText.Text))))
		case rq.UpdateTextStyle != nil:
			u := rq.UpdateTextStyle
			if u.Range == nil || u.Range.StartIndex < 1 || int(u.Range.EndIndex) > doc.end() || u.Range.StartIndex >= u.Range.EndIndex {
				writeError(w, http.StatusBadRequest, "Invalid range.")
				return
			}
			if u.Fields != "link" || u.TextStyle == nil || u.TextStyle.Link == nil {
				writeError(w, http.StatusBadRequest, "Unsupported style update.")
				return
			}
			doc.links = append(doc.links, Link{Start: int(u.Range.StartIndex), End: int(u.Range.EndIndex), URL: u.TextStyle.Link.Url})
		default:
			writeError(w, http.StatusBadRequest, "Unsupported request.")
			return
		}
	}
	doc.rev++
	d.batches++
	replies := make([]*docs.Response, len(req.Requests))
	for i := range replies {
		replies[i] = &docs.Response{}
	}
	writeJSON(w, &docs.BatchUpdateDocumentResponse{
		DocumentId:   id,
		Replies:      replies,
		WriteControl: &docs.WriteControl{RequiredRevisionId: doc.revision()},
	})
}
