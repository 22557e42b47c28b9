// Package googlefake serves in-memory stand-ins for the Drive v3, Docs v1 and
// Vision v1 REST endpoints so the real API clients can be exercised in tests.
package googlefake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveFile is the fake's view of one stored file.
type DriveFile struct {
	ID            string
	Name          string
	MimeType      string
	Parents       []string
	Content       []byte
	AppProperties map[string]string
	Trashed       bool
	Public        bool
}

// Drive fakes files.list, files.get (metadata and alt=media), files.update and
// permissions.create.
type Drive struct {
	// PageLimit caps the page size the server honours, forcing clients to paginate.
	PageLimit int
	// Fail, when set, makes the matching operation answer 500.
	// Ops: list, download, get, update, permission.
	Fail func(op, fileID string) bool

	mu     sync.Mutex
	files  map[string]*DriveFile
	order  []string
	server *httptest.Server
}

func NewDrive(t testing.TB) *Drive {
	t.Helper()
	d := &Drive{files: map[string]*DriveFile{}}
	d.server = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.server.Close)
	return d
}

// Options points a Drive client at the fake.
func (d *Drive) Options() []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(d.server.URL + "/"), option.WithoutAuthentication()}
}

func (d *Drive) Add(f DriveFile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := f
	cp.Parents = append([]string(nil), f.Parents...)
	d.files[f.ID] = &cp
	d.order = append(d.order, f.ID)
}

// File returns a snapshot of a stored file.
func (d *Drive) File(id string) (DriveFile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[id]
	if !ok {
		return DriveFile{}, false
	}
	cp := *f
	cp.Parents = append([]string(nil), f.Parents...)
	return cp, true
}

// Images returns the ids of non-trashed image files directly in folder.
func (d *Drive) Images(folder string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for _, id := range d.order {
		if f := d.files[id]; isImageIn(f, folder) {
			ids = append(ids, id)
		}
	}
	return ids
}

func isImageIn(f *DriveFile, folder string) bool {
	if f.Trashed || !strings.Contains(f.MimeType, "image/") {
		return false
	}
	for _, p := range f.Parents {
		if p == folder {
			return true
		}
	}
	return false
}

var parentsQuery = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)

func (d *Drive) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case path == "files" && r.Method == http.MethodGet:
		d.list(w, r)
	case strings.HasPrefix(path, "files/") && strings.HasSuffix(path, "/permissions") && r.Method == http.MethodPost:
		d.permission(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "files/"), "/permissions"))
	case strings.HasPrefix(path, "files/") && r.Method == http.MethodGet:
		d.get(w, r, strings.TrimPrefix(path, "files/"))
	case strings.HasPrefix(path, "files/") && r.Method == http.MethodPatch:
		d.update(w, r, strings.TrimPrefix(path, "files/"))
	default:
		writeError(w, http.StatusNotFound, "unknown route "+r.Method+" "+r.URL.Path)
	}
}

func (d *Drive) failed(w http.ResponseWriter, op, id string) bool {
	if d.Fail != nil && d.Fail(op, id) {
		writeError(w, http.StatusInternalServerError, "injected "+op+" failure")
		return true
	}
	return false
}

func (d *Drive) list(w http.ResponseWriter, r *http.Request) {
	if d.failed(w, "list", "") {
		return
	}
	m := parentsQuery.FindStringSubmatch(r.URL.Query().Get("q"))
	if m == nil {
		writeError(w, http.StatusBadRequest, "query without parent clause")
		return
	}
	folder := strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(m[1])

	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if size <= 0 {
		size = 100
	}
	if d.PageLimit > 0 && size > d.PageLimit {
		size = d.PageLimit
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))

	d.mu.Lock()
	var matched []*DriveFile
	for _, id := range d.order {
		if f := d.files[id]; isImageIn(f, folder) {
			matched = append(matched, f)
		}
	}
	res := &drive.FileList{}
	for i := offset; i < len(matched) && i < offset+size; i++ {
		f := matched[i]
		res.Files = append(res.Files, &drive.File{Id: f.ID, Name: f.Name, MimeType: f.MimeType, AppProperties: f.AppProperties})
	}
	if offset+size < len(matched) {
		res.NextPageToken = strconv.Itoa(offset + size)
	}
	d.mu.Unlock()
	writeJSON(w, res)
}

func (d *Drive) get(w http.ResponseWriter, r *http.Request, id string) {
	media := r.URL.Query().Get("alt") == "media"
	op := "get"
	if media {
		op = "download"
	}
	if d.failed(w, op, id) {
		return
	}
	d.mu.Lock()
	f, ok := d.files[id]
	if !ok {
		d.mu.Unlock()
		writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	if media {
		content := append([]byte(nil), f.Content...)
		d.mu.Unlock()
		w.Header().Set("Content-Type", f.MimeType)
		_, _ = w.Write(content)
		return
	}
	res := &drive.File{
		Id:            f.ID,
		Name:          f.Name,
		MimeType:      f.MimeType,
		Parents:       append([]string(nil), f.Parents...),
		AppProperties: f.AppProperties,
		WebViewLink:   ViewLink(f.ID),
	}
	d.mu.Unlock()
	writeJSON(w, res)
}

// ViewLink is the link the fake reports for a file.
func ViewLink(id string) string {
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view?usp=drivesdk", id)
}

func (d *Drive) update(w http.ResponseWriter, r *http.Request, id string) {
	if d.failed(w, "update", id) {
		return
	}
	var patch drive.File
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[id]
	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	q := r.URL.Query()
	if rm := q.Get("removeParents"); rm != "" {
		drop := map[string]bool{}
		for _, p := range strings.Split(rm, ",") {
			drop[p] = true
		}
		kept := f.Parents[:0]
		for _, p := range f.Parents {
			if !drop[p] {
				kept = append(kept, p)
			}
		}
		f.Parents = kept
	}
	if add := q.Get("addParents"); add != "" {
		for _, p := range strings.Split(add, ",") {
			f.Parents = append(f.Parents, p)
		}
	}
	if len(patch.AppProperties) > 0 {
		if f.AppProperties == nil {
			f.AppProperties = map[string]string{}
		}
		for k, v := range patch.AppProperties {
			f.AppProperties[k] = v
		}
	}
	writeJSON(w, &drive.File{Id: f.ID, Parents: append([]string(nil), f.Parents...)})
}

func (d *Drive) permission(w http.ResponseWriter, r *http.Request, id string) {
	if d.failed(w, "permission", id) {
		return
	}
	var p drive.Permission
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[id]
	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	if p.Type == "anyone" && p.Role == "reader" {
		f.Public = true
	}
	p.Id = "perm-" + id
	writeJSON(w, &p)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}
