package googlefake

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/vision/v1"
)

// VisionObject is one localized object the fake reports.
type VisionObject struct {
	Name  string
	Score float64
}

// VisionReply is what the fake answers for one image.
type VisionReply struct {
	Text    string
	Objects []VisionObject
	// Error fills the per-image error.message.
	Error string
}

// VisionCall records one annotate request.
type VisionCall struct {
	Feature string
	Langs   []string
	Image   []byte
}

// Vision fakes images:annotate for text, document text and object localization.
type Vision struct {
	// Reply decides the answer for an image; a nil Reply answers empty.
	Reply func(img []byte) VisionReply
	// Fail, when set, makes the request for a feature answer 500.
	Fail func(feature string) bool

	mu     sync.Mutex
	calls  []VisionCall
	server *httptest.Server
}

func NewVision(t testing.TB) *Vision {
	t.Helper()
	v := &Vision{}
	v.server = httptest.NewServer(http.HandlerFunc(v.serve))
	t.Cleanup(v.server.Close)
	return v
}

func (v *Vision) Options() []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(v.server.URL + "/"), option.WithoutAuthentication()}
}

func (v *Vision) Calls() []VisionCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]VisionCall(nil), v.calls...)
}

func (v *Vision) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/v1/images:annotate") {
		writeError(w, http.StatusNotFound, "unknown route "+r.Method+" "+r.URL.Path)
		return
	}
	var req vision.BatchAnnotateImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := &vision.BatchAnnotateImagesResponse{}
	for _, ir := range req.Requests {
		if ir.Image == nil || len(ir.Features) == 0 {
			writeError(w, http.StatusBadRequest, "image and features are required")
			return
		}
		img, err := base64.StdEncoding.DecodeString(ir.Image.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, "image content is not base64")
			return
		}
		feature := ir.Features[0].Type
		if v.Fail != nil && v.Fail(feature) {
			writeError(w, http.StatusInternalServerError, "injected "+feature+" failure")
			return
		}
		call := VisionCall{Feature: feature, Image: img}
		if ir.ImageContext != nil {
			call.Langs = ir.ImageContext.LanguageHints
		}
		v.mu.Lock()
		v.calls = append(v.calls, call)
		v.mu.Unlock()

		var reply VisionReply
		if v.Reply != nil {
			reply = v.Reply(img)
		}
		res.Responses = append(res.Responses, annotate(feature, reply))
	}
	writeJSON(w, res)
}

func annotate(feature string, reply VisionReply) *vision.AnnotateImageResponse {
	out := &vision.AnnotateImageResponse{}
	if reply.Error != "" {
		out.Error = &vision.Status{Code: 3, Message: reply.Error}
		return out
	}
	switch feature {
	case "OBJECT_LOCALIZATION":
		for _, o := range reply.Objects {
			out.LocalizedObjectAnnotations = append(out.LocalizedObjectAnnotations,
				&vision.LocalizedObjectAnnotation{Name: o.Name, Score: o.Score})
		}
	default:
		if reply.Text == "" {
			return out
		}
		// first annotation aggregates the page, the rest are words
		out.TextAnnotations = append(out.TextAnnotations, &vision.EntityAnnotation{Description: reply.Text})
		for _, word := range strings.Fields(reply.Text) {
			out.TextAnnotations = append(out.TextAnnotations, &vision.EntityAnnotation{Description: word})
		}
		out.FullTextAnnotation = &vision.TextAnnotation{Text: reply.Text}
	}
	return out
}
