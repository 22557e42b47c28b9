package vision

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"drive-ocr/internal/googlefake"
	"drive-ocr/internal/internalerr"
	"drive-ocr/internal/ocr"
)

func newEngine(t *testing.T, fake *googlefake.Vision, feature string, langs ...string) *Engine {
	t.Helper()
	e, err := New(context.Background(), feature, langs, fake.Options()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestExtractTextFirstAnnotation(t *testing.T) {
	fake := googlefake.NewVision(t)
	fake.Reply = func(img []byte) googlefake.VisionReply {
		return googlefake.VisionReply{Text: "HELLO\nWORLD " + string(img)}
	}
	e := newEngine(t, fake, "", "en", "de")

	got, err := e.ExtractText(context.Background(), []byte("img-1"), "image/png")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "HELLO\nWORLD img-1" {
		t.Fatalf("got %q", got)
	}
	calls := fake.Calls()
	if len(calls) != 1 || calls[0].Feature != FeatureText {
		t.Fatalf("calls = %+v", calls)
	}
	if !reflect.DeepEqual(calls[0].Langs, []string{"en", "de"}) {
		t.Errorf("language hints = %v", calls[0].Langs)
	}
	if string(calls[0].Image) != "img-1" {
		t.Errorf("image bytes not forwarded: %q", calls[0].Image)
	}
}

func TestExtractTextDocumentMode(t *testing.T) {
	fake := googlefake.NewVision(t)
	fake.Reply = func([]byte) googlefake.VisionReply { return googlefake.VisionReply{Text: "dense page"} }
	e := newEngine(t, fake, "document_text_detection")
	got, err := e.ExtractText(context.Background(), []byte("x"), "image/png")
	if err != nil || got != "dense page" {
		t.Fatalf("got %q, %v", got, err)
	}
	if fake.Calls()[0].Feature != FeatureDocumentText {
		t.Fatalf("feature = %s", fake.Calls()[0].Feature)
	}
}

func TestExtractTextEmpty(t *testing.T) {
	e := newEngine(t, googlefake.NewVision(t), "")
	got, err := e.ExtractText(context.Background(), []byte("blank"), "image/png")
	if err != nil || got != "" {
		t.Fatalf("got %q, %v", got, err)
	}
	r := ocr.RecognizeText(context.Background(), e, []byte("blank"), "image/png")
	if r.Kind != ocr.KindEmpty {
		t.Fatalf("kind = %v", r.Kind)
	}
}

func TestExtractTextServiceError(t *testing.T) {
	fake := googlefake.NewVision(t)
	fake.Reply = func([]byte) googlefake.VisionReply { return googlefake.VisionReply{Error: "Bad image data."} }
	e := newEngine(t, fake, "")
	_, err := e.ExtractText(context.Background(), []byte("x"), "image/png")
	if !errors.Is(err, internalerr.ErrRecognition) {
		t.Fatalf("expected recognition error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Bad image data.") {
		t.Fatalf("service message lost: %v", err)
	}
}

func TestExtractTextTransportError(t *testing.T) {
	fake := googlefake.NewVision(t)
	fake.Fail = func(string) bool { return true }
	e := newEngine(t, fake, "")
	if _, err := e.ExtractText(context.Background(), []byte("x"), "image/png"); !errors.Is(err, internalerr.ErrRecognition) {
		t.Fatalf("expected recognition error, got %v", err)
	}
}

func TestDetectObjectsKeepsOrder(t *testing.T) {
	fake := googlefake.NewVision(t)
	fake.Reply = func([]byte) googlefake.VisionReply {
		return googlefake.VisionReply{Objects: []googlefake.VisionObject{
			{Name: "Cat", Score: 0.42},
			{Name: "Dog", Score: 0.91},
			{Name: "Cat", Score: 0.40},
		}}
	}
	e := newEngine(t, fake, "", "en")
	got, err := e.DetectObjects(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("DetectObjects: %v", err)
	}
	want := []ocr.Object{{Label: "Cat", Confidence: 0.42}, {Label: "Dog", Confidence: 0.91}, {Label: "Cat", Confidence: 0.40}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if c := fake.Calls()[0]; c.Feature != "OBJECT_LOCALIZATION" || len(c.Langs) != 0 {
		t.Fatalf("call = %+v", c)
	}
}

func TestDetectObjectsError(t *testing.T) {
	fake := googlefake.NewVision(t)
	fake.Reply = func([]byte) googlefake.VisionReply { return googlefake.VisionReply{Error: "quota"} }
	e := newEngine(t, fake, "")
	set := ocr.LocalizeObjects(context.Background(), e, []byte("x"))
	if !set.Failed() || !errors.Is(set.Err, internalerr.ErrRecognition) {
		t.Fatalf("set = %+v", set)
	}
}

func TestUnsupportedFeature(t *testing.T) {
	_, err := New(context.Background(), "LABEL_DETECTION", nil, googlefake.NewVision(t).Options()...)
	if !errors.Is(err, internalerr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
