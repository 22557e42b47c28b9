package ocr

import (
	"context"
	"fmt"
	"strings"
)

// TextExtractor reads the text in an image. No text is ("", nil).
type TextExtractor interface {
	Name() string
	ExtractText(ctx context.Context, img []byte, mime string) (string, error)
}

// ObjectDetector lists the objects localized in an image.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, img []byte) ([]Object, error)
}

type Kind int

const (
	KindText Kind = iota
	KindEmpty
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindEmpty:
		return "empty"
	case KindFailure:
		return "failure"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result is the outcome of text recognition for one image.
type Result struct {
	Kind   Kind
	Text   string
	Reason string
	Err    error
}

// Object is one localized object; Confidence is in [0,1].
type Object struct {
	Label      string
	Confidence float64
}

// ObjectSet holds localized objects in the order the service reported them.
// Failure is set when localization itself failed.
type ObjectSet struct {
	Objects []Object
	Failure string
	Err     error
}

func (s ObjectSet) Failed() bool { return s.Err != nil }

// RecognizeText runs the extractor and folds its answer into a Result.
func RecognizeText(ctx context.Context, ex TextExtractor, img []byte, mime string) Result {
	text, err := ex.ExtractText(ctx, img, mime)
	switch {
	case err != nil:
		return Result{Kind: KindFailure, Reason: err.Error(), Err: err}
	case strings.TrimSpace(text) == "":
		return Result{Kind: KindEmpty}
	default:
		return Result{Kind: KindText, Text: text}
	}
}

// LocalizeObjects runs the detector and folds its answer into an ObjectSet.
func LocalizeObjects(ctx context.Context, det ObjectDetector, img []byte) ObjectSet {
	objs, err := det.DetectObjects(ctx, img)
	if err != nil {
		return ObjectSet{Failure: err.Error(), Err: err}
	}
	return ObjectSet{Objects: objs}
}

// Format renders objects as "label (87%)" items joined by commas.
func (s ObjectSet) Format() string {
	if len(s.Objects) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(s.Objects))
	for _, o := range s.Objects {
		parts = append(parts, fmt.Sprintf("%s (%.0f%%)", o.Label, o.Confidence*100))
	}
	return strings.Join(parts, ", ")
}
