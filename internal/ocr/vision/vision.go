package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"

	"drive-ocr/internal/internalerr"
	"drive-ocr/internal/ocr"
)

const (
	FeatureText         = "TEXT_DETECTION"
	FeatureDocumentText = "DOCUMENT_TEXT_DETECTION"
	featureObjects      = "OBJECT_LOCALIZATION"
)

type Engine struct {
	svc     *visionapi.Service
	Feature string
	Langs   []string
}

func New(ctx context.Context, feature string, langs []string, opts ...option.ClientOption) (*Engine, error) {
	svc, err := visionapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	switch feature = strings.ToUpper(strings.TrimSpace(feature)); feature {
	case "":
		feature = FeatureText
	case FeatureText, FeatureDocumentText:
	default:
		return nil, fmt.Errorf("%w: unsupported OCR feature %q", internalerr.ErrConfiguration, feature)
	}
	return &Engine{svc: svc, Feature: feature, Langs: langs}, nil
}

func (e *Engine) Name() string { return "vision" }

func (e *Engine) annotate(ctx context.Context, img []byte, feature string, withLangs bool) (*visionapi.AnnotateImageResponse, error) {
	req := &visionapi.AnnotateImageRequest{
		Image:    &visionapi.Image{Content: base64.StdEncoding.EncodeToString(img)},
		Features: []*visionapi.Feature{{Type: feature}},
	}
	if withLangs && len(e.Langs) > 0 {
		req.ImageContext = &visionapi.ImageContext{LanguageHints: e.Langs}
	}
	batch := &visionapi.BatchAnnotateImagesRequest{Requests: []*visionapi.AnnotateImageRequest{req}}
	res, err := e.svc.Images.Annotate(batch).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", internalerr.ErrRecognition, feature, err)
	}
	if len(res.Responses) == 0 {
		return &visionapi.AnnotateImageResponse{}, nil
	}
	r := res.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return nil, fmt.Errorf("%w: %s: %s", internalerr.ErrRecognition, feature, r.Error.Message)
	}
	return r, nil
}

// ExtractText returns the full-page text. The first text annotation aggregates
// the page; document mode prefers the structured full text.
func (e *Engine) ExtractText(ctx context.Context, img []byte, _ string) (string, error) {
	r, err := e.annotate(ctx, img, e.Feature, true)
	if err != nil {
		return "", err
	}
	if e.Feature == FeatureDocumentText && r.FullTextAnnotation != nil && r.FullTextAnnotation.Text != "" {
		return r.FullTextAnnotation.Text, nil
	}
	if len(r.TextAnnotations) == 0 {
		return "", nil
	}
	return r.TextAnnotations[0].Description, nil
}

// DetectObjects returns every localized object as reported.
func (e *Engine) DetectObjects(ctx context.Context, img []byte) ([]ocr.Object, error) {
	r, err := e.annotate(ctx, img, featureObjects, false)
	if err != nil {
		return nil, err
	}
	out := make([]ocr.Object, 0, len(r.LocalizedObjectAnnotations))
	for _, o := range r.LocalizedObjectAnnotations {
		out = append(out, ocr.Object{Label: o.Name, Confidence: o.Score})
	}
	return out, nil
}
