package ocr

import (
	"errors"
	"strings"
)

// Engines holds the configured text extractors.
type Engines struct {
	Vision TextExtractor
	Gemini TextExtractor
}

func (e *Engines) GetEngine(name string) (TextExtractor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "vision", "google":
		if e.Vision == nil {
			return nil, errors.New("vision engine is not configured")
		}
		return e.Vision, nil
	case "gemini":
		if e.Gemini == nil {
			return nil, errors.New("gemini engine is not configured")
		}
		return e.Gemini, nil
	default:
		return nil, errors.New("unknown recognition engine; use 'vision' or 'gemini'")
	}
}
