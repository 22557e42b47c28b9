package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"drive-ocr/internal/internalerr"
)

// noText is what the model is told to answer for images without text.
const noText = "<<NO_TEXT>>"

const transcribePrompt = `Transcribe all text visible in the image exactly as written.
Keep line breaks, punctuation, casing and the original language. Do not translate, summarize or explain.
If the image contains no text, answer exactly ` + noText + `.`

type Engine struct {
	APIKey string
	Model  string
	opts   []option.ClientOption
}

func New(apiKey, model string, opts ...option.ClientOption) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
		opts:   opts,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// ExtractText asks the model for a verbatim transcription of img.
func (e *Engine) ExtractText(ctx context.Context, img []byte, mime string) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is empty", internalerr.ErrConfiguration)
	}
	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(e.APIKey)}, e.opts...)...)
	if err != nil {
		return "", fmt.Errorf("%w: gemini client: %w", internalerr.ErrRecognition, err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{Temperature: ptrFloat32(0)}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(transcribePrompt)}}

	resp, err := m.GenerateContent(ctx,
		genai.Text("Transcribe this image."),
		genai.Blob{MIMEType: mime, Data: img},
	)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", fmt.Errorf("%w: gemini blocked the request: %v", internalerr.ErrRecognition, blocked)
		}
		return "", fmt.Errorf("%w: gemini: %w", internalerr.ErrRecognition, err)
	}
	return Transcript(resp)
}

// Transcript pulls the transcription out of a model response.
func Transcript(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini: no candidates", internalerr.ErrRecognition)
	}
	if c := resp.Candidates[0]; c.FinishReason == genai.FinishReasonSafety || c.FinishReason == genai.FinishReasonRecitation {
		return "", fmt.Errorf("%w: gemini: candidate blocked (%s)", internalerr.ErrRecognition, c.FinishReason)
	}
	txt := strings.TrimSpace(firstText(resp))
	if txt == noText {
		return "", nil
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
