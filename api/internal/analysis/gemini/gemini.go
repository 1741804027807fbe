package gemini

import (
	"context"
	"errors"
	"strings"

	"bodyscan-coach/api/internal/analysis"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// Complete makes a single GenerateContent call, without retries.
func (e *Engine) Complete(ctx context.Context, req analysis.Request) (string, error) {
	if e.APIKey == "" {
		return "", analysis.UpstreamError(0, errors.New("GEMINI_API_KEY is empty"))
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", analysis.UpstreamError(0, err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		m.GenerationConfig.MaxOutputTokens = ptrInt32(int32(req.MaxTokens))
	}
	if strings.TrimSpace(req.System) != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	parts := []genai.Part{genai.Text(req.User)}
	if len(req.Image) > 0 {
		parts = append(parts, &genai.Blob{MIMEType: req.ImageMIME, Data: req.Image})
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", analysis.UpstreamError(statusOf(err), err)
	}
	return firstText(resp), nil
}

// statusOf digs the HTTP status out of a Google API error, 0 when there is none.
func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
