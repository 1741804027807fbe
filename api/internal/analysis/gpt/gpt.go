package gpt

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"bodyscan-coach/api/internal/analysis"
	"bodyscan-coach/api/internal/util"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Engine talks to any OpenAI-compatible chat-completions endpoint.
type Engine struct {
	APIKey  string
	Model   string
	BaseURL string

	client *openai.Client
}

func New(key, model, baseURL string, timeout time.Duration) *Engine {
	key = strings.TrimSpace(key)
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Engine{
		APIKey:  key,
		Model:   strings.TrimSpace(model),
		BaseURL: baseURL,
		client:  openai.NewClientWithConfig(cfg),
	}
}

func (e *Engine) Name() string     { return "gpt" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Complete(ctx context.Context, req analysis.Request) (string, error) {
	if e.APIKey == "" {
		return "", analysis.UpstreamError(0, errors.New("OPENAI_API_KEY is empty"))
	}

	user := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.User}}
	if len(req.Image) > 0 {
		dataURL := util.MakeDataURL(req.ImageMIME, base64.StdEncoding.EncodeToString(req.Image))
		user = append(user, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: user},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", analysis.UpstreamError(statusOf(err), err)
	}
	if len(resp.Choices) == 0 {
		// nothing to extract; the service reports it as a format error
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// statusOf returns the HTTP status carried by a go-openai error, 0 if the
// request never got a response.
func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
