package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"bodyscan-coach/api/internal/prompt"
	"bodyscan-coach/api/internal/util"
)

// CacheKey identifies an analysis that can be served again without a model call.
type CacheKey struct {
	ImageHash string
	Engine    string
	Model     string
	Goal      Goal
	Tone      Tone
}

// Cache is an optional lookup of earlier analyses of the same image.
type Cache interface {
	LookupAnalysis(ctx context.Context, key CacheKey, maxAge time.Duration) (AnalysisResult, bool, error)
}

type Options struct {
	MaxTokens   int
	Temperature float32
	Cache       Cache
	CacheTTL    time.Duration
}

// Service runs the analyze / reanalyze pipeline:
// prompt -> one upstream call -> ExtractJSON -> ParseResult -> ApplyResultPolicy.
type Service struct {
	engs    *Engines
	prompts *prompt.Set
	opt     Options
}

func NewService(engs *Engines, prompts *prompt.Set, opt Options) *Service {
	if opt.MaxTokens <= 0 {
		opt.MaxTokens = 8000
	}
	return &Service{engs: engs, prompts: prompts, opt: opt}
}

// Engine resolves the engine a request would use.
func (s *Service) Engine(llm string) (Engine, error) {
	return s.engs.GetEngine(llm)
}

// --- ANALYZE ----------------------------------------------------------------

func (s *Service) Analyze(ctx context.Context, in AnalyzeInput) (AnalysisResult, error) {
	if len(in.Image) == 0 {
		return AnalysisResult{}, InputError("no image")
	}
	mime := util.PickMIME(in.MIME, in.Image)
	if !util.IsImageMIME(mime) {
		return AnalysisResult{}, InputError(fmt.Sprintf("unsupported media type %q; upload an image", mime))
	}
	goal, tone, err := ResolveOptions(in.Goal, in.Tone)
	if err != nil {
		return AnalysisResult{}, err
	}
	engine, err := s.engs.GetEngine(in.LLM)
	if err != nil {
		return AnalysisResult{}, err
	}

	key := CacheKey{
		ImageHash: util.SHA256Hex(in.Image),
		Engine:    engine.Name(),
		Model:     engine.GetModel(),
		Goal:      goal,
		Tone:      tone,
	}
	if s.opt.Cache != nil && s.opt.CacheTTL > 0 {
		r, ok, err := s.opt.Cache.LookupAnalysis(ctx, key, s.opt.CacheTTL)
		if err != nil {
			log.Printf("analysis cache lookup: %v", err)
		} else if ok {
			log.Printf("analysis cache hit: image=%s engine=%s", key.ImageHash[:12], key.Engine)
			return r, nil
		}
	}

	user, err := s.prompts.AnalyzeUser(prompt.AnalyzeData{Goal: string(goal), Tone: string(tone)})
	if err != nil {
		return AnalysisResult{}, err
	}

	return s.run(ctx, engine, Request{
		System:      s.prompts.System,
		User:        user,
		Image:       in.Image,
		ImageMIME:   mime,
		MaxTokens:   s.opt.MaxTokens,
		Temperature: s.opt.Temperature,
	})
}

// --- REANALYZE --------------------------------------------------------------

func (s *Service) Reanalyze(ctx context.Context, in ReanalyzeInput) (AnalysisResult, error) {
	if len(in.Metrics) == 0 {
		return AnalysisResult{}, InputError("no metrics to reanalyze")
	}
	for i, m := range in.Metrics {
		if strings.TrimSpace(string(m.Name)) == "" {
			return AnalysisResult{}, InputError(fmt.Sprintf("metric %d has no name", i))
		}
	}
	goal, tone, err := ResolveOptions(in.Goal, in.Tone)
	if err != nil {
		return AnalysisResult{}, err
	}
	engine, err := s.engs.GetEngine(in.LLM)
	if err != nil {
		return AnalysisResult{}, err
	}

	metricsJSON, err := json.MarshalIndent(in.Metrics, "", "  ")
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("marshal metrics: %w", err)
	}
	user, err := s.prompts.ReanalyzeUser(prompt.ReanalyzeData{
		Goal:            string(goal),
		Tone:            string(tone),
		MetricsJSON:     string(metricsJSON),
		OriginalSummary: in.OriginalSummary,
	})
	if err != nil {
		return AnalysisResult{}, err
	}

	r, err := s.run(ctx, engine, Request{
		System:      s.prompts.System,
		User:        user,
		MaxTokens:   s.opt.MaxTokens,
		Temperature: s.opt.Temperature,
	})
	if err != nil {
		return AnalysisResult{}, err
	}
	ApplyCorrections(&r, in.Metrics)
	return r, nil
}

// --- pipeline ---------------------------------------------------------------

func (s *Service) run(ctx context.Context, engine Engine, req Request) (AnalysisResult, error) {
	content, err := engine.Complete(ctx, req)
	if err != nil {
		var ae *Error
		if errors.As(err, &ae) {
			return AnalysisResult{}, ae
		}
		return AnalysisResult{}, UpstreamError(0, err)
	}
	log.Printf("%s response: len=%d preview=%q", engine.Name(), len(content), util.Truncate(content, 200))

	candidate, err := ExtractJSON(content)
	if err != nil {
		return AnalysisResult{}, formatError(err)
	}
	r, err := ParseResult(candidate)
	if err != nil {
		fe := formatError(err)
		// RawResponse is the model text, not the extracted candidate
		fe.RawResponse = util.Truncate(content, PreviewLen)
		return AnalysisResult{}, fe
	}
	ApplyResultPolicy(&r)
	return r, nil
}

// ResolveOptions applies the balanced/gentle defaults and validates both.
func ResolveOptions(g Goal, t Tone) (Goal, Tone, error) {
	g = Goal(strings.TrimSpace(string(g)))
	t = Tone(strings.TrimSpace(string(t)))
	if g == "" {
		g = GoalBalanced
	}
	if t == "" {
		t = ToneGentle
	}
	if !g.Valid() {
		return "", "", InputError(fmt.Sprintf("unknown goal %q", g))
	}
	if !t.Valid() {
		return "", "", InputError(fmt.Sprintf("unknown tone %q", t))
	}
	return g, t, nil
}
