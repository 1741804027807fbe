package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bodyscan-coach/api/internal/analysis"
)

type State int

const (
	Idle State = iota
	AwaitingAnalysis
	Verifying
	Reanalyzing
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingAnalysis:
		return "awaiting-analysis"
	case Verifying:
		return "verifying"
	case Reanalyzing:
		return "reanalyzing"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrBusy  = errors.New("a request is already in progress")
	ErrState = errors.New("action not allowed now")
	ErrIndex = errors.New("no such metric")
)

// Analyzer is the part of analysis.Service the workflow drives.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.AnalyzeInput) (analysis.AnalysisResult, error)
	Reanalyze(ctx context.Context, in analysis.ReanalyzeInput) (analysis.AnalysisResult, error)
}

type Options struct {
	Goal analysis.Goal
	Tone analysis.Tone
	LLM  string
}

// Controller drives one user's verification flow. It is safe for concurrent
// use; mu is released while the model call runs, and the busy states reject
// any overlapping action with ErrBusy.
type Controller struct {
	svc Analyzer

	mu      sync.Mutex
	state   State
	opt     Options
	session *Session
	initial *analysis.AnalysisResult
	final   *analysis.AnalysisResult
}

func NewController(svc Analyzer, opt Options) *Controller {
	return &Controller{svc: svc, opt: opt}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opt
}

// SetOptions changes goal/tone/engine for the next call.
func (c *Controller) SetOptions(opt Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy() {
		return ErrBusy
	}
	c.opt = opt
	return nil
}

// Session returns a copy of the current verification session, nil outside
// Verifying.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return c.session.clone()
}

// Initial returns the first-pass result while it is being verified.
func (c *Controller) Initial() (analysis.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initial == nil {
		return analysis.AnalysisResult{}, false
	}
	return *c.initial, true
}

// Result returns the final result once Complete.
func (c *Controller) Result() (analysis.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final == nil {
		return analysis.AnalysisResult{}, false
	}
	return *c.final, true
}

func (c *Controller) busy() bool {
	return c.state == AwaitingAnalysis || c.state == Reanalyzing
}

// --- transitions ------------------------------------------------------------

// Submit starts a fresh analysis from Idle or Complete.
func (c *Controller) Submit(ctx context.Context, image []byte, mime string) (analysis.AnalysisResult, error) {
	c.mu.Lock()
	switch {
	case c.busy():
		c.mu.Unlock()
		return analysis.AnalysisResult{}, ErrBusy
	case c.state == Verifying:
		c.mu.Unlock()
		return analysis.AnalysisResult{}, fmt.Errorf("%w: confirm or cancel the current reading first", ErrState)
	case len(image) == 0:
		c.mu.Unlock()
		return analysis.AnalysisResult{}, analysis.InputError("no image")
	}
	c.clear()
	c.state = AwaitingAnalysis
	opt := c.opt
	c.mu.Unlock()

	r, err := c.svc.Analyze(ctx, analysis.AnalyzeInput{
		Image: image,
		MIME:  mime,
		Goal:  opt.Goal,
		Tone:  opt.Tone,
		LLM:   opt.LLM,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Idle
		return analysis.AnalysisResult{}, err
	}
	c.initial = &r
	c.session = NewSession(r)
	c.state = Verifying
	return r, nil
}

func (c *Controller) Edit(i int, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.verifying(); err != nil {
		return err
	}
	return c.session.Edit(i, value)
}

func (c *Controller) Reset(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.verifying(); err != nil {
		return err
	}
	return c.session.Reset(i)
}

// Confirm re-analyses the snapshot of the edited metrics. On failure the
// controller returns to Verifying with every edit intact.
func (c *Controller) Confirm(ctx context.Context) (analysis.AnalysisResult, error) {
	c.mu.Lock()
	if err := c.verifying(); err != nil {
		c.mu.Unlock()
		return analysis.AnalysisResult{}, err
	}
	in := analysis.ReanalyzeInput{
		Metrics:         c.session.Snapshot(),
		Goal:            c.opt.Goal,
		Tone:            c.opt.Tone,
		OriginalSummary: c.session.OriginalSummary,
		LLM:             c.opt.LLM,
	}
	c.state = Reanalyzing
	c.mu.Unlock()

	r, err := c.svc.Reanalyze(ctx, in)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Verifying
		return analysis.AnalysisResult{}, err
	}
	c.final = &r
	c.session = nil
	c.initial = nil
	c.state = Complete
	return r, nil
}

// Cancel drops everything held for the current reading. It is a no-op in
// Idle.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy() {
		return ErrBusy
	}
	c.clear()
	c.state = Idle
	return nil
}

func (c *Controller) verifying() error {
	switch {
	case c.busy():
		return ErrBusy
	case c.state != Verifying:
		return fmt.Errorf("%w: no reading to verify", ErrState)
	}
	return nil
}

func (c *Controller) clear() {
	c.session = nil
	c.initial = nil
	c.final = nil
}
