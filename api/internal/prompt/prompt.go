package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.txt
var embedded embed.FS

const knowledgeMarker = "{{KNOWLEDGE}}"

// Set holds the system instruction and the user-instruction templates.
type Set struct {
	System    string
	analyze   *template.Template
	reanalyze *template.Template
}

type AnalyzeData struct {
	Goal string
	Tone string
}

type ReanalyzeData struct {
	Goal            string
	Tone            string
	MetricsJSON     string
	OriginalSummary string
}

// Load reads prompt files from dir, falling back to the embedded copy for any
// file that is missing there. An empty dir uses the embedded set only.
func Load(dir string) (*Set, error) {
	system, err := loadFile(dir, "analyze.system.txt")
	if err != nil {
		return nil, err
	}
	knowledge, err := loadFile(dir, "knowledge.txt")
	if err != nil {
		return nil, err
	}
	analyzeSrc, err := loadFile(dir, "analyze.user.txt")
	if err != nil {
		return nil, err
	}
	reanalyzeSrc, err := loadFile(dir, "reanalyze.user.txt")
	if err != nil {
		return nil, err
	}

	at, err := template.New("analyze").Option("missingkey=error").Parse(analyzeSrc)
	if err != nil {
		return nil, fmt.Errorf("analyze.user.txt: %w", err)
	}
	rt, err := template.New("reanalyze").Option("missingkey=error").Parse(reanalyzeSrc)
	if err != nil {
		return nil, fmt.Errorf("reanalyze.user.txt: %w", err)
	}

	return &Set{
		System:    strings.Replace(system, knowledgeMarker, knowledge, 1),
		analyze:   at,
		reanalyze: rt,
	}, nil
}

func (s *Set) AnalyzeUser(d AnalyzeData) (string, error) {
	return render(s.analyze, d)
}

func (s *Set) ReanalyzeUser(d ReanalyzeData) (string, error) {
	if strings.TrimSpace(d.OriginalSummary) == "" {
		d.OriginalSummary = "(none)"
	}
	return render(s.reanalyze, d)
}

func render(t *template.Template, data any) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}

func loadFile(dir, name string) (string, error) {
	if dir != "" {
		p := filepath.Join(dir, name)
		if b, err := os.ReadFile(p); err == nil && len(bytes.TrimSpace(b)) > 0 {
			return strings.TrimSpace(string(b)), nil
		}
	}
	b, err := embedded.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("prompt %q not found in %q or embedded set: %w", name, dir, err)
	}
	return strings.TrimSpace(string(b)), nil
}
