package analysis

import "strings"

var statusSynonyms = map[string]Status{
	"normal":            StatusNormal,
	"정상":                StatusNormal,
	"caution":           StatusCaution,
	"warning":           StatusCaution,
	"borderline":        StatusCaution,
	"주의":                StatusCaution,
	"needs-improvement": StatusNeedsImprovement,
	"needs improvement": StatusNeedsImprovement,
	"needs_improvement": StatusNeedsImprovement,
	"improve":           StatusNeedsImprovement,
	"개선 필요":             StatusNeedsImprovement,
	"개선필요":              StatusNeedsImprovement,
}

// NormalizeStatus maps the labels models tend to emit onto the Status enum.
// Unknown labels are returned unchanged.
func NormalizeStatus(s Status) Status {
	key := strings.ToLower(strings.TrimSpace(string(s)))
	if st, ok := statusSynonyms[key]; ok {
		return st
	}
	return Status(strings.TrimSpace(string(s)))
}

// ApplyResultPolicy tidies a freshly parsed result in place.
func ApplyResultPolicy(r *AnalysisResult) {
	r.OneLineSummary = strings.TrimSpace(r.OneLineSummary)
	r.SMSResult = strings.TrimSpace(r.SMSResult)
	for i := range r.Metrics {
		r.Metrics[i].Name = MetricName(strings.TrimSpace(string(r.Metrics[i].Name)))
		r.Metrics[i].Value = strings.TrimSpace(r.Metrics[i].Value)
		r.Metrics[i].Status = NormalizeStatus(r.Metrics[i].Status)
	}
}

// ApplyCorrections makes user-confirmed values authoritative in a regenerated
// result. Statuses the model re-assessed are kept when names line up.
func ApplyCorrections(r *AnalysisResult, corrected []Metric) {
	if len(corrected) == 0 {
		return
	}
	byName := make(map[MetricName]Status, len(r.Metrics))
	for _, m := range r.Metrics {
		byName[m.Name] = m.Status
	}
	out := CloneMetrics(corrected)
	for i := range out {
		if st, ok := byName[out[i].Name]; ok && st != "" {
			out[i].Status = st
		}
	}
	r.Metrics = out
}
