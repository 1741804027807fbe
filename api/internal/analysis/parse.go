package analysis

import (
	"encoding/json"

	"bodyscan-coach/api/internal/util"
)

// ParseResult decodes an extracted candidate into AnalysisResult.
// No repair is attempted: any decode error is returned as *ParseError.
func ParseResult(candidate string) (AnalysisResult, error) {
	var r AnalysisResult
	if err := json.Unmarshal([]byte(candidate), &r); err != nil {
		return AnalysisResult{}, &ParseError{
			Message: err.Error(),
			Preview: util.Truncate(candidate, PreviewLen),
		}
	}
	return r, nil
}
