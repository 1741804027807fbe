package analysis

import (
	"regexp"
	"strings"

	"bodyscan-coach/api/internal/util"
)

// MaxScanBytes bounds how much of a completion ExtractJSON looks at.
const MaxScanBytes = 1 << 20

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractJSON locates the JSON object embedded in a model completion.
//
// It is a best-effort heuristic, not a parser: a ```json fenced block wins,
// otherwise the span from the first '{' to the last '}' is returned as is.
// Only the first MaxScanBytes of text are examined.
func ExtractJSON(text string) (string, error) {
	scan := text
	if len(scan) > MaxScanBytes {
		scan = scan[:MaxScanBytes]
	}

	if m := fencedJSON.FindStringSubmatch(scan); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			return s, nil
		}
	}

	start := strings.IndexByte(scan, '{')
	end := strings.LastIndexByte(scan, '}')
	if start >= 0 && end > start {
		return scan[start : end+1], nil
	}

	return "", &ExtractionError{Preview: util.Truncate(text, PreviewLen)}
}
