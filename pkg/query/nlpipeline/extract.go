/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package nlpipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	fencedSQL        = regexp.MustCompile(`(?is)` + "```sql" + `\s*(.+?)` + "```")
	fencedGeneric    = regexp.MustCompile(`(?is)` + "```" + `\s*(.+?)` + "```")
	confidencePhrase = regexp.MustCompile(`(?i)confidence[^0-9]{0,10}(0?\.\d+|1(?:\.0+)?)`)
)

// extractSQL pulls the single SQL statement and, if present, the
// model's stated confidence out of a chat completion. The prompt
// template asks for a fenced or bare SELECT followed by a one-line
// confidence explanation; extractSQL tolerates either shape and falls
// back to a confidence of 0 when none is stated.
func extractSQL(response string) (string, float64, error) {
	confidence := parseConfidence(response)

	if m := fencedSQL.FindStringSubmatch(response); len(m) == 2 {
		return strings.TrimSpace(m[1]), confidence, nil
	}
	if m := fencedGeneric.FindStringSubmatch(response); len(m) == 2 && looksLikeSQL(m[1]) {
		return strings.TrimSpace(m[1]), confidence, nil
	}

	idx := firstStatementIndex(response)
	if idx < 0 {
		return "", 0, fmt.Errorf("no SELECT or WITH statement found in model response")
	}
	rest := response[idx:]
	if nl := strings.Index(rest, "\n\n"); nl >= 0 {
		rest = rest[:nl]
	}
	stmt := strings.TrimSpace(rest)
	if stmt == "" {
		return "", 0, fmt.Errorf("no SELECT or WITH statement found in model response")
	}
	return stmt, confidence, nil
}

func looksLikeSQL(s string) bool {
	upper := strings.ToUpper(strings.TrimSpace(s))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

func firstStatementIndex(text string) int {
	upper := strings.ToUpper(text)
	selIdx := strings.Index(upper, "SELECT")
	withIdx := strings.Index(upper, "WITH")
	switch {
	case selIdx < 0 && withIdx < 0:
		return -1
	case selIdx < 0:
		return withIdx
	case withIdx < 0:
		return selIdx
	case withIdx < selIdx:
		return withIdx
	default:
		return selIdx
	}
}

func parseConfidence(response string) float64 {
	m := confidencePhrase.FindStringSubmatch(response)
	if len(m) != 2 {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}
