package annotation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/csheth/readmark/internal/domain"
)

// Locate finds selected within body and returns its byte range. Readers show
// wrapped, whitespace-collapsed paragraphs, so when the selection does not
// occur verbatim it is matched with any whitespace run between its words.
// Among several occurrences the one starting closest to hint wins, the later
// one on a tie since hints mark where a selection or its line starts. A
// negative hint picks the first.
func Locate(body, selected string, hint int) (int, int, error) {
	selected = strings.TrimSpace(selected)
	if selected == "" {
		return 0, 0, fmt.Errorf("%w: empty selection", domain.ErrValidation)
	}
	if ranges := literalRanges(body, selected); len(ranges) > 0 {
		r := closest(ranges, hint)
		return r[0], r[1], nil
	}
	words := strings.Fields(selected)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	pattern, err := regexp.Compile(strings.Join(quoted, `[\s\x{feff}]+`))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if ranges := pattern.FindAllStringIndex(body, -1); len(ranges) > 0 {
		r := closest(ranges, hint)
		return r[0], r[1], nil
	}
	return 0, 0, fmt.Errorf("%w: selection %q not found in document", domain.ErrValidation, selected)
}

func literalRanges(body, needle string) [][]int {
	var ranges [][]int
	from := 0
	for from <= len(body)-len(needle) {
		idx := strings.Index(body[from:], needle)
		if idx < 0 {
			break
		}
		start := from + idx
		ranges = append(ranges, []int{start, start + len(needle)})
		from = start + 1
	}
	return ranges
}

func closest(ranges [][]int, hint int) []int {
	if hint < 0 {
		return ranges[0]
	}
	best := ranges[0]
	bestDist := distance(best[0], hint)
	for _, r := range ranges[1:] {
		if d := distance(r[0], hint); d <= bestDist {
			best, bestDist = r, d
		}
	}
	return best
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
