package layout

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/invoiceflow/invoice-extractor/constants"
)

// Pattern is the outcome of classifying an invoice's tabular layout.
type Pattern struct {
	Family          string
	Key             string // family plus detected column labels, e.g. "pattern_d:QUANTITY:WEIGHT:RATE"
	DetectedColumns map[Role]string
	Confidence      float64
}

// GenericPattern returns the degenerate fallback used when classification
// finds nothing, and for the orchestrator's last-resort retry.
func GenericPattern() Pattern {
	return Pattern{
		Family:     Generic,
		Key:        Generic,
		Confidence: constants.GenericConfidenceFloor,
	}
}

var tableMarker = regexp.MustCompile(`\n-+\s*TABLE\s+\d+\.\d+\s*-+\n`)

// Classify scores text against the structural catalog and against semantic
// column roles detected in the first table's header row. It is a pure
// function: the same text always yields the same Pattern, including for
// empty input (generic at the confidence floor).
func Classify(text string) Pattern {
	upper := strings.ToUpper(text)

	detected := detectColumns(text)

	bestFamily := Generic
	bestScore := 0.0
	var bestEntry *catalogEntry
	for fi := range catalog {
		f := &catalog[fi]
		for ei := range f.entries {
			e := &f.entries[ei]
			found := 0
			for _, h := range e.headers {
				if strings.Contains(upper, strings.ToUpper(h)) {
					found++
				}
			}
			score := e.confidence * float64(found) / float64(len(e.headers))
			if score > bestScore {
				bestScore = score
				bestFamily = f.name
				bestEntry = e
			}
		}
	}

	p := Pattern{
		Family:          bestFamily,
		Key:             Generic,
		DetectedColumns: detected,
		Confidence:      bestScore,
	}

	switch {
	case len(detected) > 0:
		// Semantic detection takes precedence for the key; literal matching
		// still picks the family.
		qty := columnOrDefault(detected, RoleQuantity, "QUANTITY")
		wt := columnOrDefault(detected, RoleWeight, "WEIGHT")
		rate := columnOrDefault(detected, RoleRate, "RATE")
		p.Key = fmt.Sprintf("%s:%s:%s:%s", bestFamily, qty, wt, rate)
		if p.Confidence < constants.SemanticConfidenceFloor {
			p.Confidence = constants.SemanticConfidenceFloor
		}
	case bestEntry != nil && bestScore > constants.LiteralMatchThreshold:
		if bestEntry.quantityCol != "" {
			wt := bestEntry.weightCol
			if wt == "" {
				wt = "WEIGHT"
			}
			p.Key = fmt.Sprintf("%s:%s:%s", bestFamily, bestEntry.quantityCol, wt)
		} else {
			heads := make([]string, 0, 3)
			for _, h := range bestEntry.headers[:min(3, len(bestEntry.headers))] {
				heads = append(heads, strings.ReplaceAll(h, " ", "_"))
			}
			p.Key = bestFamily + ":" + strings.Join(heads, "-")
		}
	default:
		p.Family = Generic
		p.Key = Generic
		if p.Confidence < constants.GenericConfidenceFloor {
			p.Confidence = constants.GenericConfidenceFloor
		}
	}

	return p
}

// detectColumns classifies the header row of the first detected table into
// semantic roles via keyword membership.
func detectColumns(text string) map[Role]string {
	tables := TablesFromText(text)
	if len(tables) == 0 || len(tables[0]) == 0 {
		return nil
	}
	detected := make(map[Role]string)
	for _, header := range tables[0][0] {
		h := strings.ToUpper(strings.TrimSpace(header))
		if h == "" {
			continue
		}
		for _, rk := range roleKeywords {
			if containsAny(h, rk.terms) {
				// First header wins per role; a later "PER" column must not
				// displace the actual "RATE" header.
				if _, seen := detected[rk.role]; !seen {
					detected[rk.role] = h
				}
				break
			}
		}
	}
	if len(detected) == 0 {
		return nil
	}
	return detected
}

// TablesFromText recovers table matrices from the delimited blocks the text
// extractor emits ("--- TABLE p.i ---" followed by " | "-joined cells).
func TablesFromText(text string) [][][]string {
	var tables [][][]string
	sections := tableMarker.Split(text, -1)
	if len(sections) > 1 {
		sections = sections[1:]
	}
	for _, section := range sections {
		var rows [][]string
		for _, line := range strings.Split(strings.TrimSpace(section), "\n") {
			if !strings.Contains(line, " | ") {
				continue
			}
			cells := strings.Split(line, " | ")
			for i := range cells {
				cells[i] = strings.TrimSpace(cells[i])
			}
			rows = append(rows, cells)
		}
		if len(rows) > 0 {
			tables = append(tables, rows)
		}
	}
	return tables
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func columnOrDefault(m map[Role]string, r Role, def string) string {
	if v, ok := m[r]; ok {
		return v
	}
	return def
}
