// Command validate checks an extraction rules file and, optionally, an output
// table produced by the service or msiparse. It verifies rule integrity, the
// table's schema and cell formats, and that re-parsing the source bulletins
// yields the same reports.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -rules config/rules.yaml \
//	  -csv out/msi.csv \
//	  -bulletin HYDROPAC=data/DailyMemPAC.txt
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// bulletins collects repeated -bulletin SOURCE=PATH flags.
type bulletins map[string]string

func (b bulletins) set(v string) error {
	source, path, ok := strings.Cut(v, "=")
	if !ok || source == "" || path == "" {
		return fmt.Errorf("want SOURCE=PATH, got %q", v)
	}
	b[source] = path
	return nil
}

func main() {
	rulesFile := flag.String("rules", "", "extraction rules YAML (default: built-in rules)")
	csvPath := flag.String("csv", "", "output table to validate")
	headerBlocks := flag.Int("header-blocks", domain.DefaultHeaderBlocks, "leading blocks skipped when re-parsing bulletins")
	sources := bulletins{}
	flag.Func("bulletin", "source bulletin as SOURCE=PATH, cross-checked against -csv (repeatable)", sources.set)
	flag.Parse()

	if len(sources) > 0 && *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*rulesFile, *csvPath, *headerBlocks, sources))
}

func run(rulesFile, csvPath string, headerBlocks int, sources bulletins) int {
	fmt.Println("=== MSI Broadcast Validation ===")
	fmt.Println()

	rules, err := domain.LoadRules(rulesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load rules: %v\n", err)
		return 1
	}

	phases := []*phase{validateRules(rules)}

	var rows [][]string
	if csvPath != "" {
		rows, err = loadCSV(csvPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load output table: %v\n", err)
			return 1
		}
		phases = append(phases, validateTable(rows))
	}
	if len(sources) > 0 {
		phases = append(phases, validateReparse(rows, rules, headerBlocks, sources))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rules: %d corrections, %d exception keywords, %d countries\n",
		len(rules.Corrections), len(rules.ExceptionKeywords), len(rules.Countries))
	if csvPath != "" {
		fmt.Printf("Table: %d rows\n", max(len(rows)-1, 0))
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("empty table %s", path)
	}
	return all, nil
}

// ── Phase 1: Rules ──
// Corrections must change the text they match, and no table may repeat an
// entry. Matching is case-sensitive against upper-case bulletin text.

func validateRules(r domain.Rules) *phase {
	p := &phase{name: "Phase 1: Rules Integrity"}

	seen := make(map[string]bool)
	for i, c := range r.Corrections {
		if c.Find == c.Replace {
			p.errorf("correction %d: find and replace are identical (%q)", i, c.Find)
		}
		if seen[c.Find] {
			p.errorf("correction %d: duplicate find %q", i, c.Find)
		}
		seen[c.Find] = true
	}

	checkList(p, "exception_keywords", r.ExceptionKeywords)
	checkList(p, "vessel_terminators", r.VesselTerminators)
	checkList(p, "vessel_exclusions", r.VesselExclusions)
	checkList(p, "countries", r.Countries)
	return p
}

func checkList(p *phase, name string, values []string) {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v != strings.ToUpper(v) {
			p.errorf("%s: %q is not upper case and will never match", name, v)
		}
		if seen[v] {
			p.errorf("%s: duplicate entry %q", name, v)
		}
		seen[v] = true
	}
}

// ── Phase 2: Table ──
// Validates the header, column count, and the format of every cell that has
// one: RFC3339 timestamps, placeholders, and WKT geometry types.

var wktPrefixes = map[string]string{
	"points":     "MULTIPOINT",
	"tracklines": "MULTILINESTRING",
	"polygons":   "MULTIPOLYGON",
}

func validateTable(rows [][]string) *phase {
	p := &phase{name: "Phase 2: Output Table Format"}

	if !slices.Equal(rows[0], domain.RowHeader) {
		p.errorf("header mismatch: got %v", rows[0])
		return p
	}
	col := make(map[string]int, len(domain.RowHeader))
	for i, h := range domain.RowHeader {
		col[h] = i
	}

	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != len(domain.RowHeader) {
			p.errorf("line %d: %d columns, want %d", line, len(row), len(domain.RowHeader))
			continue
		}
		for _, name := range []string{"message_dtg", "in_force", "cancellation_date"} {
			if v := row[col[name]]; v != "" {
				if _, err := time.Parse(time.RFC3339, v); err != nil {
					p.errorf("line %d: %s %q is not RFC3339", line, name, v)
				}
			}
		}
		for _, name := range []string{"source", "nav_area", "region", "vessels", "raw_report"} {
			if row[col[name]] == "" {
				p.errorf("line %d: %s is empty", line, name)
			}
		}
		for name, prefix := range wktPrefixes {
			if v := row[col[name]]; !strings.HasPrefix(v, prefix) {
				p.errorf("line %d: %s %q is not %s", line, name, v, prefix)
			}
		}
	}
	return p
}

// ── Phase 3: Re-parse ──
// Re-parses the source bulletins and checks the table holds the same raw
// reports per source.

func validateReparse(rows [][]string, rules domain.Rules, headerBlocks int, sources bulletins) *phase {
	p := &phase{name: "Phase 3: Re-parse Consistency"}

	want := make(map[string][]string)
	segmenter := domain.NewSegmenter(headerBlocks, clockwork.NewRealClock())
	for source, path := range sources {
		data, err := os.ReadFile(path)
		if err != nil {
			p.errorf("%s: %v", source, err)
			continue
		}
		for _, r := range segmenter.Split(domain.Bulletin{Source: source, Text: string(data)}) {
			want[source] = append(want[source], rules.Correct(r.Text))
		}
	}

	got := make(map[string][]string)
	for _, row := range rows[1:] {
		if len(row) != len(domain.RowHeader) {
			continue
		}
		if _, ok := sources[row[0]]; ok {
			got[row[0]] = append(got[row[0]], row[8])
		}
	}

	for source := range sources {
		w, g := want[source], got[source]
		if len(w) != len(g) {
			p.errorf("%s: bulletin has %d reports, table has %d", source, len(w), len(g))
			continue
		}
		for i := range w {
			if w[i] != g[i] {
				p.errorf("%s: report %d differs from table row", source, i+1)
			}
		}
	}
	return p
}
