// Command msiparse runs the broadcast parser over memoranda saved to disk and
// writes the output table as CSV. It uses the same segmenter, transformer,
// and pipeline as the service, so its output matches a live run.
//
// Usage:
//
//	go run ./cmd/msiparse \
//	  -in HYDROPAC=data/DailyMemPAC.txt \
//	  -in HYDROLANT=data/DailyMemLAN.txt \
//	  -out out/msi.csv \
//	  -malformed-out out/malformed.json \
//	  -now 2022-05-04T13:00:00Z
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/msi-broadcast-etl/internal/adapter/csvout"
	"github.com/couchcryptid/msi-broadcast-etl/internal/adapter/msi"
	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"github.com/couchcryptid/msi-broadcast-etl/internal/observability"
	"github.com/couchcryptid/msi-broadcast-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

// inputs collects repeated -in SOURCE=PATH flags in order.
type inputs struct {
	order []string
	paths map[string]string
}

func (in *inputs) set(v string) error {
	source, path, ok := strings.Cut(v, "=")
	if !ok || source == "" || path == "" {
		return fmt.Errorf("want SOURCE=PATH, got %q", v)
	}
	if in.paths == nil {
		in.paths = make(map[string]string)
	}
	if _, dup := in.paths[source]; !dup {
		in.order = append(in.order, source)
	}
	in.paths[source] = path
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var in inputs
	flag.Func("in", "bulletin input as SOURCE=PATH (repeatable)", in.set)
	out := flag.String("out", "", "output path for the CSV table")
	malformedOut := flag.String("malformed-out", "", "optional output path for malformed reports as JSON")
	notificationOut := flag.String("notification-out", "", "optional output path for the notification HTML")
	rulesFile := flag.String("rules", "", "extraction rules YAML (default: built-in rules)")
	headerBlocks := flag.Int("header-blocks", domain.DefaultHeaderBlocks, "leading blocks to skip in each bulletin")
	now := flag.String("now", "", "fixed RFC3339 processing time for reproducible output")
	verbose := flag.Bool("v", false, "log pipeline progress to stderr")
	flag.Parse()

	if len(in.order) == 0 || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -in, -out")
	}

	clk := clockwork.NewRealClock()
	if *now != "" {
		t, err := time.Parse(time.RFC3339, *now)
		if err != nil {
			return fmt.Errorf("parse -now: %w", err)
		}
		clk = clockwork.NewFakeClockAt(t)
	}

	rules, err := domain.LoadRules(*rulesFile)
	if err != nil {
		return err
	}

	var logOut io.Writer = io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, nil))

	p := pipeline.New(in.order,
		msi.NewFileFetcher(in.paths),
		domain.NewSegmenter(*headerBlocks, clk),
		pipeline.NewTransformer(rules, clk, logger),
		logger,
		observability.NewMetrics(),
		pipeline.WithClock(clk),
		pipeline.WithSinks(csvout.NewWriter(*out, logger)),
	)

	result, err := p.Run(context.Background())
	for src, serr := range result.SourceErrors {
		log.Printf("%s: skipped: %v", src, serr)
	}
	if err != nil {
		return err
	}
	log.Printf("wrote %d rows to %s", len(result.Records), *out)

	if *malformedOut != "" {
		if err := writeJSON(*malformedOut, result.Malformed); err != nil {
			return fmt.Errorf("writing malformed reports: %w", err)
		}
		log.Printf("wrote %d malformed reports to %s", len(result.Malformed), *malformedOut)
	}
	if *notificationOut != "" && !result.Notification.IsEmpty() {
		if err := writeFile(*notificationOut, []byte(result.Notification.HTMLBody)); err != nil {
			return fmt.Errorf("writing notification: %w", err)
		}
		log.Printf("wrote notification to %s", *notificationOut)
	}

	printStats(result.Records)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// statsResult holds aggregated counts for printStats reporting.
type statsResult struct {
	sourceCounts map[string]int
	regionCounts map[string]int
	malformed    int
	points       int
	lines        int
	polygons     int
}

func collectStats(records []domain.OutputRecord) statsResult {
	s := statsResult{
		sourceCounts: make(map[string]int),
		regionCounts: make(map[string]int),
	}
	for _, rec := range records {
		s.sourceCounts[rec.Source]++
		row := domain.ToRow(rec)
		s.regionCounts[row.Region]++
		if rec.Malformed {
			s.malformed++
		}
		s.points += len(rec.Geometry.Points)
		s.lines += len(rec.Geometry.Lines)
		s.polygons += len(rec.Geometry.Polygons)
	}
	return s
}

func printStats(records []domain.OutputRecord) {
	s := collectStats(records)

	fmt.Println("\n--- Stats ---")
	fmt.Printf("Reports: %d (%d malformed)\n", len(records), s.malformed)
	fmt.Printf("Geometry: %d points, %d tracklines, %d polygons\n", s.points, s.lines, s.polygons)
	fmt.Println("By source:")
	printCounts(s.sourceCounts, 0)
	fmt.Println("Top regions:")
	printCounts(s.regionCounts, 10)
}

// printCounts prints counts in descending order, limited to top entries when
// top is positive.
func printCounts(counts map[string]int, top int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if top > 0 && len(keys) > top {
		keys = keys[:top]
	}
	for _, k := range keys {
		fmt.Printf("  %-40s %d\n", k, counts[k])
	}
}
