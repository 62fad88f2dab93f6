// Command validate checks a cleaned CSV table against the raw JSON it was
// produced from: row counts, column layout, derived KPI values and outlier
// labels. With -db it also cross-checks the SQLite store.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -raw-json data/mock/telecom_tower_usage_sample.json \
//	  -csv data/cleaned_telecom_data.csv \
//	  -db data/telemetry.db
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
	"github.com/couchcryptid/tower-telemetry-etl/internal/store"
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

// csvRow is a parsed CSV row with field values keyed by header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

type table struct {
	header []string
	rows   []csvRow
}

func main() {
	rawJSON := flag.String("raw-json", "", "path to the raw telemetry JSON array")
	csvPath := flag.String("csv", "", "path to the cleaned CSV table")
	dbPath := flag.String("db", "", "optional SQLite store to cross-check")
	contamination := flag.Float64("contamination", 0.05, "expected outlier fraction")
	flag.Parse()

	if *rawJSON == "" || *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(os.Stdout, *rawJSON, *csvPath, *dbPath, *contamination))
}

func run(out io.Writer, rawPath, csvPath, dbPath string, contamination float64) int {
	fmt.Fprintln(out, "=== Tower Telemetry Integrity Validation ===")
	fmt.Fprintln(out)

	raw, err := loadJSON(rawPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load raw JSON: %v\n", err)
		return 1
	}
	tbl, err := loadCSV(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load CSV: %v\n", err)
		return 1
	}

	expected, rejected := transformAll(raw)

	phases := []*phase{
		validateSchema(tbl),
		validateCounts(tbl, len(raw), expected, rejected),
		validateDerived(tbl, expected),
		validateLabels(tbl, contamination),
	}
	if dbPath != "" {
		phases = append(phases, validateStore(dbPath, tbl))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Records: %d raw JSON, %d valid, %d rejected, %d CSV rows\n",
		len(raw), len(expected), rejected, len(tbl.rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadJSON(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func loadCSV(path string) (table, error) {
	f, err := os.Open(path)
	if err != nil {
		return table{}, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return table{}, err
	}
	if len(all) == 0 {
		return table{}, fmt.Errorf("no header in %s", path)
	}

	t := table{header: all[0]}
	for i, row := range all[1:] {
		fields := make(map[string]string, len(t.header))
		for j, h := range t.header {
			if j < len(row) {
				fields[h] = strings.TrimSpace(row[j])
			}
		}
		t.rows = append(t.rows, csvRow{lineNum: i + 2, fields: fields})
	}
	return t, nil
}

// transformAll re-derives the expected readings, keyed by ID.
func transformAll(raw []json.RawMessage) (map[string]domain.TowerReading, int) {
	expected := make(map[string]domain.TowerReading, len(raw))
	rejected := 0
	for i, rec := range raw {
		r, err := domain.ParseRawEvent(domain.RawEvent{Value: rec, Offset: int64(i)})
		if err != nil {
			rejected++
			continue
		}
		r = domain.EnrichReading(r)
		expected[r.ID] = r
	}
	return expected, rejected
}

// ── Phase 1: Schema ──

func validateSchema(t table) *phase {
	p := &phase{name: "Phase 1: Column layout"}
	if !slices.Equal(t.header, domain.Columns()) {
		p.errorf("header mismatch:\n      got  %v\n      want %v", t.header, domain.Columns())
	}
	return p
}

// ── Phase 2: Counts ──

func validateCounts(t table, rawCount int, expected map[string]domain.TowerReading, rejected int) *phase {
	p := &phase{name: "Phase 2: Row counts"}
	if len(t.rows) != len(expected) {
		p.errorf("CSV has %d rows, expected %d valid records (%d raw, %d rejected)",
			len(t.rows), len(expected), rawCount, rejected)
	}
	seen := make(map[string]int, len(t.rows))
	for _, row := range t.rows {
		id := row.fields["id"]
		if prev, dup := seen[id]; dup {
			p.errorf("line %d: duplicate id %s (first on line %d)", row.lineNum, id, prev)
		}
		seen[id] = row.lineNum
	}
	return p
}

// ── Phase 3: Derived values ──

var derivedColumns = []string{"latency_sec", "bandwidth_mbps", "bandwidth_numeric", "call_drop_rate", "dropped_calls", "total_calls"}

func validateDerived(t table, expected map[string]domain.TowerReading) *phase {
	p := &phase{name: "Phase 3: Derived KPIs"}
	for _, row := range t.rows {
		id := row.fields["id"]
		want, ok := expected[id]
		if !ok {
			p.errorf("line %d: id %s not produced by any raw record", row.lineNum, id)
			continue
		}
		for _, col := range derivedColumns {
			wantV, _ := want.Numeric(col)
			got, err := strconv.ParseFloat(row.fields[col], 64)
			if err != nil {
				p.errorf("line %d: %s=%q is not a number", row.lineNum, col, row.fields[col])
				continue
			}
			if !floatEq(got, wantV) {
				p.errorf("line %d: %s=%v, expected %v", row.lineNum, col, got, wantV)
			}
		}
		if row.fields["network_type"] != want.NetworkType {
			p.errorf("line %d: network_type=%q, expected %q", row.lineNum, row.fields["network_type"], want.NetworkType)
		}
	}
	return p
}

// ── Phase 4: Outlier labels ──

func validateLabels(t table, contamination float64) *phase {
	p := &phase{name: "Phase 4: Outlier labels"}
	anomalies := 0
	for _, row := range t.rows {
		switch row.fields["anomaly"] {
		case domain.LabelAnomaly:
			anomalies++
		case domain.LabelNormal:
		default:
			p.errorf("line %d: anomaly=%q", row.lineNum, row.fields["anomaly"])
		}
		score, err := strconv.ParseFloat(row.fields["anomaly_score"], 64)
		if err != nil || score < 0 || score > 1 {
			p.errorf("line %d: anomaly_score=%q outside [0, 1]", row.lineNum, row.fields["anomaly_score"])
		}
	}
	if limit := int(math.Ceil(contamination * float64(len(t.rows)))); anomalies > limit {
		p.errorf("%d rows labelled %s, at most %d expected at contamination %v",
			anomalies, domain.LabelAnomaly, limit, contamination)
	}
	return p
}

// ── Phase 5: Store ──

func validateStore(path string, t table) *phase {
	p := &phase{name: "Phase 5: Store consistency"}
	ctx := context.Background()

	if _, err := os.Stat(path); err != nil {
		p.errorf("open %s: %v", path, err)
		return p
	}
	db, err := store.Open(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		p.errorf("open %s: %v", path, err)
		return p
	}
	defer db.Close()

	stored, err := db.ListAll(ctx)
	if err != nil {
		p.errorf("list readings: %v", err)
		return p
	}
	ids := make(map[string]bool, len(stored))
	for _, r := range stored {
		ids[r.ID] = true
	}
	for _, row := range t.rows {
		if !ids[row.fields["id"]] {
			p.errorf("line %d: id %s missing from store", row.lineNum, row.fields["id"])
		}
	}
	return p
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
