package usage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/clawdesk/clawdesk/internal/apperr"
)

// Report is a range of snapshots as returned by the history endpoints.
type Report struct {
	Range   string     `json:"range"`
	Entries []Snapshot `json:"entries"`
}

// csvHeader lists the flattened export columns. Per-provider, per-model,
// and per-tool rows are embedded as JSON.
var csvHeader = []string{
	"timestamp", "profile", "format",
	"tokensIn", "tokensOut", "cost",
	"byProvider", "byModel", "byTool", "notes",
}

// Export encodes r as "json" (the default when format is empty) or "csv"
// and returns the body with its content type.
func Export(r Report, format string) ([]byte, string, error) {
	switch format {
	case "", "json":
		if r.Entries == nil {
			r.Entries = []Snapshot{}
		}
		body, err := json.Marshal(r)
		if err != nil {
			return nil, "", fmt.Errorf("usage: encode json export: %w", err)
		}
		return body, "application/json", nil
	case "csv":
		body, err := encodeCSV(r.Entries)
		if err != nil {
			return nil, "", err
		}
		return body, "text/csv; charset=utf-8", nil
	default:
		return nil, "", apperr.Validation("unsupported export format: " + format)
	}
}

func encodeCSV(entries []Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("usage: write csv: %w", err)
	}
	for _, e := range entries {
		providers, _ := json.Marshal(e.ByProvider)
		models, _ := json.Marshal(e.ByModel)
		tools, _ := json.Marshal(e.ByTool)
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.Profile,
			string(e.Format),
			formatNumber(e.Totals.TokensIn),
			formatNumber(e.Totals.TokensOut),
			formatNumber(e.Totals.Cost),
			string(providers),
			string(models),
			string(tools),
			e.Notes,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("usage: write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("usage: write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatNumber(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
