// Package usage captures, caches, stores, and exports token and cost
// snapshots reported by `openclaw status --usage`.
package usage

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/clawdesk/clawdesk/internal/apperr"
)

// Format tags which parser produced a Parsed value.
type Format string

// Parser formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Totals are the aggregate figures of a snapshot. Every field is optional.
type Totals struct {
	TokensIn  *float64 `json:"tokensIn"`
	TokensOut *float64 `json:"tokensOut"`
	Cost      *float64 `json:"cost"`
}

// ProviderUsage is one per-provider row.
type ProviderUsage struct {
	Name     string   `json:"name"`
	Tokens   *float64 `json:"tokens"`
	Cost     *float64 `json:"cost"`
	Requests *float64 `json:"requests"`
	Notes    *string  `json:"notes"`
}

// ModelUsage is one per-model row.
type ModelUsage struct {
	Name   string   `json:"name"`
	Tokens *float64 `json:"tokens"`
	Cost   *float64 `json:"cost"`
}

// ToolUsage is one per-tool row.
type ToolUsage struct {
	Name     string   `json:"name"`
	Usage    *float64 `json:"usage"`
	Cost     *float64 `json:"cost"`
	Provider *string  `json:"provider"`
}

// Usage is the normalized, best-effort record extracted from CLI output.
type Usage struct {
	Totals     Totals          `json:"totals"`
	ByProvider []ProviderUsage `json:"byProvider"`
	ByModel    []ModelUsage    `json:"byModel"`
	ByTool     []ToolUsage     `json:"byTool"`
}

// Parsed is the result of one of the two parsers, tagged by which one ran.
type Parsed struct {
	Format Format
	Usage  Usage
}

func emptyUsage() Usage {
	return Usage{
		ByProvider: []ProviderUsage{},
		ByModel:    []ModelUsage{},
		ByTool:     []ToolUsage{},
	}
}

// first returns the first of paths that is present and not null.
func first(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func number(r gjson.Result, paths ...string) *float64 {
	v := first(r, paths...)
	switch v.Type {
	case gjson.Number:
		f := v.Float()
		return &f
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func text(r gjson.Result, paths ...string) string {
	v := first(r, paths...)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

func optText(r gjson.Result, paths ...string) *string {
	if s := text(r, paths...); s != "" {
		return &s
	}
	return nil
}

// ParseJSON extracts usage from the CLI's JSON output. Field names vary
// between CLI versions, so each field accepts several aliases. Rows
// without a name are dropped.
func ParseJSON(raw string) (Parsed, error) {
	raw = strings.TrimSpace(raw)
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return Parsed{}, apperr.Process("usage output is not valid JSON", nil, raw, "")
	}
	doc := gjson.Parse(raw)
	u := emptyUsage()

	totals := first(doc, "totals", "summary")
	u.Totals = Totals{
		TokensIn:  number(totals, "tokensIn", "tokens_in", "input"),
		TokensOut: number(totals, "tokensOut", "tokens_out", "output"),
		Cost:      number(totals, "cost", "usd", "total_cost"),
	}

	first(doc, "byProvider", "providers").ForEach(func(_, e gjson.Result) bool {
		if name := text(e, "name", "provider"); name != "" {
			u.ByProvider = append(u.ByProvider, ProviderUsage{
				Name:     name,
				Tokens:   number(e, "tokens", "token_count"),
				Cost:     number(e, "cost", "usd"),
				Requests: number(e, "requests", "calls"),
				Notes:    optText(e, "notes"),
			})
		}
		return true
	})
	first(doc, "byModel", "models").ForEach(func(_, e gjson.Result) bool {
		if name := text(e, "name", "model"); name != "" {
			u.ByModel = append(u.ByModel, ModelUsage{
				Name:   name,
				Tokens: number(e, "tokens", "token_count"),
				Cost:   number(e, "cost", "usd"),
			})
		}
		return true
	})
	first(doc, "byTool", "tools").ForEach(func(_, e gjson.Result) bool {
		if name := text(e, "name", "tool"); name != "" {
			u.ByTool = append(u.ByTool, ToolUsage{
				Name:     name,
				Usage:    number(e, "usage", "count"),
				Cost:     number(e, "cost", "usd"),
				Provider: optText(e, "provider"),
			})
		}
		return true
	})
	return Parsed{Format: FormatJSON, Usage: u}, nil
}

var (
	tokensInRe  = regexp.MustCompile(`(?i)tokens?\s*in\s*[:=]\s*(\d+)`)
	tokensOutRe = regexp.MustCompile(`(?i)tokens?\s*out\s*[:=]\s*(\d+)`)
	costRe      = regexp.MustCompile(`(?i)cost\s*[:=]\s*\$?([0-9.]+)`)
	providerRe  = regexp.MustCompile(`(?i)provider\s*[:=]\s*([^,]+),?\s*tokens?\s*[:=]\s*(\d+)`)
	modelRe     = regexp.MustCompile(`(?i)model\s*[:=]\s*([^,]+),?\s*tokens?\s*[:=]\s*(\d+)`)
	toolRe      = regexp.MustCompile(`(?i)tool\s*[:=]\s*([^,]+),?\s*usage\s*[:=]\s*(\d+)`)
)

func parseFloat(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParseText extracts usage from human-readable output line by line.
// Lines that match nothing are ignored.
func ParseText(raw string) Parsed {
	u := emptyUsage()
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := tokensInRe.FindStringSubmatch(line); m != nil {
			u.Totals.TokensIn = parseFloat(m[1])
		}
		if m := tokensOutRe.FindStringSubmatch(line); m != nil {
			u.Totals.TokensOut = parseFloat(m[1])
		}
		if m := costRe.FindStringSubmatch(line); m != nil {
			if f := parseFloat(m[1]); f != nil {
				u.Totals.Cost = f
			}
		}
		if m := providerRe.FindStringSubmatch(line); m != nil {
			u.ByProvider = append(u.ByProvider, ProviderUsage{Name: strings.TrimSpace(m[1]), Tokens: parseFloat(m[2])})
		}
		if m := modelRe.FindStringSubmatch(line); m != nil {
			u.ByModel = append(u.ByModel, ModelUsage{Name: strings.TrimSpace(m[1]), Tokens: parseFloat(m[2])})
		}
		if m := toolRe.FindStringSubmatch(line); m != nil {
			u.ByTool = append(u.ByTool, ToolUsage{Name: strings.TrimSpace(m[1]), Usage: parseFloat(m[2])})
		}
	}
	return Parsed{Format: FormatText, Usage: u}
}
