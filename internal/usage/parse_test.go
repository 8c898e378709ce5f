package usage

import (
	"errors"
	"testing"

	"github.com/clawdesk/clawdesk/internal/apperr"
)

func f64(v float64) *float64 { return &v }

func eqNum(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func TestParseJSON_Aliases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Totals
	}{
		{"camel", `{"totals":{"tokensIn":1,"tokensOut":2,"cost":0.5}}`, Totals{f64(1), f64(2), f64(0.5)}},
		{"snake", `{"totals":{"tokens_in":3,"tokens_out":4,"total_cost":1.5}}`, Totals{f64(3), f64(4), f64(1.5)}},
		{"summary block", `{"summary":{"input":5,"output":6,"usd":"2.25"}}`, Totals{f64(5), f64(6), f64(2.25)}},
		{"null falls through", `{"totals":{"tokensIn":null,"tokens_in":7}}`, Totals{TokensIn: f64(7)}},
		{"missing", `{}`, Totals{}},
		{"non-numeric string", `{"totals":{"cost":"n/a"}}`, Totals{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := ParseJSON(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			got := p.Usage.Totals
			if !eqNum(got.TokensIn, tt.want.TokensIn) || !eqNum(got.TokensOut, tt.want.TokensOut) || !eqNum(got.Cost, tt.want.Cost) {
				t.Errorf("totals = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseJSON_Breakdowns(t *testing.T) {
	t.Parallel()

	raw := `{
		"providers": [{"provider":"anthropic","token_count":10,"usd":0.1,"calls":2,"notes":"ok"}, {"tokens":1}],
		"models": [{"model":"claude","tokens":8}],
		"byTool": [{"tool":"bash","count":4,"provider":"local"}]
	}`
	p, err := ParseJSON(raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.Format != FormatJSON {
		t.Errorf("format = %q", p.Format)
	}
	if len(p.Usage.ByProvider) != 1 {
		t.Fatalf("unnamed rows must be dropped: %+v", p.Usage.ByProvider)
	}
	prov := p.Usage.ByProvider[0]
	if prov.Name != "anthropic" || *prov.Tokens != 10 || *prov.Requests != 2 || *prov.Notes != "ok" {
		t.Errorf("provider = %+v", prov)
	}
	if len(p.Usage.ByModel) != 1 || p.Usage.ByModel[0].Name != "claude" {
		t.Errorf("models = %+v", p.Usage.ByModel)
	}
	tool := p.Usage.ByTool[0]
	if tool.Name != "bash" || *tool.Usage != 4 || *tool.Provider != "local" || tool.Cost != nil {
		t.Errorf("tool = %+v", tool)
	}
}

func TestParseJSON_Invalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "not json", "[1,2]", `{"totals":`} {
		if _, err := ParseJSON(raw); !errors.Is(err, apperr.ErrProcess) {
			t.Errorf("ParseJSON(%q) = %v, want process error", raw, err)
		}
	}
}

func TestParseText(t *testing.T) {
	t.Parallel()

	raw := `
Usage summary
Tokens in: 1200
tokens out = 340
Cost: $1.75
provider: anthropic, tokens: 1000
model=claude-sonnet, tokens=900
tool: bash, usage: 12
something unrelated: 99
`
	p := ParseText(raw)
	u := p.Usage
	if p.Format != FormatText {
		t.Errorf("format = %q", p.Format)
	}
	if !eqNum(u.Totals.TokensIn, f64(1200)) || !eqNum(u.Totals.TokensOut, f64(340)) || !eqNum(u.Totals.Cost, f64(1.75)) {
		t.Errorf("totals = in %v out %v cost %v", u.Totals.TokensIn, u.Totals.TokensOut, u.Totals.Cost)
	}
	if len(u.ByProvider) != 1 || u.ByProvider[0].Name != "anthropic" || *u.ByProvider[0].Tokens != 1000 {
		t.Errorf("providers = %+v", u.ByProvider)
	}
	if len(u.ByModel) != 1 || u.ByModel[0].Name != "claude-sonnet" {
		t.Errorf("models = %+v", u.ByModel)
	}
	if len(u.ByTool) != 1 || u.ByTool[0].Name != "bash" || *u.ByTool[0].Usage != 12 {
		t.Errorf("tools = %+v", u.ByTool)
	}
}

func TestParseText_NothingMatches(t *testing.T) {
	t.Parallel()

	u := ParseText("gateway offline\n\n[redacted]\n").Usage
	if u.Totals.TokensIn != nil || len(u.ByProvider)+len(u.ByModel)+len(u.ByTool) != 0 {
		t.Errorf("usage = %+v", u)
	}
}
