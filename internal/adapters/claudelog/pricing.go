package claudelog

import "strings"

// modelPricing is dollars per 1M tokens.
type modelPricing struct {
	input      float64
	output     float64
	cacheWrite float64
	cacheRead  float64
}

// Pricing by model family. Claude Code reports full model IDs like
// "claude-opus-4-20250514"; we price by family substring.
var pricing = map[string]modelPricing{
	"opus":   {input: 15.0, output: 75.0, cacheWrite: 18.75, cacheRead: 1.50},
	"sonnet": {input: 3.0, output: 15.0, cacheWrite: 3.75, cacheRead: 0.30},
	"haiku":  {input: 0.80, output: 4.0, cacheWrite: 1.0, cacheRead: 0.08},
}

// costUSD estimates the cost of one message. Unknown families price as
// sonnet, matching how most unrecognized IDs have priced historically.
func costUSD(model string, input, output, cacheRead, cacheWrite int64) float64 {
	family := "sonnet"
	lower := strings.ToLower(model)
	for name := range pricing {
		if strings.Contains(lower, name) {
			family = name
			break
		}
	}
	p := pricing[family]
	const million = 1_000_000
	return float64(input)*p.input/million +
		float64(output)*p.output/million +
		float64(cacheRead)*p.cacheRead/million +
		float64(cacheWrite)*p.cacheWrite/million
}
