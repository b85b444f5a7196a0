package cloud

// Price is USD per million tokens.
type Price struct {
	InputPerM  float64
	OutputPerM float64
}

// prices is a static table; "*" is the provider-wide fallback.
var prices = map[string]map[string]Price{
	"anthropic": {
		"claude-3-5-haiku-latest":  {0.80, 4.00},
		"claude-3-5-sonnet-latest": {3.00, 15.00},
		"claude-sonnet-4-0":        {3.00, 15.00},
		"*":                        {3.00, 15.00},
	},
	"openai": {
		"gpt-4o":      {2.50, 10.00},
		"gpt-4o-mini": {0.15, 0.60},
		"*":           {2.50, 10.00},
	},
	"groq": {
		"llama-3.1-8b-instant":    {0.05, 0.08},
		"llama-3.3-70b-versatile": {0.59, 0.79},
		"*":                       {0.59, 0.79},
	},
	"deepseek": {
		"deepseek-chat":     {0.27, 1.10},
		"deepseek-reasoner": {0.55, 2.19},
		"*":                 {0.55, 2.19},
	},
	"mistral": {
		"mistral-small-latest": {0.20, 0.60},
		"mistral-large-latest": {2.00, 6.00},
		"*":                    {2.00, 6.00},
	},
	"together": {
		"*": {0.88, 0.88},
	},
	"openrouter": {
		"*": {1.00, 3.00},
	},
}

// PriceFor returns the table price for provider/model and whether one exists.
func PriceFor(provider, model string) (Price, bool) {
	byModel, ok := prices[provider]
	if !ok {
		return Price{}, false
	}
	if p, ok := byModel[model]; ok {
		return p, true
	}
	p, ok := byModel["*"]
	return p, ok
}

// Cost prices one completion. Unknown providers cost zero.
func Cost(provider, model string, inputTokens, outputTokens int) float64 {
	p, _ := PriceFor(provider, model)
	return (float64(inputTokens)*p.InputPerM + float64(outputTokens)*p.OutputPerM) / 1e6
}
