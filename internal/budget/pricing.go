package budget

import "github.com/ignite/outreach-engine/internal/domain"

// Per-1k-token prices for the models the collaborators use. Unknown models
// fall back to the default rate.
var modelRates = map[string]float64{
	"gpt-4-turbo-preview":    0.01,
	"gpt-4":                  0.03,
	"text-embedding-3-large": 0.00013,
	"text-embedding-3-small": 0.00002,
}

const defaultRate = 0.01

// OperationCost estimates the cost in USD for a priced operation. When the
// token count is known it prices exactly; otherwise it uses per-operation
// token estimates (~500 tokens for enrichment, ~300 for a draft).
func OperationCost(op domain.Operation, model string, tokens int) float64 {
	rate, ok := modelRates[model]
	if !ok {
		rate = defaultRate
	}

	if tokens > 0 {
		return float64(tokens) / 1000 * rate
	}

	switch op {
	case domain.OpEnrichment:
		return rate * 5
	case domain.OpEmbedding:
		if ok {
			return rate
		}
		return 0.0001
	case domain.OpDraft, domain.OpReplyClassification:
		return rate * 3
	}
	return 0
}

// CostEstimate is a pre-flight cost projection for a batch of operations.
type CostEstimate struct {
	MinCost       float64            `json:"min_cost"`
	MaxCost       float64            `json:"max_cost"`
	EstimatedCost float64            `json:"estimated_cost"`
	Breakdown     map[string]float64 `json:"breakdown"`
}

// EstimateEnrichmentCost projects the cost of enriching n contacts,
// including the embedding pass, with a ±20% band.
func EstimateEnrichmentCost(n int, gptModel, embeddingModel string) CostEstimate {
	enrichment := OperationCost(domain.OpEnrichment, gptModel, 0) * float64(n)
	embedding := OperationCost(domain.OpEmbedding, embeddingModel, 0) * float64(n)
	total := enrichment + embedding

	return CostEstimate{
		MinCost:       total * 0.8,
		MaxCost:       total * 1.2,
		EstimatedCost: total,
		Breakdown: map[string]float64{
			"enrichment": enrichment,
			"embedding":  embedding,
		},
	}
}
