package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-knowledge-be/internal/constant"
	"ai-knowledge-be/internal/pkg/logger"
	"ai-knowledge-be/pkg/llm"
)

// Query type constants
const (
	QueryTypeProductInfo  = "product_info"
	QueryTypeComparison   = "comparison"
	QueryTypeClinicalData = "clinical_data"
	QueryTypeDosage       = "dosage"
	QueryTypeSideEffects  = "side_effects"
	QueryTypeGeneral      = "general"
)

// Classification is the structured outcome of query analysis.
type Classification struct {
	Categories     []string `json:"categories"`
	QueryType      string   `json:"query_type"`
	RequiredAgents []string `json:"required_agents"`
	Priority       string   `json:"priority"`
	Reasoning      string   `json:"reasoning"`
}

// Classifier maps a query to candidate categories and a query type.
// Model or parse failures never surface: a conservative default
// classification is returned instead.
type Classifier struct {
	llmProvider llm.LLMProvider
	log         logger.ILogger
}

func NewClassifier(llmProvider llm.LLMProvider, log logger.ILogger) *Classifier {
	return &Classifier{
		llmProvider: llmProvider,
		log:         log,
	}
}

func (c *Classifier) Classify(ctx context.Context, query string) *Classification {
	prompt := c.buildPrompt(query)

	response, err := c.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		c.log.Warn("classifier", "classification call failed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return fallbackClassification()
	}

	classification, err := parseClassification(response)
	if err != nil {
		c.log.Warn("classifier", "classification parse failed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return fallbackClassification()
	}

	return classification
}

func (c *Classifier) buildPrompt(query string) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are a supervisor agent responsible for orchestrating product knowledge queries for a pharmaceutical sales team.\n")
	prompt.WriteString("You do NOT answer questions. You only analyze and route them.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<user_query>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</user_query>\n\n")

	prompt.WriteString(fmt.Sprintf("Available product categories: %s\n\n", strings.Join(constant.AllCategories(), ", ")))

	prompt.WriteString("Based on the query, determine:\n")
	prompt.WriteString("1. What product categories are relevant\n")
	prompt.WriteString("2. What type of information is being requested\n")
	prompt.WriteString("3. What agents should be involved\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY a JSON object:\n")
	prompt.WriteString("{\n")
	prompt.WriteString(`  "categories": ["list", "of", "relevant", "categories"],` + "\n")
	prompt.WriteString(`  "query_type": "product_info|comparison|clinical_data|dosage|side_effects|general",` + "\n")
	prompt.WriteString(`  "required_agents": ["list", "of", "agent", "names"],` + "\n")
	prompt.WriteString(`  "priority": "high|medium|low",` + "\n")
	prompt.WriteString(`  "reasoning": "explanation of your decision"` + "\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

func parseClassification(response string) (*Classification, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var classification Classification
	if err := json.Unmarshal([]byte(jsonContent), &classification); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	if classification.QueryType == "" {
		classification.QueryType = QueryTypeGeneral
	}
	if classification.Priority == "" {
		classification.Priority = "medium"
	}

	// Drop categories outside the fixed set
	valid := make([]string, 0, len(classification.Categories))
	for _, cat := range classification.Categories {
		if constant.IsValidCategory(cat) {
			valid = append(valid, cat)
		}
	}
	classification.Categories = valid

	return &classification, nil
}

func fallbackClassification() *Classification {
	return &Classification{
		Categories:     []string{},
		QueryType:      QueryTypeGeneral,
		RequiredAgents: []string{"entity_identifier", "retrieval_answer"},
		Priority:       "medium",
		Reasoning:      "Default analysis",
	}
}
