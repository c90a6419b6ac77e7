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

// Identification is the structured outcome of entity extraction.
type Identification struct {
	Products         []string `json:"identified_products"`
	Categories       []string `json:"relevant_categories"`
	TherapeuticAreas []string `json:"therapeutic_areas"`
	Confidence       float64  `json:"confidence_score"`
	Reasoning        string   `json:"reasoning"`
}

// Identifier extracts concrete product and entity names from a query.
// Same never-raise discipline as the Classifier.
type Identifier struct {
	llmProvider llm.LLMProvider
	log         logger.ILogger
}

func NewIdentifier(llmProvider llm.LLMProvider, log logger.ILogger) *Identifier {
	return &Identifier{
		llmProvider: llmProvider,
		log:         log,
	}
}

func (i *Identifier) Identify(ctx context.Context, query string, candidateCategories []string) *Identification {
	if len(candidateCategories) == 0 {
		candidateCategories = constant.AllCategories()
	}

	prompt := i.buildPrompt(query, candidateCategories)

	response, err := i.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		i.log.Warn("identifier", "identification call failed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return fallbackIdentification(candidateCategories)
	}

	identification, err := parseIdentification(response)
	if err != nil {
		i.log.Warn("identifier", "identification parse failed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return fallbackIdentification(candidateCategories)
	}

	return identification
}

func (i *Identifier) buildPrompt(query string, categories []string) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are a product identification agent for a pharmaceutical company. Your job is to identify specific products mentioned in user queries.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString(fmt.Sprintf("Available product categories: %s\n\n", strings.Join(categories, ", ")))

	prompt.WriteString("<user_query>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</user_query>\n\n")

	prompt.WriteString("Analyze the query and identify:\n")
	prompt.WriteString("1. Specific product names mentioned\n")
	prompt.WriteString("2. Product categories that are relevant\n")
	prompt.WriteString("3. Any brand names or generic names\n")
	prompt.WriteString("4. Therapeutic areas mentioned\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY a JSON object:\n")
	prompt.WriteString("{\n")
	prompt.WriteString(`  "identified_products": ["list", "of", "specific", "product", "names"],` + "\n")
	prompt.WriteString(`  "relevant_categories": ["list", "of", "categories"],` + "\n")
	prompt.WriteString(`  "therapeutic_areas": ["list", "of", "therapeutic", "areas"],` + "\n")
	prompt.WriteString(`  "confidence_score": 0.95,` + "\n")
	prompt.WriteString(`  "reasoning": "explanation of your identification"` + "\n")
	prompt.WriteString("}\n")
	prompt.WriteString("If no specific products are mentioned, focus on the categories and therapeutic areas.\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

func parseIdentification(response string) (*Identification, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var identification Identification
	if err := json.Unmarshal([]byte(jsonContent), &identification); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	if identification.Confidence < 0 {
		identification.Confidence = 0
	}
	if identification.Confidence > 1 {
		identification.Confidence = 1
	}

	return &identification, nil
}

func fallbackIdentification(candidateCategories []string) *Identification {
	return &Identification{
		Products:         []string{},
		Categories:       candidateCategories,
		TherapeuticAreas: []string{},
		Confidence:       0.5,
		Reasoning:        "Default identification",
	}
}
