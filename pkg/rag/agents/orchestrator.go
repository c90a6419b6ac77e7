package agents

import (
	"context"
	"strings"

	"ai-knowledge-be/internal/pkg/logger"
	"ai-knowledge-be/pkg/rag/workflow"
)

// StructuredResult is a workflow result enriched with the decomposition
// agents' intermediate findings.
type StructuredResult struct {
	*workflow.Result

	Classification *Classification `json:"classification"`
	Identification *Identification `json:"identification"`
}

// Orchestrator fronts the workflow engine with explicit intent
// classification and entity identification, then hands retrieval and
// generation to the engine with the identified category as a filter.
type Orchestrator struct {
	classifier *Classifier
	identifier *Identifier
	engine     *workflow.Engine
	log        logger.ILogger
}

func NewOrchestrator(classifier *Classifier, identifier *Identifier, engine *workflow.Engine, log logger.ILogger) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		identifier: identifier,
		engine:     engine,
		log:        log,
	}
}

// Execute runs classify → identify → retrieve+answer. The agents never
// raise; their fallback records flow into the engine the same way real
// findings do.
func (o *Orchestrator) Execute(ctx context.Context, req *workflow.Request) (*StructuredResult, error) {
	classification := o.classifier.Classify(ctx, req.Query)
	identification := o.identifier.Identify(ctx, req.Query, classification.Categories)

	o.log.Info("orchestrator", "query decomposed", map[string]interface{}{
		"query_type": classification.QueryType,
		"categories": classification.Categories,
		"products":   identification.Products,
		"confidence": identification.Confidence,
	})

	engineReq := *req
	engineReq.IdentificationConfidence = identification.Confidence
	engineReq.HasRationale = classification.Reasoning != "" && classification.Reasoning != "Default analysis"
	if engineReq.Category == "" && len(identification.Categories) > 0 {
		engineReq.Category = identification.Categories[0]
	}
	if len(identification.Products) > 0 {
		// Identified product names sharpen the first retrieval attempt;
		// the user's literal query stays untouched.
		engineReq.SearchHint = strings.Join(identification.Products, " ")
	}

	result, err := o.engine.Chat(ctx, &engineReq)
	if err != nil {
		return nil, err
	}

	result.FollowUpSuggestion = suggestByQueryType(classification.QueryType)

	return &StructuredResult{
		Result:         result,
		Classification: classification,
		Identification: identification,
	}, nil
}

func suggestByQueryType(queryType string) string {
	switch queryType {
	case QueryTypeProductInfo:
		return "Would you like to know about the dosage and administration?"
	case QueryTypeClinicalData:
		return "Would you like to see comparative efficacy data?"
	case QueryTypeDosage:
		return "Would you like to know about special populations (elderly, renal impairment)?"
	default:
		return "Would you like to know more about this product's clinical benefits?"
	}
}
