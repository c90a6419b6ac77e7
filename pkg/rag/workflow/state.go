package workflow

import (
	"strings"

	"ai-knowledge-be/internal/entity"
	"ai-knowledge-be/pkg/rag/persona"
	"ai-knowledge-be/pkg/safety"
)

// Stage names appear in trace steps and logs.
type Stage string

const (
	StageValidateInput       Stage = "validate_input"
	StageProcessMultimodal   Stage = "process_multimodal_input"
	StageSearchDocuments     Stage = "search_documents"
	StageEvaluateSufficiency Stage = "evaluate_results"
	StageReformulateQuery    Stage = "modify_query"
	StageGenerateAnswer      Stage = "generate_answer"
	StageValidateResponse    Stage = "validate_response"
)

type StepStatus string

const (
	StatusStarted   StepStatus = "started"
	StatusCompleted StepStatus = "completed"
	StatusError     StepStatus = "error"
	StatusWarning   StepStatus = "warning"
	StatusSkipped   StepStatus = "skipped"
)

// TraceStep is one entry in the append-only audit log of a run.
type TraceStep struct {
	Stage   Stage                  `json:"stage"`
	Actor   string                 `json:"actor"`
	Status  StepStatus             `json:"status"`
	Note    string                 `json:"note"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// routeTarget is the typed outcome of the routing decision after
// sufficiency evaluation.
type routeTarget int

const (
	routeGenerateAnswer routeTarget = iota
	routeReformulateQuery
)

// State carries everything one request accumulates while moving through
// the pipeline. Owned by a single Engine run, never shared.
type State struct {
	Query         string
	OriginalQuery string
	SessionID     string

	Image              []byte
	IsMultimodal       bool
	ExtractedImageText string

	RetrievedChunks   []*entity.ScoredDocumentChunk
	SearchAttempts    int
	ContextSufficient bool
	Context           string

	Answer  string
	Sources []string

	InputValidation    *safety.ValidationResult
	ResponseValidation *safety.ValidationResult

	Trace []TraceStep

	// Set by the decomposition agents when they front the pipeline.
	IdentificationConfidence float64
	HasRationale             bool

	Confidence         float64
	FollowUpSuggestion string

	Persona persona.Strategy
}

func newState(req *Request, p persona.Strategy) *State {
	query := req.Query
	if req.SearchHint != "" {
		query = query + " " + req.SearchHint
	}
	return &State{
		Query:                    query,
		OriginalQuery:            req.Query,
		SessionID:                req.SessionID,
		Image:                    req.Image,
		Sources:                  []string{},
		Trace:                    []TraceStep{},
		IdentificationConfidence: req.IdentificationConfidence,
		HasRationale:             req.HasRationale,
		Persona:                  p,
	}
}

func (s *State) addTrace(stage Stage, actor string, status StepStatus, note string, details map[string]interface{}) {
	s.Trace = append(s.Trace, TraceStep{
		Stage:   stage,
		Actor:   actor,
		Status:  status,
		Note:    note,
		Details: details,
	})
}

// mergeChunks appends newly retrieved chunks, skipping ones already held,
// then rebuilds context and sources from the full set.
func (s *State) mergeChunks(chunks []*entity.ScoredDocumentChunk) {
	seen := make(map[string]bool, len(s.RetrievedChunks))
	for _, existing := range s.RetrievedChunks {
		seen[existing.Chunk.Id.String()] = true
	}
	for _, c := range chunks {
		if seen[c.Chunk.Id.String()] {
			continue
		}
		seen[c.Chunk.Id.String()] = true
		s.RetrievedChunks = append(s.RetrievedChunks, c)
	}

	contents := make([]string, 0, len(s.RetrievedChunks))
	sources := make([]string, 0, len(s.RetrievedChunks))
	seenDoc := make(map[string]bool)
	for _, c := range s.RetrievedChunks {
		contents = append(contents, c.Chunk.Content)
		docId := c.Chunk.DocumentId.String()
		if !seenDoc[docId] {
			seenDoc[docId] = true
			sources = append(sources, docId)
		}
	}
	s.Context = strings.Join(contents, "\n\n")
	s.Sources = sources
}

// visibleSources applies the persona's source-disclosure flag.
func (s *State) visibleSources() []string {
	if s.Persona != nil && !s.Persona.IncludeSources() {
		return []string{}
	}
	return s.Sources
}

func (s *State) personaName() string {
	if s.Persona == nil {
		return ""
	}
	return s.Persona.Name()
}
