package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"ai-knowledge-be/internal/constant"
	"ai-knowledge-be/internal/dto"
	"ai-knowledge-be/internal/pkg/logger"
	"ai-knowledge-be/internal/repository/memory"
	"ai-knowledge-be/pkg/llm"
	"ai-knowledge-be/pkg/rag/agents"
	"ai-knowledge-be/pkg/rag/persona"
	"ai-knowledge-be/pkg/rag/workflow"
	"ai-knowledge-be/pkg/store"

	"github.com/google/uuid"
)

// historyWindow is how many prior messages feed the generation prompt.
const historyWindow = 10

type IChatService interface {
	Chat(ctx context.Context, userId uuid.UUID, request *dto.ChatRequest) (*dto.ChatResponse, error)
	ChatStream(ctx context.Context, userId uuid.UUID, request *dto.ChatRequest) (<-chan workflow.Event, error)
	GetPersonas(ctx context.Context) []*dto.PersonaResponse
	GetCategories(ctx context.Context) *dto.CategoryListResponse
	ClearHistory(ctx context.Context, sessionId string) error
}

type chatService struct {
	engine           *workflow.Engine
	orchestrator     *agents.Orchestrator
	sessionRepo      *memory.SessionRepository
	historyStore     memory.HistoryStore
	publisherService IPublisherService
	log              logger.ILogger
}

func NewChatService(
	engine *workflow.Engine,
	orchestrator *agents.Orchestrator,
	sessionRepo *memory.SessionRepository,
	historyStore memory.HistoryStore,
	publisherService IPublisherService,
	log logger.ILogger,
) IChatService {
	return &chatService{
		engine:           engine,
		orchestrator:     orchestrator,
		sessionRepo:      sessionRepo,
		historyStore:     historyStore,
		publisherService: publisherService,
		log:              log,
	}
}

func (s *chatService) Chat(ctx context.Context, userId uuid.UUID, request *dto.ChatRequest) (*dto.ChatResponse, error) {
	started := time.Now()

	workflowReq, sessionId, err := s.buildWorkflowRequest(ctx, userId, request)
	if err != nil {
		return nil, err
	}

	var result *workflow.Result
	var structured *agents.StructuredResult

	if request.Structured {
		structured, err = s.orchestrator.Execute(ctx, workflowReq)
		if err == nil {
			result = structured.Result
		}
	} else {
		result, err = s.engine.Chat(ctx, workflowReq)
	}
	if err != nil {
		return nil, err
	}

	s.recordTurn(ctx, userId, sessionId, request, result, time.Since(started))

	response := &dto.ChatResponse{
		SessionId:          sessionId,
		Answer:             result.Answer,
		Sources:            result.Sources,
		SearchCount:        result.SearchCount,
		IsMultimodal:       result.IsMultimodal,
		ExtractedText:      result.ExtractedText,
		Confidence:         result.Confidence,
		FollowUpSuggestion: result.FollowUpSuggestion,
		Persona:            result.Persona,
		Trace:              result.Trace,
		InputValidation:    result.InputValidation,
		ResponseValidation: result.ResponseValidation,
	}
	if structured != nil {
		response.Classification = structured.Classification
		response.Identification = structured.Identification
	}
	return response, nil
}

func (s *chatService) ChatStream(ctx context.Context, userId uuid.UUID, request *dto.ChatRequest) (<-chan workflow.Event, error) {
	started := time.Now()

	workflowReq, sessionId, err := s.buildWorkflowRequest(ctx, userId, request)
	if err != nil {
		return nil, err
	}

	events, err := s.engine.ChatStream(ctx, workflowReq)
	if err != nil {
		return nil, err
	}

	// Relay events while accumulating the answer so the turn can be
	// recorded once the stream ends.
	out := make(chan workflow.Event)
	go func() {
		defer close(out)

		var answer string
		var corrected, failed bool
		result := &workflow.Result{Persona: request.Persona}

		for event := range events {
			switch event.Type {
			case workflow.EventMetadata:
				result.Sources = event.Sources
				result.SearchCount = event.SearchCount
				result.IsMultimodal = event.IsMultimodal
				result.ExtractedText = event.ExtractedText
			case workflow.EventContent:
				if event.Corrected {
					corrected = true
					answer = event.Content
				} else if !corrected {
					answer += event.Content
				}
			case workflow.EventError:
				failed = true
			case workflow.EventEnd:
				result.Confidence = event.Confidence
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}

		if failed && !corrected {
			// The partial text is not the answer of record
			answer = constant.AnswerError
		}
		result.Answer = answer
		s.recordTurn(context.WithoutCancel(ctx), userId, sessionId, request, result, time.Since(started))
	}()

	return out, nil
}

func (s *chatService) GetPersonas(ctx context.Context) []*dto.PersonaResponse {
	all := s.engine.Personas().All()
	responses := make([]*dto.PersonaResponse, 0, len(all))
	for _, p := range all {
		resp := &dto.PersonaResponse{
			Name:        p.Name(),
			Temperature: p.Temperature(),
		}
		if cfg, ok := p.(*persona.Config); ok {
			resp.Description = cfg.Description
			resp.Style = cfg.Style
		}
		responses = append(responses, resp)
	}
	return responses
}

func (s *chatService) GetCategories(ctx context.Context) *dto.CategoryListResponse {
	return &dto.CategoryListResponse{Categories: constant.AllCategories()}
}

func (s *chatService) ClearHistory(ctx context.Context, sessionId string) error {
	s.sessionRepo.Delete(sessionId)
	return s.historyStore.Clear(ctx, sessionId)
}

func (s *chatService) buildWorkflowRequest(ctx context.Context, userId uuid.UUID, request *dto.ChatRequest) (*workflow.Request, string, error) {
	sessionId := request.SessionId
	if sessionId == "" {
		sessionId = uuid.NewString()
	}

	var image []byte
	if request.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(request.ImageBase64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid image encoding: %w", err)
		}
		image = decoded
	}

	history, err := s.historyStore.Load(ctx, sessionId, historyWindow)
	if err != nil {
		// History is best effort: a cold cache just means a fresh turn
		s.log.Warn("chat_service", "history load failed", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
		history = nil
	}

	return &workflow.Request{
		Query:     request.Query,
		SessionID: sessionId,
		Image:     image,
		Persona:   request.Persona,
		Category:  request.Category,
		History:   history,
	}, sessionId, nil
}

// recordTurn persists session state, conversation history and the usage
// event. None of these are allowed to fail the request.
func (s *chatService) recordTurn(ctx context.Context, userId uuid.UUID, sessionId string, request *dto.ChatRequest, result *workflow.Result, elapsed time.Duration) {
	session, found := s.sessionRepo.Get(sessionId)
	if !found {
		session = &store.Session{ID: sessionId, UserID: userId.String()}
	}
	session.Persona = request.Persona
	session.LastQuery = request.Query
	session.Turns++
	s.sessionRepo.Save(session)

	err := s.historyStore.Append(ctx, sessionId,
		llm.Message{Role: constant.ChatMessageRoleUser, Content: request.Query},
		llm.Message{Role: constant.ChatMessageRoleAssistant, Content: result.Answer},
	)
	if err != nil {
		s.log.Warn("chat_service", "history append failed", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
	}

	payload, err := json.Marshal(dto.ChatCompletedMessage{
		SessionId:    sessionId,
		UserId:       userId.String(),
		Persona:      result.Persona,
		SearchCount:  result.SearchCount,
		SourceCount:  len(result.Sources),
		Confidence:   result.Confidence,
		IsMultimodal: result.IsMultimodal,
		DurationMs:   elapsed.Milliseconds(),
	})
	if err == nil {
		if err := s.publisherService.Publish(ctx, payload); err != nil {
			s.log.Warn("chat_service", "usage publish failed", map[string]interface{}{
				"session_id": sessionId,
				"error":      err.Error(),
			})
		}
	}
}
