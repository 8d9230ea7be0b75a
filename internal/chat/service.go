// ABOUTME: Chat orchestration service - two-stage tool-check/answer flow with RAG
// ABOUTME: Owns the pending-confirmation registry and all tool policy
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ragdesk/internal/llm"
	"ragdesk/internal/models"
	"ragdesk/internal/segment"
	"ragdesk/internal/storage"
)

const (
	// maxContextChunks bounds how many retrieved chunks ground a reply.
	maxContextChunks = 5
	// defaultMaxHistory is how many messages a conversation retains.
	defaultMaxHistory = 20
)

// ChatClient is the slice of the LLM client the service needs.
type ChatClient interface {
	Invoke(ctx context.Context, messages []models.ChatMessage, opts llm.Options) (*llm.Completion, error)
}

// QueryEmbedder encodes retrieval queries. Implemented by ingest.Processor so
// query vectors match the indexed ones.
type QueryEmbedder interface {
	QueryEmbedding(ctx context.Context, text string) ([]float64, error)
}

// Deps are the collaborators the service consumes. The tuning fields fall
// back to package defaults when zero.
type Deps struct {
	LLM        ChatClient
	Embedder   QueryEmbedder
	History    storage.HistoryStore
	Index      storage.VectorIndex
	Categories storage.CategoryProvider
	Escalation storage.EscalationExecutor

	MaxHistory      int
	SegmentLimit    int
	ConfirmationTTL time.Duration
}

// Service orchestrates one inbound message at a time per invocation; the
// confirmation registry is the only state shared across invocations.
type Service struct {
	deps          Deps
	confirmations *ConfirmationStore
	maxHistory    int
	segmentLimit  int
}

// NewService creates the orchestration service with a fresh registry.
func NewService(deps Deps) *Service {
	ttl := deps.ConfirmationTTL
	if ttl <= 0 {
		ttl = ConfirmationTTL
	}
	maxHistory := deps.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	segmentLimit := deps.SegmentLimit
	if segmentLimit <= 0 {
		segmentLimit = segment.DefaultLimit
	}
	return &Service{
		deps:          deps,
		confirmations: NewConfirmationStore(ttl),
		maxHistory:    maxHistory,
		segmentLimit:  segmentLimit,
	}
}

// ConfirmationPrompt asks the user to approve a proposed escalation.
type ConfirmationPrompt struct {
	ID              string                    `json:"id"`
	Category        models.EscalationCategory `json:"category"`
	Explanation     string                    `json:"explanation"`
	OriginalMessage string                    `json:"original_message"`
}

// Response is the outcome of handling one inbound message: either reply
// segments or a confirmation prompt, never both.
type Response struct {
	Segments     []string            `json:"segments,omitempty"`
	Confirmation *ConfirmationPrompt `json:"confirmation,omitempty"`
}

// ResolveResult reports the outcome of a confirmation resolution. Message is
// the user-facing reply that was appended to history.
type ResolveResult struct {
	Confirmed bool   `json:"confirmed"`
	Success   bool   `json:"success"`
	TicketRef string `json:"ticket_ref,omitempty"`
	Message   string `json:"message"`
}

// stageOutcome is the tagged result of the tool-check stage, so answer logic
// cannot run once a tool decision was made.
type stageOutcome interface{ stageOutcome() }

type toolInvoked struct {
	category models.EscalationCategory
	reason   string
}

type directAnswer struct{}

func (toolInvoked) stageOutcome()  {}
func (directAnswer) stageOutcome() {}

// HandleMessage runs the full flow for one inbound user message: retrieve
// context, tool-check when escalation categories exist, then either propose
// a confirmation or produce a grounded, segmented answer.
func (s *Service) HandleMessage(ctx context.Context, cfg models.ChatbotConfig, userID, message string) (*Response, error) {
	convKey := conversationKey(cfg.GuildID, userID)
	contextChunks := s.retrieveContext(ctx, cfg.GuildID, message)

	categories, err := s.deps.Categories.ListEnabled(cfg.GuildID)
	if err != nil {
		log.Printf("Warning: listing escalation categories failed: %v", err)
		categories = nil
	}

	if len(categories) > 0 {
		outcome, err := s.toolCheck(ctx, cfg, convKey, message, contextChunks, categories)
		if err != nil {
			return nil, err
		}
		if ti, ok := outcome.(toolInvoked); ok {
			return &Response{Confirmation: s.proposeEscalation(cfg, userID, message, ti)}, nil
		}
	}

	return s.answer(ctx, cfg, convKey, message, contextChunks)
}

// Resolve consumes a pending confirmation. Only the originating user may
// resolve it; a consumed record is never retried.
func (s *Service) Resolve(ctx context.Context, confirmationID string, confirmed bool, resolvingUserID string) (*ResolveResult, error) {
	rec, err := s.confirmations.Take(confirmationID, resolvingUserID)
	if err != nil {
		return nil, err
	}

	convKey := conversationKey(rec.GuildID, rec.UserID)

	if !confirmed {
		reply := "No problem, I won't open a ticket. Let me know if there's anything else I can help with."
		if err := s.appendExchange(convKey, rec.UserMessage, reply); err != nil {
			return nil, err
		}
		return &ResolveResult{Confirmed: false, Success: true, Message: reply}, nil
	}

	result, err := s.deps.Escalation.Create(ctx, rec.GuildID, rec.CategoryID, rec.UserMessage)
	if err != nil || result == nil || !result.Success {
		if err != nil {
			log.Printf("Warning: %v: %v", models.ErrEscalationFailed, err)
		} else if result != nil && result.Error != "" {
			log.Printf("Warning: %v: %s", models.ErrEscalationFailed, result.Error)
		}
		reply := "Sorry, I couldn't create your ticket. Please try again or reach out to staff directly."
		if appendErr := s.appendExchange(convKey, rec.UserMessage, reply); appendErr != nil {
			return nil, appendErr
		}
		return &ResolveResult{Confirmed: true, Success: false, Message: reply}, nil
	}

	reply := fmt.Sprintf("Your ticket has been created: %s. Our team will follow up with you there.", result.ResourceRef)
	if err := s.appendExchange(convKey, rec.UserMessage, reply); err != nil {
		return nil, err
	}
	return &ResolveResult{Confirmed: true, Success: true, TicketRef: result.ResourceRef, Message: reply}, nil
}

// toolCheck runs stage one: the model sees the escalation tool and decides.
// An argument matching no known category falls through to a direct answer.
func (s *Service) toolCheck(ctx context.Context, cfg models.ChatbotConfig, convKey, message string, contextChunks []models.RankedChunk, categories []models.EscalationCategory) (stageOutcome, error) {
	messages, err := s.buildMessages(convKey, buildToolCheckPrompt(cfg, contextChunks, categories), message)
	if err != nil {
		return nil, err
	}

	comp, err := s.deps.LLM.Invoke(ctx, messages, llm.Options{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.ModelName,
		Tools:   []llm.Tool{escalationTool(categories)},
	})
	if err != nil {
		return nil, err
	}

	for _, tc := range comp.ToolCalls {
		if tc.Name != escalationToolName {
			continue
		}
		var args struct {
			CategoryID string `json:"category_id"`
			Reason     string `json:"reason"`
		}
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			log.Printf("Warning: %v: unparseable tool arguments: %v", models.ErrToolSelectionAmbiguous, err)
			return directAnswer{}, nil
		}
		for _, cat := range categories {
			if cat.ID == args.CategoryID {
				return toolInvoked{category: cat, reason: args.Reason}, nil
			}
		}
		log.Printf("Warning: %v: unknown category %q", models.ErrToolSelectionAmbiguous, args.CategoryID)
		return directAnswer{}, nil
	}

	return directAnswer{}, nil
}

// proposeEscalation records the pending confirmation and builds the prompt
// returned to the transport layer. History is not touched yet.
func (s *Service) proposeEscalation(cfg models.ChatbotConfig, userID, message string, ti toolInvoked) *ConfirmationPrompt {
	now := time.Now()
	rec := models.PendingToolConfirmation{
		ID:          NewConfirmationID(userID, now),
		CategoryID:  ti.category.ID,
		UserMessage: message,
		GuildID:     cfg.GuildID,
		ChannelID:   cfg.ChannelID,
		UserID:      userID,
		ToolMessage: ti.reason,
		CreatedAt:   now,
	}
	s.confirmations.Put(rec)

	explanation := fmt.Sprintf("I can open a %s ticket for you.", ti.category.Name)
	if ti.reason != "" {
		explanation += " " + ti.reason
	}
	return &ConfirmationPrompt{
		ID:              rec.ID,
		Category:        ti.category,
		Explanation:     explanation,
		OriginalMessage: message,
	}
}

// answer runs the grounded-answer stage without tool definitions, appends
// the message pair to history, and segments the reply.
func (s *Service) answer(ctx context.Context, cfg models.ChatbotConfig, convKey, message string, contextChunks []models.RankedChunk) (*Response, error) {
	messages, err := s.buildMessages(convKey, buildAnswerPrompt(cfg, contextChunks), message)
	if err != nil {
		return nil, err
	}

	comp, err := s.deps.LLM.Invoke(ctx, messages, llm.Options{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.ModelName,
	})
	if err != nil {
		return nil, err
	}

	if err := s.appendExchange(convKey, message, comp.Content); err != nil {
		return nil, err
	}

	return &Response{Segments: segment.SplitWithLimit(comp.Content, s.segmentLimit)}, nil
}

// buildMessages assembles system prompt + stored history + current message.
func (s *Service) buildMessages(convKey, systemPrompt, message string) ([]models.ChatMessage, error) {
	history, err := s.deps.History.History(convKey)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	messages := make([]models.ChatMessage, 0, len(history)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: message})
	return messages, nil
}

// appendExchange appends the user/assistant pair in one step so history is
// never left with an unpaired user message, then trims to the retained length.
func (s *Service) appendExchange(convKey, userMessage, assistantMessage string) error {
	if err := s.deps.History.AddMessage(convKey, models.RoleUser, userMessage); err != nil {
		return fmt.Errorf("appending user message: %w", err)
	}
	if err := s.deps.History.AddMessage(convKey, models.RoleAssistant, assistantMessage); err != nil {
		return fmt.Errorf("appending assistant message: %w", err)
	}
	if err := s.deps.History.Trim(convKey, s.maxHistory); err != nil {
		log.Printf("Warning: trimming history for %s failed: %v", convKey, err)
	}
	return nil
}

// retrieveContext fetches the top-ranked chunks for the message. Failures
// degrade to answering without context.
func (s *Service) retrieveContext(ctx context.Context, scopeKey, message string) []models.RankedChunk {
	if s.deps.Index == nil || !s.deps.Index.HasData(scopeKey) {
		return nil
	}
	vec, err := s.deps.Embedder.QueryEmbedding(ctx, message)
	if err != nil {
		log.Printf("Warning: query embedding failed, answering without context: %v", err)
		return nil
	}
	chunks, err := s.deps.Index.Search(scopeKey, vec, maxContextChunks)
	if err != nil {
		log.Printf("Warning: context retrieval failed, answering without context: %v", err)
		return nil
	}
	return chunks
}

// conversationKey scopes a history to one user in one guild.
func conversationKey(guildID, userID string) string {
	return guildID + ":" + userID
}
