// ABOUTME: Tests for the chat orchestration service
// ABOUTME: Covers the two-stage flow, confirmations and context grounding

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"ragdesk/internal/llm"
	"ragdesk/internal/models"
	"ragdesk/internal/storage/memory"
)

// scriptedLLM replays canned completions and records every invocation.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.Completion
	calls     []llm.Options
	systems   []string
	err       error
}

func (s *scriptedLLM) Invoke(_ context.Context, messages []models.ChatMessage, opts llm.Options) (*llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, opts)
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		s.systems = append(s.systems, messages[0].Content)
	} else {
		s.systems = append(s.systems, "")
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &llm.Completion{Content: "default reply"}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fixedEmbedder returns the same vector for every query.
type fixedEmbedder struct {
	vec []float64
}

func (f *fixedEmbedder) QueryEmbedding(_ context.Context, _ string) ([]float64, error) {
	return f.vec, nil
}

// recordingExecutor counts Create calls and can be told to fail.
type recordingExecutor struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (e *recordingExecutor) Create(_ context.Context, scopeKey, categoryID, _ string) (*models.EscalationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return nil, errors.New("ticket system down")
	}
	return &models.EscalationResult{
		Success:     true,
		ResourceRef: fmt.Sprintf("ticket-%s-%s-%d", scopeKey, categoryID, e.calls),
	}, nil
}

func (e *recordingExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func toolCallCompletion(categoryID, reason string) *llm.Completion {
	return &llm.Completion{
		ToolCalls: []llm.ToolCall{{
			ID:        "call_1",
			Name:      "create_support_ticket",
			Arguments: fmt.Sprintf(`{"category_id": %q, "reason": %q}`, categoryID, reason),
		}},
	}
}

type serviceFixture struct {
	service    *Service
	llm        *scriptedLLM
	history    *memory.HistoryStore
	index      *memory.VectorIndex
	categories *memory.CategoryProvider
	executor   *recordingExecutor
}

func newFixture(categories []models.EscalationCategory) *serviceFixture {
	f := &serviceFixture{
		llm:        &scriptedLLM{},
		history:    memory.NewHistoryStore(),
		index:      memory.NewVectorIndex(),
		categories: memory.NewCategoryProvider(),
		executor:   &recordingExecutor{},
	}
	f.categories.SetCategories("guild-1", categories)
	f.service = NewService(Deps{
		LLM:        f.llm,
		Embedder:   &fixedEmbedder{vec: []float64{1, 0, 0}},
		History:    f.history,
		Index:      f.index,
		Categories: f.categories,
		Escalation: f.executor,
	})
	return f
}

func testChatbotConfig() models.ChatbotConfig {
	return models.ChatbotConfig{
		ChatbotName: "Helper",
		GuildID:     "guild-1",
		ChannelID:   "chan-1",
	}
}

func billingCategory() []models.EscalationCategory {
	return []models.EscalationCategory{{ID: "billing", Name: "Billing"}}
}

func TestHandleMessage_DirectAnswerWithoutCategories(t *testing.T) {
	f := newFixture(nil)
	f.llm.responses = []*llm.Completion{{Content: "You can reset it in settings."}}

	resp, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "How do I reset my password?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if resp.Confirmation != nil {
		t.Error("no categories configured, yet a confirmation was proposed")
	}
	if len(resp.Segments) != 1 || resp.Segments[0] != "You can reset it in settings." {
		t.Errorf("Segments = %v", resp.Segments)
	}
	// No categories means no tool-check stage.
	if f.llm.callCount() != 1 {
		t.Errorf("LLM invoked %d times, want 1", f.llm.callCount())
	}
	if len(f.llm.calls[0].Tools) != 0 {
		t.Error("answer stage must not carry tool definitions")
	}

	history, _ := f.history.History("guild-1:user-1")
	if len(history) != 2 {
		t.Fatalf("history holds %d messages, want user/assistant pair", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Errorf("history roles = %s, %s", history[0].Role, history[1].Role)
	}
}

func TestHandleMessage_ToolCheckThenAnswer(t *testing.T) {
	f := newFixture(billingCategory())
	f.llm.responses = []*llm.Completion{
		{Content: "stage one commentary"},
		{Content: "Here is the actual answer."},
	}

	resp, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "What are your opening hours?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if resp.Confirmation != nil {
		t.Error("no tool call was made, yet a confirmation was proposed")
	}
	if f.llm.callCount() != 2 {
		t.Fatalf("LLM invoked %d times, want tool-check then answer", f.llm.callCount())
	}
	if len(f.llm.calls[0].Tools) != 1 {
		t.Error("tool-check stage must carry the escalation tool")
	}
	if len(f.llm.calls[1].Tools) != 0 {
		t.Error("answer stage must not carry tool definitions")
	}
	// Stage-one text is never shown to the user.
	if len(resp.Segments) != 1 || resp.Segments[0] != "Here is the actual answer." {
		t.Errorf("Segments = %v, want the answer-stage content", resp.Segments)
	}
}

func TestHandleMessage_ToolCallProposesConfirmation(t *testing.T) {
	f := newFixture(billingCategory())
	f.llm.responses = []*llm.Completion{toolCallCompletion("billing", "User disputes an invoice.")}

	resp, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "My invoice is wrong, please help")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if resp.Confirmation == nil {
		t.Fatal("expected a confirmation prompt")
	}
	if len(resp.Segments) != 0 {
		t.Errorf("confirmation response must carry no segments, got %v", resp.Segments)
	}
	conf := resp.Confirmation
	if conf.ID == "" {
		t.Error("confirmation ID not set")
	}
	if conf.Category.Name != "Billing" {
		t.Errorf("Category.Name = %q", conf.Category.Name)
	}
	if !strings.Contains(conf.Explanation, "Billing") {
		t.Errorf("Explanation = %q, want the category name mentioned", conf.Explanation)
	}
	if conf.OriginalMessage != "My invoice is wrong, please help" {
		t.Errorf("OriginalMessage = %q", conf.OriginalMessage)
	}

	// Nothing executes and nothing is recorded until the user confirms.
	if f.executor.callCount() != 0 {
		t.Error("executor ran before confirmation")
	}
	if history, _ := f.history.History("guild-1:user-1"); len(history) != 0 {
		t.Errorf("history holds %d messages before resolution, want 0", len(history))
	}
}

func TestResolve_ConfirmCreatesTicketOnce(t *testing.T) {
	f := newFixture(billingCategory())
	f.llm.responses = []*llm.Completion{toolCallCompletion("billing", "")}

	resp, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "My invoice is wrong")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	result, err := f.service.Resolve(context.Background(), resp.Confirmation.ID, true, "user-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !result.Confirmed || !result.Success {
		t.Errorf("result = %+v, want confirmed success", result)
	}
	if result.TicketRef != "ticket-guild-1-billing-1" {
		t.Errorf("TicketRef = %q", result.TicketRef)
	}
	if !strings.Contains(result.Message, result.TicketRef) {
		t.Errorf("Message = %q, want the ticket reference included", result.Message)
	}
	if f.executor.callCount() != 1 {
		t.Errorf("executor ran %d times, want 1", f.executor.callCount())
	}

	history, _ := f.history.History("guild-1:user-1")
	if len(history) != 2 {
		t.Fatalf("history holds %d messages, want the resolved pair", len(history))
	}

	// The consumed confirmation cannot run the executor again.
	if _, err := f.service.Resolve(context.Background(), resp.Confirmation.ID, true, "user-1"); !errors.Is(err, models.ErrConfirmationExpired) {
		t.Errorf("second Resolve() error = %v, want ErrConfirmationExpired", err)
	}
	if f.executor.callCount() != 1 {
		t.Errorf("executor ran %d times after replay, want 1", f.executor.callCount())
	}
}

func TestResolve_Decline(t *testing.T) {
	f := newFixture(billingCategory())
	f.llm.responses = []*llm.Completion{toolCallCompletion("billing", "")}

	resp, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "My invoice is wrong")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	result, err := f.service.Resolve(context.Background(), resp.Confirmation.ID, false, "user-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Confirmed {
		t.Error("Confirmed = true for a declined confirmation")
	}
	if f.executor.callCount() != 0 {
		t.Errorf("executor ran %d times on decline, want 0", f.executor.callCount())
	}
	if history, _ := f.history.History("guild-1:user-1"); len(history) != 2 {
		t.Errorf("declined exchange should still be recorded, got %d messages", len(history))
	}
}

func TestResolve_WrongUserThenOwner(t *testing.T) {
	f := newFixture(billingCategory())
	f.llm.responses = []*llm.Completion{toolCallCompletion("billing", "")}

	resp, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "My invoice is wrong")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if _, err := f.service.Resolve(context.Background(), resp.Confirmation.ID, true, "user-2"); !errors.Is(err, models.ErrConfirmationForbidden) {
		t.Fatalf("non-owner Resolve() error = %v, want ErrConfirmationForbidden", err)
	}
	if f.executor.callCount() != 0 {
		t.Error("executor ran for a forbidden resolution")
	}

	// The owner can still resolve afterwards.
	result, err := f.service.Resolve(context.Background(), resp.Confirmation.ID, true, "user-1")
	if err != nil {
		t.Fatalf("owner Resolve() error = %v", err)
	}
	if !result.Success {
		t.Errorf("result = %+v", result)
	}
}

func TestResolve_ExecutorFailure(t *testing.T) {
	f := newFixture(billingCategory())
	f.executor.fail = true
	f.llm.responses = []*llm.Completion{toolCallCompletion("billing", "")}

	resp, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "My invoice is wrong")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	result, err := f.service.Resolve(context.Background(), resp.Confirmation.ID, true, "user-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v, executor failure must not surface as an error", err)
	}
	if !result.Confirmed || result.Success {
		t.Errorf("result = %+v, want confirmed but unsuccessful", result)
	}
	if result.Message == "" {
		t.Error("user-facing apology missing")
	}
}

func TestHandleMessage_UnknownCategoryFallsThrough(t *testing.T) {
	f := newFixture(billingCategory())
	f.llm.responses = []*llm.Completion{
		toolCallCompletion("refunds", "not a real category"),
		{Content: "Answering directly instead."},
	}

	resp, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "Help me out")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if resp.Confirmation != nil {
		t.Error("unknown category must not produce a confirmation")
	}
	if len(resp.Segments) != 1 || resp.Segments[0] != "Answering directly instead." {
		t.Errorf("Segments = %v", resp.Segments)
	}
}

func TestHandleMessage_UnparseableToolArgsFallThrough(t *testing.T) {
	f := newFixture(billingCategory())
	f.llm.responses = []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "create_support_ticket", Arguments: "{not json"}}},
		{Content: "Answering directly instead."},
	}

	resp, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "Help me out")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if resp.Confirmation != nil {
		t.Error("unparseable tool arguments must not produce a confirmation")
	}
	if len(resp.Segments) != 1 {
		t.Errorf("Segments = %v", resp.Segments)
	}
}

func TestHandleMessage_ContextGroundsPrompts(t *testing.T) {
	f := newFixture(nil)
	f.index.Add("guild-1", models.DocumentChunk{
		ID:        "chunk_1",
		Content:   "Passwords reset from the account settings page.",
		Embedding: []float64{1, 0, 0},
	})
	f.llm.responses = []*llm.Completion{{Content: "See the settings page."}}

	_, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "How do I reset my password?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(f.llm.systems) != 1 {
		t.Fatalf("recorded %d system prompts, want 1", len(f.llm.systems))
	}
	if !strings.Contains(f.llm.systems[0], "Passwords reset from the account settings page.") {
		t.Error("retrieved chunk missing from the system prompt")
	}
	if !strings.Contains(f.llm.systems[0], "Helper") {
		t.Error("chatbot name missing from the system prompt")
	}
}

func TestHandleMessage_LLMErrorPropagates(t *testing.T) {
	f := newFixture(nil)
	f.llm.err = models.ErrLLMUnavailable

	_, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", "hello")
	if !errors.Is(err, models.ErrLLMUnavailable) {
		t.Errorf("error = %v, want ErrLLMUnavailable", err)
	}
	if history, _ := f.history.History("guild-1:user-1"); len(history) != 0 {
		t.Errorf("failed exchange recorded to history: %d messages", len(history))
	}
}

func TestHandleMessage_HistoryTrimmed(t *testing.T) {
	f := newFixture(nil)
	f.service.maxHistory = 4

	for i := 0; i < 5; i++ {
		f.llm.responses = append(f.llm.responses, &llm.Completion{Content: fmt.Sprintf("reply %d", i)})
	}
	for i := 0; i < 5; i++ {
		if _, err := f.service.HandleMessage(context.Background(), testChatbotConfig(), "user-1", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("HandleMessage() error = %v", err)
		}
	}

	history, _ := f.history.History("guild-1:user-1")
	if len(history) != 4 {
		t.Fatalf("history holds %d messages, want 4 after trim", len(history))
	}
	if history[len(history)-1].Content != "reply 4" {
		t.Errorf("newest message = %q", history[len(history)-1].Content)
	}
}
