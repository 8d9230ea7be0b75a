// ABOUTME: System prompt assembly for the tool-check and answer stages
// ABOUTME: Persona and retrieved context are embedded; tool guidelines only in stage one
package chat

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"ragdesk/internal/models"
)

// escalationToolName is the function the model may call to propose a ticket.
const escalationToolName = "create_support_ticket"

// buildToolCheckPrompt assembles the stage-one system prompt: persona,
// conservative escalation guidelines, the category list, and any retrieved
// context.
func buildToolCheckPrompt(cfg models.ChatbotConfig, contextChunks []models.RankedChunk, categories []models.EscalationCategory) string {
	var sb strings.Builder

	sb.WriteString(personaSection(cfg))

	sb.WriteString("\nYou can propose creating a support ticket with the ")
	sb.WriteString(escalationToolName)
	sb.WriteString(" tool. Be conservative. Only propose a ticket when the user:\n")
	sb.WriteString("- explicitly asks for a ticket or to talk to staff, or\n")
	sb.WriteString("- is clearly frustrated after you already tried to answer, or\n")
	sb.WriteString("- has a complex technical or policy issue you cannot resolve yourself.\n")
	sb.WriteString("Never propose a ticket for a first-time general question. Prefer answering directly.\n")

	sb.WriteString("\nAvailable ticket categories:\n")
	for _, cat := range categories {
		sb.WriteString(fmt.Sprintf("- %s (id: %s)\n", cat.Name, cat.ID))
	}

	if section := contextSection(contextChunks); section != "" {
		sb.WriteString(section)
	}

	return sb.String()
}

// buildAnswerPrompt assembles the grounded-answer system prompt. No tool
// guidelines here so their tone cannot leak into the reply.
func buildAnswerPrompt(cfg models.ChatbotConfig, contextChunks []models.RankedChunk) string {
	var sb strings.Builder

	sb.WriteString(personaSection(cfg))

	if section := contextSection(contextChunks); section != "" {
		sb.WriteString(section)
		sb.WriteString("\nUse this information naturally when it is relevant. Do not mention \"context\", \"knowledge base\" or that you were given documents.\n")
	}

	return sb.String()
}

// personaSection states who the assistant is and how it should sound.
func personaSection(cfg models.ChatbotConfig) string {
	name := cfg.ChatbotName
	if name == "" {
		name = "Assistant"
	}
	section := fmt.Sprintf("You are %s, a helpful support assistant for this server.\n", name)
	if cfg.ResponseType != "" {
		section += fmt.Sprintf("Respond in a %s style.\n", cfg.ResponseType)
	}
	return section
}

// contextSection formats retrieved chunks for the system prompt. Empty when
// nothing was retrieved.
func contextSection(chunks []models.RankedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\nRelevant information:\n")
	for _, rc := range chunks {
		sb.WriteString("---\n")
		sb.WriteString(strings.TrimSpace(rc.Chunk.Content))
		sb.WriteString("\n")
	}
	sb.WriteString("---\n")
	return sb.String()
}

// escalationTool builds the tool schema offered to the model in stage one.
func escalationTool(categories []models.EscalationCategory) openai.Tool {
	ids := make([]string, len(categories))
	for i, cat := range categories {
		ids[i] = cat.ID
	}

	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        escalationToolName,
			Description: "Propose creating a support ticket for the user. The user must confirm before anything is created.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"category_id": {
						Type:        jsonschema.String,
						Enum:        ids,
						Description: "The id of the ticket category that fits the user's issue.",
					},
					"reason": {
						Type:        jsonschema.String,
						Description: "One sentence explaining why a ticket is appropriate.",
					},
				},
				Required: []string{"category_id"},
			},
		},
	}
}
