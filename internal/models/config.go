// ABOUTME: ChatbotConfig is the per-channel bot configuration
// ABOUTME: Supplied by an external config provider on every invocation
package models

// ChatbotConfig configures the assistant for a single channel. It is
// read-only to the orchestration core.
type ChatbotConfig struct {
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url,omitempty"`
	ModelName    string `json:"model_name"`
	ChatbotName  string `json:"chatbot_name"`
	ResponseType string `json:"response_type,omitempty"`
	GuildID      string `json:"guild_id"`
	ChannelID    string `json:"channel_id"`
}
