package config

// StrategyConfig selects models per exchange role with ordered fallbacks.
// Roles: "chat" drives the conversation loop, "script" drives analysis
// script synthesis. Empty values fall back to the default model.
type StrategyConfig struct {
	ChatModel   string   `mapstructure:"chat_model"`
	ScriptModel string   `mapstructure:"script_model"`
	Fallbacks   []string `mapstructure:"fallbacks"` // ordered fallback model ids
}
