package cmd

import (
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/voicecal/internal/intent"
	"github.com/joescharf/voicecal/internal/llm"
)

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}

// newExtractor returns the model-backed extractor when an API key is
// configured and the rule-based one otherwise.
func newExtractor() (intent.Extractor, error) {
	dir, err := contacts()
	if err != nil {
		return nil, err
	}
	if client := newLLMClient(); client != nil {
		logger.Debug("using model extractor", "model", client.Model())
		return intent.NewLLMExtractor(client, policy(), dir), nil
	}
	logger.Debug("using rule extractor", "contacts", dir.Len())
	return intent.NewRuleExtractor(policy(), dir), nil
}
