package provider

import (
	"fmt"

	"github.com/KafClaw/sheetclaw/internal/config"
)

// Resolve creates the LLMProvider selected by cfg.Provider.
func Resolve(cfg *config.Config) (LLMProvider, error) {
	p := cfg.Provider
	switch p.Kind {
	case config.ProviderAzure:
		if p.APIKey == "" || p.APIBase == "" {
			return nil, fmt.Errorf("azure provider requires an API key and endpoint")
		}
		return NewAzureProvider(p.APIKey, p.APIBase, p.APIVersion, p.Deployment), nil
	case config.ProviderOpenAI, "":
		if p.APIKey == "" {
			return nil, fmt.Errorf("no API key configured (set provider.apiKey or OPENAI_API_KEY)")
		}
		return NewOpenAIProvider(p.APIKey, p.APIBase, cfg.Model.Name), nil
	}
	return nil, fmt.Errorf("unknown provider kind %q", p.Kind)
}
