package tools

import (
	"context"
	"strings"
)

// WeatherTool returns canned weather for any location.
type WeatherTool struct{}

func NewWeatherTool() *WeatherTool { return &WeatherTool{} }

func (t *WeatherTool) Name() string { return "getWeather" }
func (t *WeatherTool) Tier() int    { return TierReadOnly }

func (t *WeatherTool) Description() string {
	return "Get the current weather for a location."
}

func (t *WeatherTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{
				"type":        "string",
				"description": "City or place name",
			},
		},
		"required": []string{"location"},
	}
}

func (t *WeatherTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	location := strings.TrimSpace(GetString(params, "location", ""))
	if location == "" {
		return FailureResult(CodeValidationFailed, "location is required"), nil
	}
	return encode(map[string]any{
		"location":    location,
		"temperature": 72,
		"condition":   "Sunny",
	}), nil
}
