package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/course-studio/backend/internal/generator"
)

func envOf(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg := LoadFrom(envOf(nil))

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "dev", cfg.LogMode)
	assert.Equal(t, "claude-sonnet-4-5", cfg.AnthropicModel)
	assert.Equal(t, cfg.AnthropicModel, cfg.AnthropicPlannerModel)
	assert.Equal(t, "claude", cfg.CLIPath)
	assert.Equal(t, 4, cfg.PlanningConcurrency)
	assert.Equal(t, 512, cfg.CourseCacheSize)
	assert.Equal(t, 5*time.Minute, cfg.CourseCacheTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.PlanningEnabled)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg := LoadFrom(envOf(map[string]string{
		"PORT":                     "9090",
		"PLANNING_ENABLED":         "true",
		"PLANNING_CONCURRENCY":     "not-a-number",
		"COURSE_CACHE_TTL_SECONDS": "30",
		"CORS_ALLOWED_ORIGINS":     "https://a.example, https://b.example ,",
		"ANTHROPIC_PLANNER_MODEL":  "claude-haiku-4-5",
	}))

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.PlanningEnabled)
	assert.Equal(t, 4, cfg.PlanningConcurrency)
	assert.Equal(t, 30*time.Second, cfg.CourseCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "claude-haiku-4-5", cfg.AnthropicPlannerModel)
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want generator.Mode
	}{
		{"nothing configured", nil, generator.ModeMock},
		{"credential", map[string]string{"ANTHROPIC_API_KEY": "sk"}, generator.ModeLive},
		{"blank credential", map[string]string{"ANTHROPIC_API_KEY": "  "}, generator.ModeMock},
		{"mock flag beats credential", map[string]string{"ANTHROPIC_API_KEY": "sk", "MOCK_GENERATOR": "true"}, generator.ModeMock},
		{"test mode beats credential", map[string]string{"ANTHROPIC_API_KEY": "sk", "GENERATOR_TEST_MODE": "1"}, generator.ModeMock},
		{"CI beats CLI", map[string]string{"USE_CLI_GENERATOR": "true", "CI": "true"}, generator.ModeMock},
		{"CLI without credential", map[string]string{"USE_CLI_GENERATOR": "true"}, generator.ModeCLI},
		{"CLI with credential", map[string]string{"USE_CLI_GENERATOR": "true", "ANTHROPIC_API_KEY": "sk"}, generator.ModeCLI},
		{"unparseable flag is false", map[string]string{"ANTHROPIC_API_KEY": "sk", "MOCK_GENERATOR": "yes"}, generator.ModeLive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LoadFrom(envOf(tt.env)).ResolveMode())
		})
	}
}
