package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/course-studio/backend/internal/generator"
)

type Config struct {
	Port    string
	LogMode string

	DatabaseURL string

	AnthropicAPIKey       string
	AnthropicModel        string
	AnthropicPlannerModel string

	MockGenerator bool
	TestMode      bool
	UseCLI        bool
	CLIPath       string

	PlanningEnabled     bool
	PlanningConcurrency int

	CourseCacheSize int
	CourseCacheTTL  time.Duration

	JWTSecret          string
	CORSAllowedOrigins []string
}

// Load reads the process environment. It never fails; malformed numbers
// fall back to their defaults.
func Load() *Config {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup so tests can supply a fake
// environment.
func LoadFrom(lookup func(string) (string, bool)) *Config {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}
	getBool := func(key string) bool {
		b, err := strconv.ParseBool(get(key, "false"))
		return err == nil && b
	}
	getInt := func(key string, fallback int) int {
		n, err := strconv.Atoi(get(key, ""))
		if err != nil || n <= 0 {
			return fallback
		}
		return n
	}

	model := get("ANTHROPIC_MODEL", "claude-sonnet-4-5")

	return &Config{
		Port:    get("PORT", "8080"),
		LogMode: get("LOG_MODE", "dev"),

		DatabaseURL: get("DATABASE_URL", ""),

		AnthropicAPIKey:       get("ANTHROPIC_API_KEY", ""),
		AnthropicModel:        model,
		AnthropicPlannerModel: get("ANTHROPIC_PLANNER_MODEL", model),

		MockGenerator: getBool("MOCK_GENERATOR"),
		TestMode:      getBool("GENERATOR_TEST_MODE") || getBool("CI"),
		UseCLI:        getBool("USE_CLI_GENERATOR"),
		CLIPath:       get("CLAUDE_CLI_PATH", "claude"),

		PlanningEnabled:     getBool("PLANNING_ENABLED"),
		PlanningConcurrency: getInt("PLANNING_CONCURRENCY", 4),

		CourseCacheSize: getInt("COURSE_CACHE_SIZE", 512),
		CourseCacheTTL:  time.Duration(getInt("COURSE_CACHE_TTL_SECONDS", 300)) * time.Second,

		JWTSecret:          get("JWT_SECRET", ""),
		CORSAllowedOrigins: splitList(get("CORS_ALLOWED_ORIGINS", "*")),
	}
}

// ResolveMode picks the one generation mode for the process. Mock wins when
// asked for explicitly, under test/CI, or when there is nothing real to
// talk to.
func (c *Config) ResolveMode() generator.Mode {
	switch {
	case c.MockGenerator, c.TestMode:
		return generator.ModeMock
	case c.UseCLI:
		return generator.ModeCLI
	case c.AnthropicAPIKey == "":
		return generator.ModeMock
	}
	return generator.ModeLive
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
