// Package config loads the control plane's runtime configuration: a base
// YAML file (operator-facing defaults) overlaid with environment variables
// (spec §6 "Environment variables recognized"), mirroring the
// LoadConfig/LoadFromEnv/Validate layering the rest of the pack uses for
// reconciler configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LLMConfig configures the agent runtime's model provider (spec §6).
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
}

// DatabaseConfig selects and configures the Store backend (spec §6).
type DatabaseConfig struct {
	Type        string `yaml:"type"`
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url"`
}

// ExecutionConfig controls where CLI steps actually run (spec §4.5, §6).
type ExecutionConfig struct {
	Mode          string `yaml:"mode"`
	KubeNamespace string `yaml:"kube_namespace"`
}

// AgentConfig bounds the Agent Runtime's reasoning loop (spec §4.6, §6).
type AgentConfig struct {
	MaxIterations  int `yaml:"max_iterations"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ResourcesConfig locates the directory of Source/Workflow/Sink YAML specs
// the file-backed EventSource watches when EXECUTION_MODE=local has no
// CRD/cluster backend to reconcile against (spec §9 "Global mutable
// state... give it an explicit lifecycle").
type ResourcesConfig struct {
	Dir string `yaml:"dir"`
}

// ToolsConfig configures the Tool Registry's concrete tools (spec §4.7).
type ToolsConfig struct {
	KubeNamespaceWhitelist []string `yaml:"kube_namespace_whitelist"`
	KubeElevatedRole       string   `yaml:"kube_elevated_role"`
	PromQLEndpoint         string   `yaml:"promql_endpoint"`
	HTTPAllowedDomains     []string `yaml:"http_allowed_domains"`
}

// RedisConfig backs the Ingress Dispatcher's dedup/rate-limit counters
// (pkg/ingress.RateLimiter). An empty Addr disables rate limiting.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// QueueConfig bounds the Workflow Engine's run queue (spec §4.4, §5).
type QueueConfig struct {
	Capacity          int `yaml:"capacity"`
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
}

// TracingConfig configures the process-wide OpenTelemetry TracerProvider
// backing the workflow-step and agent-iteration spans (pkg/engine,
// pkg/agent). An empty OTLPEndpoint leaves the global no-op provider in
// place: spans are still created (so the instrumentation points are always
// exercised) but cost nothing when no collector is configured.
type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Config is the control plane's top-level runtime configuration.
type Config struct {
	ServerAddr string           `yaml:"server_addr"`
	LogLevel   string           `yaml:"log_level"`
	LLM        LLMConfig        `yaml:"llm"`
	Database   DatabaseConfig   `yaml:"database"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Agent      AgentConfig      `yaml:"agent"`
	Resources  ResourcesConfig  `yaml:"resources"`
	Tools      ToolsConfig      `yaml:"tools"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

func defaults() *Config {
	return &Config{
		ServerAddr: ":8080",
		LogLevel:   "info",
		LLM: LLMConfig{
			Provider:    "mock",
			Temperature: 0.2,
			MaxTokens:   4096,
		},
		Database: DatabaseConfig{
			Type:       "sqlite",
			SQLitePath: "controlplane.db",
		},
		Execution: ExecutionConfig{
			Mode: "local",
		},
		Agent: AgentConfig{
			MaxIterations:  15,
			TimeoutSeconds: 300,
		},
		Resources: ResourcesConfig{
			Dir: "./resources",
		},
		Queue: QueueConfig{
			Capacity:          256,
			MaxConcurrentRuns: 8,
		},
	}
}

// Default returns a fresh Config populated with the same defaults
// LoadConfig fills in for an empty file, for callers (e.g. main) that have
// no config file to overlay.
func Default() *Config {
	return defaults()
}

// LoadConfig reads and parses the YAML file at path, filling in defaults
// for anything the file leaves unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv overlays the environment variables named in spec §6 on top of
// whatever LoadConfig already populated. Unset variables leave the existing
// value untouched; malformed numeric/float values are reported as errors.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
		}
		c.LLM.Temperature = f
	}
	if v := os.Getenv("LLM_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LLM_MAX_TOKENS: %w", err)
		}
		c.LLM.MaxTokens = n
	}
	c.LLM.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.LLM.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.ServerAddr = v
	}
	if v := os.Getenv("DATABASE_TYPE"); v != "" {
		c.Database.Type = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DatabaseURL = v
	}
	if v := os.Getenv("EXECUTION_MODE"); v != "" {
		c.Execution.Mode = v
	}
	if v := os.Getenv("KUBE_NAMESPACE"); v != "" {
		c.Execution.KubeNamespace = v
	}
	if v := os.Getenv("AGENT_MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AGENT_MAX_ITERATIONS: %w", err)
		}
		c.Agent.MaxIterations = n
	}
	if v := os.Getenv("AGENT_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AGENT_TIMEOUT_SECONDS: %w", err)
		}
		c.Agent.TimeoutSeconds = n
	}

	return nil
}

// Validate enforces the cross-field constraints spec §6 implies: a known
// LLM provider, an API key present unless the provider is mock, a known
// database type with its corresponding connection detail set, and a known
// execution mode with its namespace set when running against a cluster.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("llm.provider is anthropic but ANTHROPIC_API_KEY is not set")
		}
	case "openai", "bedrock":
		if c.LLM.Provider == "openai" && c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("llm.provider is openai but OPENAI_API_KEY is not set")
		}
	case "mock":
		// no credentials required
	default:
		return fmt.Errorf("llm.provider must be one of anthropic, openai, bedrock, mock, got %q", c.LLM.Provider)
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.type is sqlite but sqlite_path is empty")
		}
	case "postgres":
		if c.Database.DatabaseURL == "" {
			return fmt.Errorf("database.type is postgres but database_url is empty")
		}
	default:
		return fmt.Errorf("database.type must be sqlite or postgres, got %q", c.Database.Type)
	}

	switch c.Execution.Mode {
	case "local":
	case "kubernetes":
		if c.Execution.KubeNamespace == "" {
			return fmt.Errorf("execution.mode is kubernetes but kube_namespace is empty")
		}
	default:
		return fmt.Errorf("execution.mode must be local or kubernetes, got %q", c.Execution.Mode)
	}

	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be greater than 0")
	}
	if c.Agent.TimeoutSeconds <= 0 {
		return fmt.Errorf("agent.timeout_seconds must be greater than 0")
	}

	return nil
}
