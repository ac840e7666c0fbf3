package config

const (
	defaultConfigPath          = "~/.config/quire/config.toml"
	defaultDataDir             = "~/.local/share/quire"
	defaultLogDir              = "~/.local/share/quire/logs"
	defaultDimension           = 384
	defaultEmbedAttempts       = 3
	defaultEmbedBackoffMS      = 1000
	defaultPersistAttempts     = 3
	defaultTopK                = 5
	defaultMinSimilarity       = 0.7
	defaultEmbeddingProvider   = "hash"
	defaultEmbeddingBaseURL    = "https://api.openai.com/v1"
	defaultEmbeddingModel      = "text-embedding-3-small"
	defaultEmbeddingTimeout    = 30
	defaultLLMBaseURL          = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel            = "gpt-4o-mini"
	defaultLLMTemperature      = 0.7
	defaultLLMTimeoutSeconds   = 120
	defaultWorkflowUnits       = 12
	defaultWorkflowFanoutStart = 60
	defaultWorkflowFanoutEnd   = 90
	defaultAPIBind             = "127.0.0.1:7610"
	defaultNtfyTimeout         = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	embeddingProviderOpenAI    = "openai"
	embeddingProviderHash      = "hash"
	envLLMAPIKey               = "QUIRE_LLM_API_KEY"
	envOpenAIAPIKey            = "OPENAI_API_KEY"
	envDataDir                 = "QUIRE_DATA_DIR"
	envAPIToken                = "QUIRE_API_TOKEN"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Store: Store{
			Dimension:       defaultDimension,
			EmbedAttempts:   defaultEmbedAttempts,
			EmbedBackoffMS:  defaultEmbedBackoffMS,
			PersistAttempts: defaultPersistAttempts,
			TopK:            defaultTopK,
			MinSimilarity:   defaultMinSimilarity,
		},
		Embedding: Embedding{
			Provider:       defaultEmbeddingProvider,
			BaseURL:        defaultEmbeddingBaseURL,
			Model:          defaultEmbeddingModel,
			TimeoutSeconds: defaultEmbeddingTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Temperature:    defaultLLMTemperature,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Workflow: Workflow{
			DefaultUnits: defaultWorkflowUnits,
			FanoutStart:  defaultWorkflowFanoutStart,
			FanoutEnd:    defaultWorkflowFanoutEnd,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
