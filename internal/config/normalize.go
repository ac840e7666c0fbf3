package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeEmbedding()
	c.normalizeLLM()
	c.normalizeWorkflow()
	c.normalizeAPI()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := lookupEnv(envDataDir); ok {
		c.Paths.DataDir = value
	}
	if c.LLM.APIKey == "" {
		if value, ok := lookupEnv(envLLMAPIKey); ok {
			c.LLM.APIKey = value
		} else if value, ok := lookupEnv(envOpenAIAPIKey); ok {
			c.LLM.APIKey = value
		}
	}
	if c.Embedding.APIKey == "" {
		if value, ok := lookupEnv(envOpenAIAPIKey); ok {
			c.Embedding.APIKey = value
		} else {
			c.Embedding.APIKey = c.LLM.APIKey
		}
	}
	if c.API.Token == "" {
		if value, ok := lookupEnv(envAPIToken); ok {
			c.API.Token = value
		}
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Workflow.Instructions, err = expandPath(strings.TrimSpace(c.Workflow.Instructions)); err != nil {
		return fmt.Errorf("workflow.instructions: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() {
	if c.Store.Dimension == 0 {
		c.Store.Dimension = defaultDimension
	}
	if c.Store.EmbedAttempts == 0 {
		c.Store.EmbedAttempts = defaultEmbedAttempts
	}
	if c.Store.PersistAttempts == 0 {
		c.Store.PersistAttempts = defaultPersistAttempts
	}
	if c.Store.TopK == 0 {
		c.Store.TopK = defaultTopK
	}
}

func (c *Config) normalizeEmbedding() {
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = defaultEmbeddingProvider
	}
	c.Embedding.BaseURL = strings.TrimRight(strings.TrimSpace(c.Embedding.BaseURL), "/")
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = defaultEmbeddingBaseURL
	}
	c.Embedding.Model = strings.TrimSpace(c.Embedding.Model)
	if c.Embedding.Model == "" {
		c.Embedding.Model = defaultEmbeddingModel
	}
	if c.Embedding.TimeoutSeconds <= 0 {
		c.Embedding.TimeoutSeconds = defaultEmbeddingTimeout
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.DefaultUnits == 0 {
		c.Workflow.DefaultUnits = defaultWorkflowUnits
	}
	if c.Workflow.FanoutStart == 0 && c.Workflow.FanoutEnd == 0 {
		c.Workflow.FanoutStart = defaultWorkflowFanoutStart
		c.Workflow.FanoutEnd = defaultWorkflowFanoutEnd
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
