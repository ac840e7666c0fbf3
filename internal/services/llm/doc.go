// Package llm provides an OpenAI-compatible chat completions client used by
// the stage agents to generate project artifacts.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts, receive free-form text.
// Client.CompleteJSON: send system/user prompts in JSON mode, receive a JSON payload.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: decode model output that may be fenced or wrapped in prose.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty content and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Context cancellation aborts retries immediately. Terminal failures
// carry a services marker (ErrConfiguration for rejected credentials,
// ErrTimeout, otherwise ErrExternalTool).
//
// A key is only mandatory for the hosted default endpoint; custom base URLs
// may be keyless, in which case no Authorization header is sent. Token usage
// and request outcomes are recorded in the metrics package.
package llm
