package llm

import (
	"fmt"
	"strings"
	"time"
)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// chatChoice accepts the regular message shape, the streaming delta shape
// some providers send with stream=false, and legacy completion text.
type chatChoice struct {
	Message      choiceMessage `json:"message"`
	Delta        choiceMessage `json:"delta"`
	Text         string        `json:"text"`
	FinishReason string        `json:"finish_reason"`
}

type choiceMessage struct {
	Content      string `json:"content"`
	Refusal      string `json:"refusal"`
	FunctionCall *struct {
		Arguments string `json:"arguments"`
	} `json:"function_call"`
	ToolCalls []struct {
		Function struct {
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

func (m choiceMessage) arguments() string {
	if m.FunctionCall != nil {
		if args := strings.TrimSpace(m.FunctionCall.Arguments); args != "" {
			return args
		}
	}
	for _, call := range m.ToolCalls {
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			return args
		}
	}
	return ""
}

// text returns the first usable output across choices, falling back to tool
// call arguments, plus the first reported finish reason.
func (r chatResponse) text() (content, finish string) {
	for _, choice := range r.Choices {
		if finish == "" {
			finish = strings.TrimSpace(choice.FinishReason)
		}
		for _, candidate := range []string{
			choice.Message.Content,
			choice.Delta.Content,
			choice.Text,
			choice.Message.arguments(),
			choice.Delta.arguments(),
		} {
			if trimmed := strings.TrimSpace(candidate); trimmed != "" {
				return trimmed, finish
			}
		}
	}
	return "", finish
}

func (r chatResponse) refusal() string {
	for _, choice := range r.Choices {
		for _, candidate := range []string{choice.Message.Refusal, choice.Delta.Refusal} {
			if trimmed := strings.TrimSpace(candidate); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

type statusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("generation service returned http %d: %s", e.Code, e.Body)
}

// emptyOutputError reports a successful response that carried no text.
type emptyOutputError struct {
	Op      string
	Finish  string
	Refusal string
	Snippet string
}

func (e *emptyOutputError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.Op, e.Finish, e.Refusal, e.Snippet)
}
