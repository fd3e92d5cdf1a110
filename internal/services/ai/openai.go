package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 60 * time.Second

	// TitleMaxTokens caps the response length for thread title generation
	TitleMaxTokens = 30

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

const replySystemPrompt = "You are a helpful assistant for a task management app. " +
	"You help users plan, prioritize, and work through their tasks. " +
	"Be concise and practical."

const titleSystemPrompt = "You are a helpful assistant that writes short titles for conversations. " +
	"Respond with the title only, no quotes and no trailing punctuation."

// OpenAIProvider implements the AIProvider interface using OpenAI's API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, nil, false)
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// NewOpenAIProviderWithConfig creates a new OpenAI provider with custom configuration
func NewOpenAIProviderWithConfig(apiKey string, baseURL string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, baseURL, model, nil, false)
}

// Reply generates the assistant's next message for a conversation.
func (p *OpenAIProvider) Reply(ctx context.Context, taskContext string, turns []Turn) (string, error) {
	messages := buildReplyMessages(taskContext, turns)

	req := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
		// Temperature omitted - use model default to avoid "unsupported_value" errors
	}

	var prompt string
	if len(turns) > 0 {
		prompt = turns[len(turns)-1].Content
	}

	content, err := p.send(ctx, "reply", prompt, req, len(turns))
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	return content, nil
}

// TitleThread produces a short title summarizing a conversation.
func (p *OpenAIProvider) TitleThread(ctx context.Context, turns []Turn) (string, error) {
	prompt := buildTitlePrompt(turns)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(titleSystemPrompt),
		openai.UserMessage(prompt),
	}

	req := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(p.model),
		Messages:  messages,
		MaxTokens: openai.Int(TitleMaxTokens),
	}

	content, err := p.send(ctx, "title_thread", prompt, req, len(turns))
	if err != nil {
		return "", fmt.Errorf("failed to title thread: %w", err)
	}
	return cleanTitle(content), nil
}

// send issues one chat completion request with debug logging around it.
func (p *OpenAIProvider) send(ctx context.Context, operation string, prompt string, req openai.ChatCompletionNewParams, turnCount int) (string, error) {
	requestID := ExtractRequestID(ctx)
	userIDStr := ExtractUserID(ctx)
	threadIDStr := ExtractThreadID(ctx)

	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", operation),
			zap.String("model", p.model),
			zap.Int("turn_count", turnCount),
			zap.String("prompt_preview", SanitizePrompt(prompt, true)),
			zap.String("user_id", userIDStr),
			zap.String("thread_id", threadIDStr),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)

	if err != nil {
		if p.logger != nil && p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("operation", operation),
				zap.String("model", p.model),
				zap.Error(err),
				zap.String("user_id", userIDStr),
				zap.String("thread_id", threadIDStr),
				zap.String("request_id", requestID),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", apiErr
		}
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content

	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", operation),
			zap.String("model", p.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("user_id", userIDStr),
			zap.String("thread_id", threadIDStr),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}

	return content, nil
}

// buildReplySystemPrompt folds the task summary into the assistant's
// system prompt.
func buildReplySystemPrompt(taskContext string) string {
	if taskContext == "" {
		return replySystemPrompt
	}
	return replySystemPrompt + "\n\nThe user's current tasks:\n" + taskContext
}

// buildReplyMessages assembles the system prompt plus the conversation
// turns in OpenAI's message format.
func buildReplyMessages(taskContext string, turns []Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	messages = append(messages, openai.SystemMessage(buildReplySystemPrompt(taskContext)))

	for _, turn := range turns {
		switch turn.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	return messages
}

// buildTitlePrompt renders the conversation for the titling request.
func buildTitlePrompt(turns []Turn) string {
	var b strings.Builder
	b.WriteString("Write a title of at most six words for this conversation:\n\n")
	for _, turn := range turns {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// cleanTitle strips quotes, newlines, and stray whitespace from a
// generated title.
func cleanTitle(title string) string {
	title = strings.ReplaceAll(title, "\n", " ")
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	return strings.Join(strings.Fields(title), " ")
}

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry) {
	registry.Register("openai", func(config map[string]string) (AIProvider, error) {
		apiKey, ok := config["api_key"]
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("openai api_key is required")
		}

		model := config["model"]
		baseURL := config["base_url"]

		return NewOpenAIProviderWithConfig(apiKey, baseURL, model), nil
	})
}
