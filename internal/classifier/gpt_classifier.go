package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/treshel/botboard/internal/models"
	"github.com/treshel/botboard/pkg/retry"
)

// chatCompleter is the slice of the OpenAI client the classifier
// uses; *openai.Client satisfies it.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type GPTClassifier struct {
	client      chatCompleter
	model       string
	maxTokens   int
	temperature float64
	retry       retry.Policy
	logger      *zap.Logger
}

func NewGPTClassifier(apiKey, model string, maxTokens int, temperature float64, policy retry.Policy, logger *zap.Logger) *GPTClassifier {
	return &GPTClassifier{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		retry:       policy,
		logger:      logger,
	}
}

const classifyPromptTemplate = `Analyze the following conversation and provide:
1. The primary language used (return just the ISO 639-1 code, e.g., 'en' for English)
2. A 3-5 word topic summary that captures the main subject, prefixed with a single representative emoji
3. A short name or identifier for the conversation partner, or the literal string "unknown" if none can be inferred

Note: This is a full conversation including both user and AI messages. Please analyze all messages to determine the actual topic of conversation.

Conversation:
%s

Respond in the following JSON format only:
{
  "language": "xx",
  "topic": "emoji brief topic here",
  "name": "name or unknown"
}`

// Classify joins the messages chronologically and asks the model for
// the classification triple. Transport failures go through the retry
// policy; an empty or non-JSON response is a ClassificationError and
// is not retried.
func (c *GPTClassifier) Classify(ctx context.Context, messages []string) (models.Classification, error) {
	prompt := fmt.Sprintf(classifyPromptTemplate, strings.Join(messages, "\n"))

	var resp openai.ChatCompletionResponse
	err := c.retry.Do(ctx, func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		return err
	})
	if err != nil {
		return models.Classification{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return models.Classification{}, &ClassificationError{Reason: ReasonEmptyResponse}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var result models.Classification
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		c.logger.Error("failed to parse classification response",
			zap.Error(err),
			zap.String("response", content))
		return models.Classification{}, &ClassificationError{Reason: ReasonMalformedResponse, Err: err}
	}

	if result.Name == "" {
		result.Name = "unknown"
	}

	return result, nil
}
