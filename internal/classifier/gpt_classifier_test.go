package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/treshel/botboard/pkg/retry"
)

type fakeCompleter struct {
	responses []string
	errs      []error
	calls     int
	requests  []openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	content := ""
	if i < len(f.responses) {
		content = f.responses[i]
	}
	if content == "" {
		return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{}}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}, nil
}

func newTestClassifier(fake *fakeCompleter) *GPTClassifier {
	return &GPTClassifier{
		client:      fake,
		model:       "gpt-3.5-turbo",
		maxTokens:   150,
		temperature: 0.3,
		retry:       retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		logger:      zap.NewNop(),
	}
}

func TestClassifySuccess(t *testing.T) {
	fake := &fakeCompleter{
		responses: []string{`{"language":"en","topic":"💭 billing issue","name":"Alice"}`},
	}
	clf := newTestClassifier(fake)

	result, err := clf.Classify(context.Background(), []string{"Hi", "I have a billing question"})
	require.NoError(t, err)

	assert.Equal(t, "en", result.Language)
	assert.Equal(t, "💭 billing issue", result.Topic)
	assert.Equal(t, "Alice", result.Name)

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.True(t, strings.Contains(req.Messages[0].Content, "Hi\nI have a billing question"))
	assert.Equal(t, float32(0.3), req.Temperature)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
}

func TestClassifyDefaultsNameToUnknown(t *testing.T) {
	fake := &fakeCompleter{
		responses: []string{`{"language":"de","topic":"🚚 delivery status"}`},
	}
	clf := newTestClassifier(fake)

	result, err := clf.Classify(context.Background(), []string{"Wo ist mein Paket?"})
	require.NoError(t, err)
	assert.Equal(t, "unknown", result.Name)
}

func TestClassifyEmptyResponse(t *testing.T) {
	fake := &fakeCompleter{responses: []string{""}}
	clf := newTestClassifier(fake)

	_, err := clf.Classify(context.Background(), []string{"hello"})
	require.Error(t, err)

	var clsErr *ClassificationError
	require.ErrorAs(t, err, &clsErr)
	assert.Equal(t, ReasonEmptyResponse, clsErr.Reason)
}

func TestClassifyMalformedResponse(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"not json at all"}}
	clf := newTestClassifier(fake)

	_, err := clf.Classify(context.Background(), []string{"hello"})
	require.Error(t, err)

	var clsErr *ClassificationError
	require.ErrorAs(t, err, &clsErr)
	assert.Equal(t, ReasonMalformedResponse, clsErr.Reason)
}

func TestClassifyRetriesTransportErrors(t *testing.T) {
	fake := &fakeCompleter{
		errs:      []error{errors.New("connection reset")},
		responses: []string{"", `{"language":"en","topic":"📦 order tracking","name":"unknown"}`},
	}
	clf := newTestClassifier(fake)

	result, err := clf.Classify(context.Background(), []string{"where is my order"})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
	assert.Equal(t, "en", result.Language)
}
