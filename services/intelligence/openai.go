package intelligence

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"tailortalk/models"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model}
}

func (o *OpenAIClient) Complete(ctx context.Context, utterance string, c Context) (models.Candidate, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(utterance, c)},
		},
	})
	if err != nil {
		return models.Candidate{}, fmt.Errorf("%w: openai chat completion: %v", ErrExtractionUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return models.Candidate{}, fmt.Errorf("%w: openai returned no choices", ErrExtractionUnavailable)
	}
	return parseCandidate(resp.Choices[0].Message.Content)
}
