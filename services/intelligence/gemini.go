package intelligence

import (
	"context"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"tailortalk/models"
)

type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	return &GeminiClient{client: client, model: model}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, utterance string, c Context) (models.Candidate, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildPrompt(utterance, c)))
	if err != nil {
		return models.Candidate{}, fmt.Errorf("%w: gemini generate: %v", ErrExtractionUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return models.Candidate{}, fmt.Errorf("%w: gemini returned no candidates", ErrExtractionUnavailable)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			sb.WriteString(string(textPart))
		}
	}
	return parseCandidate(sb.String())
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}
