// Package speech turns short voice notes into text so they can be handled as
// ordinary chat turns.
package speech

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	gax "github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

type Transcriber interface {
	Transcribe(ctx context.Context, clip Clip, language string) (string, error)
}

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

// GoogleTranscriber calls Cloud Speech-to-Text synchronously.
type GoogleTranscriber struct {
	client          recognizer
	closer          func() error
	defaultLanguage string
	logger          *zap.Logger
}

func NewGoogleTranscriber(ctx context.Context, credentialsFile, language string, logger *zap.Logger) (*GoogleTranscriber, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize speech client: %w", err)
	}
	if language == "" {
		language = "en-US"
	}
	return &GoogleTranscriber{
		client:          client,
		closer:          client.Close,
		defaultLanguage: language,
		logger:          logger,
	}, nil
}

func (g *GoogleTranscriber) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

func (g *GoogleTranscriber) Transcribe(ctx context.Context, clip Clip, language string) (string, error) {
	if language == "" {
		language = g.defaultLanguage
	}
	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:   clip.SampleRate,
			LanguageCode:      language,
			AudioChannelCount: 1,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: clip.Data},
		},
	}
	resp, err := g.client.Recognize(ctx, req)
	if err != nil {
		g.logger.Error("Speech recognition failed", zap.Error(err))
		return "", fmt.Errorf("speech recognition failed: %w", err)
	}
	text := joinTranscripts(resp)
	if text == "" {
		return "", ErrNoSpeech
	}
	g.logger.Debug("Transcribed voice turn", zap.Int("chars", len(text)), zap.String("language", language))
	return text, nil
}

// joinTranscripts keeps the top alternative of each result.
func joinTranscripts(resp *speechpb.RecognizeResponse) string {
	var b strings.Builder
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		b.WriteString(alts[0].GetTranscript())
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}
