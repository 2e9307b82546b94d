/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	mistral "github.com/gage-technologies/mistral-go"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	googleoption "google.golang.org/api/option"

	"github.com/argoplatform/argonaut/internal/config"
)

// toPrompt flattens a chat-style message slice into a single string
// for providers whose Go SDK doesn't expose per-role chat turns.
func toPrompt(messages []Message) string {
	var out string
	for _, m := range messages {
		out += string(m.Role) + ": " + m.Content + "\n"
	}
	return out
}

// --- anthropic -------------------------------------------------------

type anthropicBackend struct {
	sdk   anthropic.Client
	model string
}

func newAnthropicBackend(cfg config.LLMConfig) (backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic provider requires api_key")
	}
	return &anthropicBackend{
		sdk:   anthropic.NewClient(anthropicoption.WithAPIKey(cfg.APIKey)),
		model: cfg.Model,
	}, nil
}

func (b *anthropicBackend) complete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	var msgs []anthropic.MessageParam
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		msgs = append(msgs, anthropic.MessageParam{
			Role:    anthropic.F(role),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}),
		})
	}

	resp, err := b.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(b.model),
		MaxTokens: anthropic.F(int64(opts.MaxTokens)),
		Messages:  anthropic.F(msgs),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic returned an empty response")
	}
	return resp.Content[0].Text, nil
}

// --- bedrock ---------------------------------------------------------

type bedrockBackend struct {
	client *bedrockruntime.Client
	model  string
}

func newBedrockBackend(cfg config.LLMConfig) (backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return &bedrockBackend{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  cfg.Model,
	}, nil
}

func (b *bedrockBackend) complete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	body := []byte(fmt.Sprintf(`{"prompt":%q,"max_tokens":%d,"temperature":%f}`,
		toPrompt(messages), opts.MaxTokens, opts.Temperature))

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", err
	}
	return string(out.Body), nil
}

// --- gemini ------------------------------------------------------------

type geminiBackend struct {
	sdk   *genai.Client
	model string
}

func newGeminiBackend(cfg config.LLMConfig) (backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires api_key")
	}
	sdk, err := genai.NewClient(context.Background(), googleoption.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}
	return &geminiBackend{sdk: sdk, model: cfg.Model}, nil
}

func (b *geminiBackend) complete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	model := b.sdk.GenerativeModel(b.model)
	model.SetTemperature(float32(opts.Temperature))
	model.SetMaxOutputTokens(int32(opts.MaxTokens))

	resp, err := model.GenerateContent(ctx, genai.Text(toPrompt(messages)))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("gemini returned a non-text part")
	}
	return string(text), nil
}

// --- mistral -----------------------------------------------------------

type mistralBackend struct {
	sdk   *mistral.MistralClient
	model string
}

func newMistralBackend(cfg config.LLMConfig) (backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("mistral provider requires api_key")
	}
	return &mistralBackend{
		sdk:   mistral.NewMistralClientDefault(cfg.APIKey),
		model: cfg.Model,
	}, nil
}

func (b *mistralBackend) complete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	var chatMessages []mistral.ChatMessage
	for _, m := range messages {
		chatMessages = append(chatMessages, mistral.ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := b.sdk.Chat(b.model, chatMessages, &mistral.ChatRequestParams{
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("mistral returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// --- generic (any OpenAI-compatible self-hosted endpoint) --------------

type genericBackend struct {
	sdk *openai.LLM
}

func newGenericBackend(cfg config.LLMConfig) (backend, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.Endpoint != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	sdk, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &genericBackend{sdk: sdk}, nil
}

func (b *genericBackend) complete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	var content []llms.MessageContent
	for _, m := range messages {
		var llmType llms.ChatMessageType
		switch m.Role {
		case RoleSystem:
			llmType = llms.ChatMessageTypeSystem
		case RoleAssistant:
			llmType = llms.ChatMessageTypeAI
		default:
			llmType = llms.ChatMessageTypeHuman
		}
		content = append(content, llms.TextParts(llmType, m.Content))
	}

	resp, err := b.sdk.GenerateContent(ctx, content,
		llms.WithMaxTokens(opts.MaxTokens),
		llms.WithTemperature(opts.Temperature),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generic provider returned no choices")
	}
	return resp.Choices[0].Content, nil
}
