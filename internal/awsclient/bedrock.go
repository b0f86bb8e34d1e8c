package awsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/embedding"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/llm"
)

// BedrockAPI is the subset of the Bedrock runtime client used here.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockChat invokes a Bedrock chat model through the Converse API.
type BedrockChat struct {
	api         BedrockAPI
	model       string
	maxTokens   int32
	temperature float32
}

// NewBedrockChat creates a chat model client.
func NewBedrockChat(api BedrockAPI, model string, maxTokens int, temperature float64) *BedrockChat {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &BedrockChat{api: api, model: model, maxTokens: int32(maxTokens), temperature: float32(temperature)}
}

// Invoke sends prompt as one user turn and concatenates the text blocks of the reply.
func (b *BedrockChat) Invoke(ctx context.Context, prompt string) (string, error) {
	out, err := b.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.model),
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: prompt}},
		}},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(b.maxTokens),
			Temperature: aws.Float32(b.temperature),
		},
	})
	if err != nil {
		return "", fmt.Errorf("bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", llm.ErrNoResponse
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	if sb.Len() == 0 {
		return "", llm.ErrNoResponse
	}
	return sb.String(), nil
}

// TitanEmbedder produces embeddings with an Amazon Titan text embedding model.
type TitanEmbedder struct {
	api       BedrockAPI
	model     string
	dimension int
}

// NewTitanEmbedder creates an embedder.
func NewTitanEmbedder(api BedrockAPI, model string, dimension int) *TitanEmbedder {
	return &TitanEmbedder{api: api, model: model, dimension: dimension}
}

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedSingle embeds one text.
func (t *TitanEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("marshal titan request: %w", err)
	}
	out, err := t.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(t.model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke model: %w", err)
	}
	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode titan response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("titan returned an empty embedding")
	}
	if t.dimension == 0 {
		t.dimension = len(resp.Embedding)
	}
	return resp.Embedding, nil
}

// Embed embeds texts one request at a time; Titan has no batch endpoint.
func (t *TitanEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := t.EmbedSingle(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Model returns the model id.
func (t *TitanEmbedder) Model() string { return t.model }

// Dimension returns the embedding dimension.
func (t *TitanEmbedder) Dimension() int { return t.dimension }

var (
	_ llm.Model          = (*BedrockChat)(nil)
	_ embedding.Embedder = (*TitanEmbedder)(nil)
)
