package models

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/quill/internal/config"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-6"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicChatModel implements model.BaseChatModel over Anthropic's Messages API.
type AnthropicChatModel struct {
	client    anthropic.Client
	modelName string
	maxTokens int
}

// NewAnthropic creates an Anthropic chat model.
func NewAnthropic(_ context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.BaseChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	var opts []option.RequestOption
	switch auth.Kind {
	case AuthBearerToken:
		opts = append(opts, option.WithAuthToken(auth.Value))
	default:
		opts = append(opts, option.WithAPIKey(auth.Value))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := 60 * time.Second
	if cfg.Timeout.Duration() > 0 {
		timeout = cfg.Timeout.Duration()
	}
	opts = append(opts, option.WithRequestTimeout(timeout))

	return &AnthropicChatModel{
		client:    anthropic.NewClient(opts...),
		modelName: modelName,
		maxTokens: maxTokens,
	}, nil
}

func (m *AnthropicChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.client.Messages.New(ctx, m.buildParams(messages, opts))
	if err != nil {
		return nil, HandleError(err)
	}

	out := &schema.Message{Role: schema.Assistant}
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.Content += block.Text
		}
	}
	return out, nil
}

func (m *AnthropicChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	stream := m.client.Messages.NewStreaming(ctx, m.buildParams(messages, opts))

	sr, sw := schema.Pipe[*schema.Message](10)
	go m.streamResponse(ctx, stream, sw)
	return sr, nil
}

func (m *AnthropicChatModel) buildParams(messages []*schema.Message, opts []model.Option) anthropic.MessageNewParams {
	options := model.GetCommonOptions(&model.Options{MaxTokens: &m.maxTokens}, opts...)

	maxTokens := m.maxTokens
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		maxTokens = *options.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: int64(maxTokens),
	}
	for _, msg := range messages {
		switch msg.Role {
		case schema.System:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case schema.Assistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return params
}

// streamResponse pumps text deltas from the SSE stream into the pipe.
// The pipe is closed on every exit path; a closed reader stops the pump.
func (m *AnthropicChatModel) streamResponse(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], writer *schema.StreamWriter[*schema.Message]) {
	defer writer.Close()
	defer stream.Close()

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			writer.Send(nil, err)
			return
		}

		event := stream.Current()
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
				continue
			}
			if closed := writer.Send(&schema.Message{Role: schema.Assistant, Content: event.Delta.Text}, nil); closed {
				return
			}
		case "message_stop":
			return
		}
	}

	if err := stream.Err(); err != nil {
		writer.Send(nil, HandleError(err))
	}
}

var _ model.BaseChatModel = (*AnthropicChatModel)(nil)
