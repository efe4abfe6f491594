package models

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/dohr-michael/quill/internal/config"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiChatModel implements model.BaseChatModel over the Gemini API.
type GeminiChatModel struct {
	client    *genai.Client
	modelName string
	maxTokens int32
}

// NewGemini creates a Gemini chat model.
func NewGemini(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.BaseChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	timeout := 60 * time.Second
	if cfg.Timeout.Duration() > 0 {
		timeout = cfg.Timeout.Duration()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     auth.Value,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiChatModel{
		client:    client,
		modelName: modelName,
		maxTokens: int32(cfg.MaxTokens),
	}, nil
}

func (m *GeminiChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	contents, genCfg := m.buildRequest(messages, opts)
	resp, err := m.client.Models.GenerateContent(ctx, m.modelName, contents, genCfg)
	if err != nil {
		return nil, HandleError(err)
	}
	return &schema.Message{Role: schema.Assistant, Content: resp.Text()}, nil
}

func (m *GeminiChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	contents, genCfg := m.buildRequest(messages, opts)

	sr, sw := schema.Pipe[*schema.Message](10)
	go func() {
		defer sw.Close()
		for resp, err := range m.client.Models.GenerateContentStream(ctx, m.modelName, contents, genCfg) {
			if err != nil {
				sw.Send(nil, HandleError(err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if closed := sw.Send(&schema.Message{Role: schema.Assistant, Content: text}, nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

func (m *GeminiChatModel) buildRequest(messages []*schema.Message, opts []model.Option) ([]*genai.Content, *genai.GenerateContentConfig) {
	maxTokens := int(m.maxTokens)
	options := model.GetCommonOptions(&model.Options{MaxTokens: &maxTokens}, opts...)

	genCfg := &genai.GenerateContentConfig{}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(*options.MaxTokens)
	}

	var system []string
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, genCfg
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)
