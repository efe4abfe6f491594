package refine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/quill/internal/prompt"
)

// ModelSource resolves a chat model by provider name ("" = default).
type ModelSource interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// ModelBackend refines text with a single non-streaming model call.
type ModelBackend struct {
	Models   ModelSource
	Provider string
}

// Refine asks the model for the refined text. Reasoning blocks are stripped;
// an empty answer is an error.
func (b *ModelBackend) Refine(ctx context.Context, text string, mode prompt.Mode) (string, error) {
	if !mode.IsRefinement() {
		return "", fmt.Errorf("mode %s is not a refinement", mode)
	}
	m, err := b.Models.Get(ctx, b.Provider)
	if err != nil {
		return "", err
	}

	pair := prompt.Build(mode, text, "")
	msg, err := m.Generate(ctx, []*schema.Message{
		schema.SystemMessage(pair.System),
		schema.UserMessage(pair.User),
	})
	if err != nil {
		return "", err
	}

	refined := Clean(msg.Content)
	if refined == "" {
		return "", errors.New("model returned an empty refinement")
	}
	return refined, nil
}

var (
	reasoningBlockRe = regexp.MustCompile(`(?is)<think>.*?</think>|<thinking>.*?</thinking>|<reasoning>.*?</reasoning>`)
	// opened and never closed: the model was cut off mid-thought
	truncatedReasoningRe = regexp.MustCompile(`(?is)(?:<think>|<thinking>|<reasoning>).*$`)
)

// Clean removes reasoning blocks some models emit before their answer.
func Clean(text string) string {
	text = reasoningBlockRe.ReplaceAllString(text, "")
	text = truncatedReasoningRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
