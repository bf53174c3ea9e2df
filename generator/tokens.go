package generator

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/hupe1980/actionmesh/core"
)

const fallbackEncoding = "cl100k_base"

var (
	encMu    sync.Mutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

func encodingFor(model string) *tiktoken.Tiktoken {
	encMu.Lock()
	defer encMu.Unlock()
	if enc, ok := encCache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		enc = nil
	}
	encCache[model] = enc
	return enc
}

// EstimateTokens counts the tokens of text for model. It falls back to
// len/4 when no tokenizer can be loaded.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// EstimateUsage approximates usage for backends that omit it. Input covers
// the system prompt, prompt and every history message text.
func EstimateUsage(model string, opts core.ChatOptions, completion string) *core.Usage {
	in := EstimateTokens(model, opts.Prompt)
	if opts.SystemPrompt != nil {
		in += EstimateTokens(model, *opts.SystemPrompt)
	}
	for _, m := range opts.History {
		switch msg := m.(type) {
		case core.AgentMessage:
			in += EstimateTokens(model, msg.Content)
		case core.FeedbackMessage:
			in += EstimateTokens(model, msg.Text())
		}
	}
	return &core.Usage{InputTokens: in, OutputTokens: EstimateTokens(model, completion)}
}
