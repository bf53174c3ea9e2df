// Package deepseek connects to the DeepSeek OpenAI-compatible endpoint.
package deepseek

import (
	"github.com/hupe1980/actionmesh/generator"
	"github.com/hupe1980/actionmesh/generator/openai"
)

// Profile is the DeepSeek backend profile.
var Profile = openai.Profile{
	Provider:  "deepseek",
	APIKeyEnv: "DEEPSEEK_API_KEY",
	BaseURL:   "https://api.deepseek.com/v1/",
	Probe:     openai.ProbeToolCall,
}

// New creates a DeepSeek client. It fails with core.ErrAuthMissing when
// DEEPSEEK_API_KEY is unset and no key is configured.
func New(optFns ...func(o *generator.Options)) (*openai.Client, error) {
	return openai.NewCompatible(Profile, optFns...)
}
