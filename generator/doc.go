// Package generator defines the provider-agnostic chat/tool-calling contract
// and the helpers every provider adapter shares.
//
// Core goals:
//   - One Client interface over heterogeneous provider protocols
//   - Deterministic tool schema synthesis from the enabled namespaces
//   - A single decoding path from tool-call arguments to core.Invocation
//   - Bounded rate-limit recovery with exponential backoff and jitter
//   - Lightweight mocking for tests (MockClient)
//
// Providers (openai, groq, deepseek, anthropic, gemini) live in subpackages
// so higher layers stay decoupled from vendor SDKs.
package generator
