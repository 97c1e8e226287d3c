// Package model defines the provider-agnostic inference service abstraction
// used by the kernel and a few helpers around it.
//
// Core goals:
//   - One small interface (Generate text from a prompt) for every provider
//   - A retry budget per call that is separate from the task retry budget
//   - A deterministic offline generator for demos and tests without API keys
//   - Lightweight mocking for tests (MockModel)
//
// Providers (Anthropic, OpenAI) live in sub packages and implement Model so
// higher layers remain decoupled from vendor SDKs.
package model
