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

// Package llm wraps the five NL->SQL-capable providers the nlpipeline
// can target behind one interface, so swapping providers is a config
// change rather than a code change.
package llm

import "context"

// Role identifies who authored a Message in a chat-style prompt.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat-style prompt.
type Message struct {
	Role    Role
	Content string
}

// ChatOptions tunes a single Chat call, overriding the client's
// configured defaults when non-zero.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
}

// Client is the single surface the nlpipeline and summarizer call
// against, regardless of which provider backs it.
type Client interface {
	// Chat sends messages to the underlying model and returns its
	// completion text.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)

	// GeneratePrompt renders a single NL-to-SQL question plus its
	// schema/history context into the chat-style prompt string the
	// nlpipeline sends as the user message.
	GeneratePrompt(q Question) string
}
