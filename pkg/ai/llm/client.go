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
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/argoplatform/argonaut/internal/config"
)

// Question is everything generatePrompt needs to render a single
// NL-to-SQL prompt: the user's text plus the schema/region/history
// context the nlpipeline has already assembled.
type Question struct {
	Text                string
	SchemaContext       string
	TableWhitelist      string
	ConversationContext string
	RowCap              int
	Dialect             string
}

// backend is the thin per-provider seam: everything above it (prompt
// assembly, circuit breaking, logging) is shared.
type backend interface {
	complete(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// client implements Client by delegating to a provider-specific
// backend through a circuit breaker, so a misbehaving provider trips
// open instead of stacking up blocked nlpipeline attempts.
type client struct {
	cfg     config.LLMConfig
	backend backend
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

// NewClient builds a Client for cfg.Provider. Supported providers are
// anthropic, bedrock, gemini, mistral and generic (any OpenAI-compatible
// self-hosted endpoint via langchaingo).
func NewClient(cfg config.LLMConfig, logger *logrus.Logger) (Client, error) {
	if logger == nil {
		logger = logrus.New()
	}

	var b backend
	var err error
	switch cfg.Provider {
	case "anthropic":
		b, err = newAnthropicBackend(cfg)
	case "bedrock":
		b, err = newBedrockBackend(cfg)
	case "gemini":
		b, err = newGeminiBackend(cfg)
	case "mistral":
		b, err = newMistralBackend(cfg)
	case "generic":
		b, err = newGenericBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", cfg.Provider, err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + cfg.Provider,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &client{cfg: cfg, backend: b, breaker: breaker, log: logger}, nil
}

// Chat sends messages through the circuit breaker to the configured
// provider backend.
func (c *client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = c.cfg.MaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = c.cfg.Temperature
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.backend.complete(ctx, messages, opts)
	})
	if err != nil {
		c.log.WithError(err).WithField("provider", c.cfg.Provider).Error("llm chat call failed")
		return "", fmt.Errorf("llm chat (%s): %w", c.cfg.Provider, err)
	}
	return result.(string), nil
}

// promptTemplate assembles a single NL question plus its schema
// context into the chat-style prompt every provider backend receives
// as the user message. Keep the <|system|>/<|user|>/<|assistant|>
// section markers even for providers whose SDK uses structured roles
// instead of markers — the generic backend needs them verbatim, and
// the others simply ignore them.
const promptTemplate = `<|system|>
You are a read-only PostgreSQL/PostGIS query assistant for an
oceanographic float archive. Generate exactly one SELECT statement
that answers the question using only the tables listed below.

SQL GENERATION RULES:
- Only SELECT statements against whitelisted tables are permitted.
- Never write, update, delete or touch DDL of any kind.
- Always include a LIMIT no greater than the configured row cap.
- Prefer the denormalized float_positions table for map-style queries.
- Cast geometry columns with ST_AsText/ST_AsGeoJSON, never return raw geometry.

AVAILABLE TABLES
%s

TABLE WHITELIST: %s

DIALECT: %s

<|user|>
CONVERSATION SO FAR:
%s

QUESTION: %s

ROW CAP: %v

<|assistant|>
Respond with the SQL statement followed by a one-line confidence
explanation. State your confidence as a number between 0 and 1.
`

// GeneratePrompt renders promptTemplate for q, the single user message
// the nlpipeline sends alongside its precomputed schema system prompt.
func (c *client) GeneratePrompt(q Question) string {
	return c.generatePrompt(q)
}

// generatePrompt renders promptTemplate for q.
func (c *client) generatePrompt(q Question) string {
	dialect := q.Dialect
	if dialect == "" {
		dialect = "PostgreSQL 15 with PostGIS 3.4"
	}
	return fmt.Sprintf(promptTemplate,
		q.SchemaContext,
		q.TableWhitelist,
		dialect,
		q.ConversationContext,
		q.Text,
		q.RowCap,
	)
}
