// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stationwise/stationwise/services/gateway/observability"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIChat streams completions from an OpenAI-compatible endpoint. The
// backend keeps no server-side thread, so conversation ids are never
// reported and each turn stands alone.
type OpenAIChat struct {
	client *openai.Client
	model  string
	retry  Policy
}

// NewOpenAIChat builds the adapter. baseURL may be empty for the public
// API; model falls back to a small default when unset.
func NewOpenAIChat(apiKey, baseURL, model string) *OpenAIChat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	o := &OpenAIChat{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		retry:  DefaultPolicy(),
	}
	o.retry.OnRetry = func() {
		observability.DefaultMetrics.RecordProviderRetry(o.Name())
	}
	return o
}

// Name implements Provider.
func (o *OpenAIChat) Name() string { return "openai" }

// Open implements Provider.
func (o *OpenAIChat) Open(ctx context.Context, req ChatRequest) (Stream, error) {
	var messages []openai.ChatCompletionMessage
	if req.Context != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Context,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Query,
	})

	var stream *openai.ChatCompletionStream
	err := WithRetry(ctx, o.retry, func() error {
		s, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    o.model,
			Messages: messages,
			Stream:   true,
			User:     req.User,
		})
		if err != nil {
			return fmt.Errorf("open completion stream: %w", err)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	return &openaiStream{ctx: ctx, upstream: stream}, nil
}

// openaiStream is one open completion stream.
type openaiStream struct {
	ctx      context.Context
	upstream *openai.ChatCompletionStream
}

// Relay implements Stream.
func (s *openaiStream) Relay(h StreamHandler) error {
	for {
		resp, err := s.upstream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return s.ctx.Err()
			}
			return fmt.Errorf("read completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := h(Event{Content: delta}); err != nil {
			return err
		}
	}
}

// Close implements Stream.
func (s *openaiStream) Close() error {
	s.upstream.Close()
	return nil
}
