package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// GenAIConfig configures a GenAIClient. Project and Location select a Vertex
// AI backend; leaving Project empty selects the Gemini Developer API backend
// instead, authenticated via GEMINI_API_KEY.
type GenAIConfig struct {
	Project  string
	Location string
	Model    string
}

// GenAIConfigFromEnv builds a GenAIConfig from the environment, matching the
// variable names Google's own SDKs and CLIs use (GCP_PROJECT, GCP_LOCATION,
// GOOGLE_API_KEY-style tooling), not a cortex-prefixed one: these select a
// cloud backend, not an application setting.
func GenAIConfigFromEnv() GenAIConfig {
	return GenAIConfig{
		Project:  os.Getenv("GCP_PROJECT"),
		Location: getEnvOrDefault("GCP_LOCATION", "us-central1"),
		Model:    getEnvOrDefault("VERTEX_AI_MODEL", "gemini-2.0-flash"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GenAIClient implements Client against Google's Gemini models via
// google.golang.org/genai, backed by Vertex AI when Project is set and the
// Gemini Developer API otherwise.
type GenAIClient struct {
	model  string
	client *genai.Client
}

// NewGenAIClient dials the configured backend. ctx is used only for the
// client's own setup (e.g. credential discovery), not for later calls.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	clientCfg := &genai.ClientConfig{}
	if cfg.Project != "" {
		clientCfg.Project = cfg.Project
		clientCfg.Location = cfg.Location
		clientCfg.Backend = genai.BackendVertexAI
	} else {
		clientCfg.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	return &GenAIClient{model: cfg.Model, client: client}, nil
}

// Complete sends prompt as a single-turn chat and returns the first
// candidate's text, per SPEC_FULL.md §6's single-shot completion contract.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	chat, err := c.client.Chats.Create(ctx, c.model, nil, nil)
	if err != nil {
		return "", fmt.Errorf("llm: create chat: %w", err)
	}

	result, err := chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		return "", fmt.Errorf("llm: send message: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("llm: no response from model %s", c.model)
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}
