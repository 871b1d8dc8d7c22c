package llm

import "time"

// NewLocalAdapter creates an adapter for an OpenAI-compatible local endpoint
// (Ollama, vLLM, llama.cpp server). The API key is optional; most local
// servers ignore it.
func NewLocalAdapter(name, model, endpoint, apiKey string, timeout time.Duration) *OpenAIAdapter {
	if apiKey == "" {
		apiKey = "local"
	}
	return &OpenAIAdapter{
		name:     name,
		typ:      "local",
		model:    model,
		apiKey:   apiKey,
		endpoint: endpoint,
		timeout:  timeout,
	}
}
