package ai

import "log"

// NewExtractorService builds the extractor stack from configuration.
// With both providers configured it returns the fallback router; with
// one it returns that provider directly; with none the heuristic
// extractor keeps the pipeline alive.
func NewExtractorService(provider ProviderType, geminiAPIKey, ollamaBaseURL, ollamaModel string) ExtractorService {
	var gemini, ollama ExtractorService
	if geminiAPIKey != "" {
		gemini = NewGeminiService(geminiAPIKey)
	}
	if ollamaBaseURL != "" || ollamaModel != "" {
		ollama = NewOllamaService(ollamaBaseURL, ollamaModel)
	}

	switch provider {
	case ProviderGemini:
		if gemini != nil {
			log.Println("[AI] Using Gemini provider")
			return gemini
		}
	case ProviderOllama:
		if ollama != nil {
			log.Println("[AI] Using Ollama provider")
			return ollama
		}
	}

	if gemini != nil && ollama != nil {
		log.Println("[AI] Using Gemini with Ollama fallback")
		return NewFallbackService(gemini, ollama)
	}
	if gemini != nil {
		log.Println("[AI] Using Gemini provider")
		return gemini
	}
	if ollama != nil {
		log.Println("[AI] Using Ollama provider")
		return ollama
	}

	log.Println("[AI] No LLM provider configured, using heuristic extraction only")
	return NewHeuristicExtractor()
}
