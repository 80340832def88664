package ai

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
)

// FallbackService routes between providers
// - Gemini first (better extraction quality), Ollama on quota or connection errors
// - If the fallback provider dies too, callers fall through to the heuristic extractor
type FallbackService struct {
	primary   ExtractorService
	secondary ExtractorService
}

// NewFallbackService creates a fallback service with both providers
func NewFallbackService(primary, secondary ExtractorService) *FallbackService {
	return &FallbackService{primary: primary, secondary: secondary}
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}

	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
	}

	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// ExtractTasks tries the primary provider first, falls back on quota/connection errors
func (f *FallbackService) ExtractTasks(ctx context.Context, req ExtractionRequest) ([]TaskCandidate, error) {
	if f.primary != nil {
		result, err := f.primary.ExtractTasks(ctx, req)
		if err == nil {
			return result, nil
		}

		if isQuotaError(err) {
			log.Printf("[AI] primary quota exhausted: %v, falling back", err)
		} else {
			log.Printf("[AI] primary extraction error: %v, falling back", err)
		}
	}

	if f.secondary != nil {
		result, err := f.secondary.ExtractTasks(ctx, req)
		if err == nil {
			return result, nil
		}

		if isConnectionError(err) && f.primary != nil {
			log.Printf("[AI] fallback connection failed: %v, retrying primary", err)
			return f.primary.ExtractTasks(ctx, req)
		}

		return nil, fmt.Errorf("fallback extraction failed: %w", err)
	}

	return nil, fmt.Errorf("no AI provider available for task extraction")
}

// ResolveRelationship uses the same routing as ExtractTasks
func (f *FallbackService) ResolveRelationship(ctx context.Context, req ExtractionRequest) (*Relationship, error) {
	if f.primary != nil {
		result, err := f.primary.ResolveRelationship(ctx, req)
		if err == nil {
			return result, nil
		}
		log.Printf("[AI] primary relationship error: %v, falling back", err)
	}

	if f.secondary != nil {
		result, err := f.secondary.ResolveRelationship(ctx, req)
		if err == nil {
			return result, nil
		}
		return nil, fmt.Errorf("fallback relationship resolution failed: %w", err)
	}

	return nil, fmt.Errorf("no AI provider available for relationship resolution")
}
