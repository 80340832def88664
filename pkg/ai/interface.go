package ai

import (
	"context"
	"time"
)

// TaskCandidate is a structured, not-yet-persisted task proposal produced
// by extraction (or the deterministic fallback).
type TaskCandidate struct {
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Priority       string     `json:"priority"`                  // low|medium|high
	PriorityScore  int        `json:"priority_score"`            // 0..100
	DueDate        *time.Time `json:"due_date,omitempty"`
	EffortEstimate string     `json:"effort_estimate,omitempty"` // minutes|hours|days
	Tags           []string   `json:"tags,omitempty"`
}

// Relationship captures who asked for a task and who it is for, relative
// to the organization member owning the inbox.
type Relationship struct {
	AssignedByEmail string `json:"assigned_by_email"`
	AssignedToEmail string `json:"assigned_to_email"`
	TaskType        string `json:"task_type"` // self|delegation|tracking|assigned
	UserRole        string `json:"user_role"` // executor|delegator|observer
}

// ExtractionRequest carries everything a provider may use for a single
// extraction call.
type ExtractionRequest struct {
	Subject   string
	Body      string
	Sender    string
	Recipient string

	// ThreadContext holds titles of similar prior tasks for the same
	// organization, retrieved from the context index.
	ThreadContext []string

	// PrioritySignal is a short hint derived from sender history
	// ("frequent sender, fast responder"), free-form.
	PrioritySignal string
}

// ExtractorService is the interface for AI task extraction and
// relationship resolution. Implement this interface to add new providers.
type ExtractorService interface {
	// ExtractTasks turns a message into one or more task candidates.
	ExtractTasks(ctx context.Context, req ExtractionRequest) ([]TaskCandidate, error)

	// ResolveRelationship runs the narrower relationship contract.
	ResolveRelationship(ctx context.Context, req ExtractionRequest) (*Relationship, error)
}

// Wire-level enum values shared by providers and the heuristic extractor.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"

	TaskTypeSelf       = "self"
	TaskTypeDelegation = "delegation"
	TaskTypeTracking   = "tracking"
	TaskTypeAssigned   = "assigned"

	RoleExecutor  = "executor"
	RoleDelegator = "delegator"
	RoleObserver  = "observer"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
