package relationship

import (
	"context"
	"log"
	"time"

	"taskpilot-backend/pkg/ai"
)

// Resolution is what the pipeline stores on each task.
type Resolution struct {
	AssignedByEmail string
	AssignedToEmail string
	TaskType        string // self|delegation|tracking|assigned
	UserRole        string // executor|delegator|observer
}

// Resolver asks the extractor who requested the work and who owns it,
// and never lets that question block or fail task creation.
type Resolver struct {
	extractor ai.ExtractorService
	timeout   time.Duration
}

func NewResolver(extractor ai.ExtractorService, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{extractor: extractor, timeout: timeout}
}

// Resolve returns the relationship for a message. Any provider failure
// degrades to the fail-safe default: sender assigned it, the inbox
// owner executes it.
func (r *Resolver) Resolve(ctx context.Context, req ai.ExtractionRequest) Resolution {
	fallback := Resolution{
		AssignedByEmail: req.Sender,
		AssignedToEmail: req.Recipient,
		TaskType:        ai.TaskTypeSelf,
		UserRole:        ai.RoleExecutor,
	}

	if r.extractor == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rel, err := r.extractor.ResolveRelationship(ctx, req)
	if err != nil {
		log.Printf("[Relationship] resolution failed, using default: %v", err)
		return fallback
	}

	res := Resolution{
		AssignedByEmail: rel.AssignedByEmail,
		AssignedToEmail: rel.AssignedToEmail,
		TaskType:        rel.TaskType,
		UserRole:        rel.UserRole,
	}
	if res.AssignedByEmail == "" {
		res.AssignedByEmail = req.Sender
	}
	if res.AssignedToEmail == "" {
		res.AssignedToEmail = req.Recipient
	}
	return res
}
