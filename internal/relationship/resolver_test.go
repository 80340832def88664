package relationship

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskpilot-backend/pkg/ai"
)

type stubExtractor struct {
	rel *ai.Relationship
	err error
}

func (s *stubExtractor) ExtractTasks(context.Context, ai.ExtractionRequest) ([]ai.TaskCandidate, error) {
	return nil, errors.New("not used")
}

func (s *stubExtractor) ResolveRelationship(context.Context, ai.ExtractionRequest) (*ai.Relationship, error) {
	return s.rel, s.err
}

func TestResolveUsesProviderAnswer(t *testing.T) {
	r := NewResolver(&stubExtractor{rel: &ai.Relationship{
		AssignedByEmail: "boss@acme.com",
		AssignedToEmail: "me@acme.com",
		TaskType:        ai.TaskTypeDelegation,
		UserRole:        ai.RoleDelegator,
	}}, time.Second)

	got := r.Resolve(context.Background(), ai.ExtractionRequest{Sender: "boss@acme.com", Recipient: "me@acme.com"})
	if got.TaskType != ai.TaskTypeDelegation || got.UserRole != ai.RoleDelegator {
		t.Errorf("provider answer not used: %+v", got)
	}
}

func TestResolveFailSafeOnError(t *testing.T) {
	r := NewResolver(&stubExtractor{err: errors.New("provider down")}, time.Second)

	got := r.Resolve(context.Background(), ai.ExtractionRequest{Sender: "boss@acme.com", Recipient: "me@acme.com"})
	if got.AssignedByEmail != "boss@acme.com" || got.AssignedToEmail != "me@acme.com" {
		t.Errorf("fail-safe parties wrong: %+v", got)
	}
	if got.TaskType != ai.TaskTypeSelf || got.UserRole != ai.RoleExecutor {
		t.Errorf("fail-safe defaults wrong: %+v", got)
	}
}

func TestResolveFillsMissingEmails(t *testing.T) {
	r := NewResolver(&stubExtractor{rel: &ai.Relationship{
		TaskType: ai.TaskTypeAssigned,
		UserRole: ai.RoleExecutor,
	}}, time.Second)

	got := r.Resolve(context.Background(), ai.ExtractionRequest{Sender: "a@x.com", Recipient: "b@x.com"})
	if got.AssignedByEmail != "a@x.com" || got.AssignedToEmail != "b@x.com" {
		t.Errorf("blank emails should fall back to message parties: %+v", got)
	}
}

func TestResolveNilExtractor(t *testing.T) {
	r := NewResolver(nil, 0)
	got := r.Resolve(context.Background(), ai.ExtractionRequest{Sender: "a@x.com", Recipient: "b@x.com"})
	if got.TaskType != ai.TaskTypeSelf {
		t.Errorf("nil extractor should return the default: %+v", got)
	}
}
