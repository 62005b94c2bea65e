package services

import (
	"context"
	"time"

	"github.com/yungbote/casedesk-backend/internal/domain/requirement"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

// RequirementStore is satisfied by aggregates.RequirementRepository.
type RequirementStore interface {
	Load(ctx context.Context, id string) (*requirement.Requirement, error)
	Save(ctx context.Context, r *requirement.Requirement) error
}

type RequirementService interface {
	CreateRequirement(ctx context.Context, in requirement.NewInput) (*requirement.Requirement, error)
	GetRequirement(ctx context.Context, id string) (*requirement.Requirement, error)
	UpdateStatus(ctx context.Context, id string, to requirement.Status) error
	ChangePriority(ctx context.Context, id string, to requirement.Priority) error
	UpdateContent(ctx context.Context, id, content string) error
	AddTag(ctx context.Context, id, tag string) error
	RemoveTag(ctx context.Context, id, tag string) error
	Annotate(ctx context.Context, id, key, value string) error
}

type requirementService struct {
	log  *logger.Logger
	reqs RequirementStore
	opts Options
}

func NewRequirementService(baseLog *logger.Logger, reqs RequirementStore, opts Options) RequirementService {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &requirementService{
		log:  baseLog.With("service", "RequirementService"),
		reqs: reqs,
		opts: opts.withDefaults(),
	}
}

// CreateRequirement saves a new requirement. RequirementCreated subscribers
// run before it returns; a handler failure is returned together with the
// committed requirement.
func (s *requirementService) CreateRequirement(ctx context.Context, in requirement.NewInput) (*requirement.Requirement, error) {
	r, err := requirement.New(in, s.opts.Now())
	if err != nil {
		return nil, err
	}
	if err := s.reqs.Save(ctx, r); err != nil {
		if IsDeliveryError(err) {
			return r, err
		}
		return nil, err
	}
	s.log.Info("Requirement created",
		"requirement_id", r.ID(),
		"customer_id", r.CustomerID(),
		"priority", r.Priority(),
		"source", r.Source(),
	)
	return r, nil
}

func (s *requirementService) GetRequirement(ctx context.Context, id string) (*requirement.Requirement, error) {
	return s.reqs.Load(ctx, id)
}

func (s *requirementService) UpdateStatus(ctx context.Context, id string, to requirement.Status) error {
	return s.mutate(ctx, id, func(r *requirement.Requirement, now time.Time) error {
		return r.UpdateStatus(to, now)
	})
}

func (s *requirementService) ChangePriority(ctx context.Context, id string, to requirement.Priority) error {
	return s.mutate(ctx, id, func(r *requirement.Requirement, now time.Time) error {
		return r.ChangePriority(to, now)
	})
}

func (s *requirementService) UpdateContent(ctx context.Context, id, content string) error {
	return s.mutate(ctx, id, func(r *requirement.Requirement, now time.Time) error {
		return r.UpdateContent(content, now)
	})
}

func (s *requirementService) AddTag(ctx context.Context, id, tag string) error {
	return s.mutate(ctx, id, func(r *requirement.Requirement, now time.Time) error {
		r.AddTag(tag, now)
		return nil
	})
}

func (s *requirementService) RemoveTag(ctx context.Context, id, tag string) error {
	return s.mutate(ctx, id, func(r *requirement.Requirement, now time.Time) error {
		r.RemoveTag(tag, now)
		return nil
	})
}

func (s *requirementService) Annotate(ctx context.Context, id, key, value string) error {
	return s.mutate(ctx, id, func(r *requirement.Requirement, now time.Time) error {
		r.Annotate(key, value, now)
		return nil
	})
}

func (s *requirementService) mutate(ctx context.Context, id string, fn func(r *requirement.Requirement, now time.Time) error) error {
	return RetryOnConflict(ctx, s.opts.Retry.Attempts, s.opts.Retry.Backoff, func(ctx context.Context) error {
		r, err := s.reqs.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(r, s.opts.Now()); err != nil {
			return err
		}
		return s.reqs.Save(ctx, r)
	})
}
