package aggregates

import (
	"context"

	"github.com/yungbote/casedesk-backend/internal/data/repos"
	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/requirement"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
)

type RequirementRepository struct {
	store *EventStore
	rows  repos.RequirementRepo
}

func NewRequirementRepository(store *EventStore, rows repos.RequirementRepo) *RequirementRepository {
	return &RequirementRepository{store: store, rows: rows}
}

func (r *RequirementRepository) Load(ctx context.Context, id string) (*requirement.Requirement, error) {
	const op = "requirement.load"
	rec, err := r.rows.GetByID(dbctx.Background(ctx), id)
	if err != nil {
		return nil, MapError(op, err)
	}
	if rec == nil {
		return nil, domainagg.NotFound(op, "requirement", id)
	}
	req, err := requirement.FromRecord(rec)
	if err != nil {
		return nil, MapError(op, err)
	}
	return req, nil
}

func (r *RequirementRepository) Save(ctx context.Context, req *requirement.Requirement) error {
	return r.store.Save(ctx, req, requirement.Record{}.TableName(), func(version int) (any, error) {
		return requirement.ToRecord(req, version)
	})
}
