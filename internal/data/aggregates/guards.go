package aggregates

import (
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
)

// CASGuard provides optimistic concurrency helpers for aggregate writes.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx == nil && g.db == nil {
		return nil, ValidationError("missing db transaction context")
	}
	return dbc.DB(g.db), nil
}

// CurrentVersion reads the persisted version of a row. ok is false when the
// row does not exist.
func (g CASGuard) CurrentVersion(dbc dbctx.Context, table, id string) (version int, ok bool, err error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return 0, false, err
	}
	table = strings.TrimSpace(table)
	if table == "" || id == "" {
		return 0, false, ValidationError("table and id are required for CurrentVersion")
	}
	var versions []int
	if err := db.Table(table).Where("id = ?", id).Limit(1).Pluck("version", &versions).Error; err != nil {
		return 0, false, err
	}
	if len(versions) == 0 {
		return 0, false, nil
	}
	return versions[0], true, nil
}

// UpdateByVersion writes every column of model only when id+version match.
// It implements compare-and-set semantics for optimistic locking.
func (g CASGuard) UpdateByVersion(dbc dbctx.Context, model any, id string, expectedVersion int) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	if model == nil || id == "" {
		return false, ValidationError("model and id are required for UpdateByVersion")
	}
	if expectedVersion < 1 {
		return false, ValidationError("expectedVersion must be >= 1")
	}
	res := db.Model(model).
		Where("id = ? AND version = ?", id, expectedVersion).
		Select("*").
		Updates(model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}
