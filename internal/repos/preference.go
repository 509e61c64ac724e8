package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/conn"
	"github.com/voyplan/memory-backend/internal/types"
)

type PreferenceRepo interface {
	Get(ctx context.Context, userID string) (*types.PreferenceDocument, error)
	// UpsertBlind writes preferences without a version check. Insert starts
	// at version 1; an existing row has its version bumped by one.
	UpsertBlind(ctx context.Context, userID string, prefs map[string]any) error
	// UpdateWithVersion is the compare-and-set path: the write lands only if
	// the stored version still equals expectedVersion. Returns false on a
	// version conflict, with no side effects.
	UpdateWithVersion(ctx context.Context, userID string, prefs map[string]any, expectedVersion int) (bool, error)
	Count(ctx context.Context) (int64, error)
}

type preferenceRepo struct {
	doc *conn.Doc
	log *logger.Logger
}

func NewPreferenceRepo(doc *conn.Doc, baseLog *logger.Logger) PreferenceRepo {
	return &preferenceRepo{
		doc: doc,
		log: baseLog.With("repo", "PreferenceRepo"),
	}
}

func (r *preferenceRepo) Get(ctx context.Context, userID string) (*types.PreferenceDocument, error) {
	db := r.doc.DB()
	if db == nil {
		return nil, errDocUnavailable
	}
	var doc types.PreferenceDocument
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *preferenceRepo) UpsertBlind(ctx context.Context, userID string, prefs map[string]any) error {
	db := r.doc.DB()
	if db == nil {
		return errDocUnavailable
	}
	now := time.Now()
	doc := types.PreferenceDocument{
		ID:          uuid.New(),
		UserID:      userID,
		Preferences: datatypes.JSONMap(prefs),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"preferences": datatypes.JSONMap(prefs),
			"version":     gorm.Expr("user_preference.version + 1"),
			"updated_at":  now,
		}),
	}).Create(&doc).Error
}

func (r *preferenceRepo) UpdateWithVersion(ctx context.Context, userID string, prefs map[string]any, expectedVersion int) (bool, error) {
	db := r.doc.DB()
	if db == nil {
		return false, errDocUnavailable
	}
	res := db.WithContext(ctx).
		Model(&types.PreferenceDocument{}).
		Where("user_id = ? AND version = ?", userID, expectedVersion).
		Updates(map[string]interface{}{
			"preferences": datatypes.JSONMap(prefs),
			"version":     gorm.Expr("version + 1"),
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *preferenceRepo) Count(ctx context.Context) (int64, error) {
	db := r.doc.DB()
	if db == nil {
		return 0, errDocUnavailable
	}
	var n int64
	if err := db.WithContext(ctx).Model(&types.PreferenceDocument{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
