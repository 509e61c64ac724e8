package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/conn"
	"github.com/voyplan/memory-backend/internal/types"
)

type ConversationRepo interface {
	// Upsert writes the conversation keyed by session_id. created_at is set
	// only on insert; updated_at always moves forward.
	Upsert(ctx context.Context, doc *types.ConversationDocument) error
	GetBySessionID(ctx context.Context, sessionID string) (*types.ConversationDocument, error)
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]types.ConversationDocument, error)
	Count(ctx context.Context) (int64, error)
}

type conversationRepo struct {
	doc *conn.Doc
	log *logger.Logger
}

func NewConversationRepo(doc *conn.Doc, baseLog *logger.Logger) ConversationRepo {
	return &conversationRepo{
		doc: doc,
		log: baseLog.With("repo", "ConversationRepo"),
	}
}

var errDocUnavailable = errors.New("document store unavailable")

func (r *conversationRepo) Upsert(ctx context.Context, doc *types.ConversationDocument) error {
	db := r.doc.DB()
	if db == nil {
		return errDocUnavailable
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"user_id":    doc.UserID,
			"messages":   doc.Messages,
			"summary":    doc.Summary,
			"metadata":   doc.Metadata,
			"updated_at": now,
		}),
	}).Create(doc).Error
}

func (r *conversationRepo) GetBySessionID(ctx context.Context, sessionID string) (*types.ConversationDocument, error) {
	db := r.doc.DB()
	if db == nil {
		return nil, errDocUnavailable
	}
	var doc types.ConversationDocument
	err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *conversationRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]types.ConversationDocument, error) {
	db := r.doc.DB()
	if db == nil {
		return nil, errDocUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	var docs []types.ConversationDocument
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *conversationRepo) Count(ctx context.Context) (int64, error) {
	db := r.doc.DB()
	if db == nil {
		return 0, errDocUnavailable
	}
	var n int64
	if err := db.WithContext(ctx).Model(&types.ConversationDocument{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// IsDocUnavailable reports whether err marks a missing document store.
func IsDocUnavailable(err error) bool {
	return errors.Is(err, errDocUnavailable)
}
