package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PreferenceDocument holds one user's preference map. Version increases by
// exactly one on every successful write; compare-and-set writes match on it.
type PreferenceDocument struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string            `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	Preferences datatypes.JSONMap `gorm:"column:preferences;type:jsonb" json:"preferences"`
	Version     int               `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}

func (PreferenceDocument) TableName() string {
	return "user_preference"
}

// VersionKey is the synthetic key that decorates preference reads with the
// stored document version.
const VersionKey = "_version"
