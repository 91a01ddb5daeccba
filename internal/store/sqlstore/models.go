package sqlstore

import (
	"time"

	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// Build is the persisted state of one deployment attempt
type Build struct {
	ID            string `gorm:"primaryKey"`
	ApplicationID string `gorm:"index"`
	Status        string `gorm:"index"`
	Commit        string `gorm:"column:commit_sha"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (b *Build) record() deployment.BuildRecord {
	return deployment.BuildRecord{
		ID:            b.ID,
		ApplicationID: b.ApplicationID,
		Status:        deployment.BuildStatus(b.Status),
		Commit:        b.Commit,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

// Application holds the fingerprint of the last successful production deployment
type Application struct {
	ID         string `gorm:"primaryKey"`
	ConfigHash string
	UpdatedAt  time.Time
}

// BuildLog is one line of a build's log
type BuildLog struct {
	ID            uint   `gorm:"primaryKey"`
	BuildID       string `gorm:"index"`
	ApplicationID string
	Line          string
	Time          time.Time
}
