package store

import (
	"context"
	"time"

	"epoch/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) UpsertRepository(ctx context.Context, provider, externalID, name string) (*model.Repository, error) {
	repo := model.Repository{Provider: provider, ExternalID: externalID, Name: name}
	err := s.do(ctx, "upsert repository", func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).Create(&model.Repository{Provider: provider, ExternalID: externalID, Name: name}).Error
		if err != nil {
			return err
		}
		return tx.Where("provider = ? AND external_id = ?", provider, externalID).First(&repo).Error
	})
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *Store) UpsertGitIdentity(ctx context.Context, id *model.GitIdentity) error {
	id.SeenAt = ts(id.SeenAt)
	return s.do(ctx, "upsert git identity", func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"login", "email", "seen_at"}),
		}).Create(id).Error
	})
}

func (s *Store) AppendCommitLogs(ctx context.Context, logs []model.CommitLog) error {
	if len(logs) == 0 {
		return nil
	}
	for i := range logs {
		logs[i].CreatedAt = ts(logs[i].CreatedAt)
	}
	return s.atomic(ctx, "append commit logs", func(tx *gorm.DB) error {
		return tx.Omit("Repository").Create(&logs).Error
	})
}

// CommitLogs lists commits attributed to userID in [from, to], oldest first,
// with their repository loaded.
func (s *Store) CommitLogs(ctx context.Context, userID string, from, to time.Time) ([]model.CommitLog, error) {
	var out []model.CommitLog
	err := s.do(ctx, "list commit logs", func(tx *gorm.DB) error {
		return tx.Preload("Repository").
			Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, ts(from), ts(to)).
			Order("created_at, id").Find(&out).Error
	})
	return out, err
}
