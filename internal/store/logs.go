package store

import (
	"context"
	"time"

	"epoch/internal/model"

	"gorm.io/gorm"
)

func (s *Store) AppendSessionLog(ctx context.Context, l *model.SessionLog) error {
	l.Start, l.End = ts(l.Start), ts(l.End)
	return s.atomic(ctx, "append session log", func(tx *gorm.DB) error {
		return tx.Create(l).Error
	})
}

func (s *Store) SessionLog(ctx context.Context, id int64) (*model.SessionLog, error) {
	var l model.SessionLog
	err := s.do(ctx, "get session log", func(tx *gorm.DB) error {
		return tx.First(&l, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListSessionLogs returns logs of userID that started in [from, to), newest
// first.
func (s *Store) ListSessionLogs(ctx context.Context, userID string, from, to time.Time) ([]model.SessionLog, error) {
	var out []model.SessionLog
	err := s.do(ctx, "list session logs", func(tx *gorm.DB) error {
		return tx.Where("user_id = ? AND started_at >= ? AND started_at < ?", userID, ts(from), ts(to)).
			Order("started_at DESC, id DESC").Find(&out).Error
	})
	return out, err
}

func (s *Store) ListUnverifiedLogs(ctx context.Context, userID string, from, to time.Time) ([]model.SessionLog, error) {
	var out []model.SessionLog
	err := s.do(ctx, "list unverified logs", func(tx *gorm.DB) error {
		return tx.Where("user_id = ? AND started_at >= ? AND started_at < ? AND approved_by IS NULL", userID, ts(from), ts(to)).
			Order("started_at DESC, id DESC").Find(&out).Error
	})
	return out, err
}

// UpdateSessionLog corrects the worked time of one log and records who
// approved the correction.
func (s *Store) UpdateSessionLog(ctx context.Context, id, workMs int64, approvedBy string) error {
	return s.do(ctx, "update session log", func(tx *gorm.DB) error {
		var l model.SessionLog
		if err := tx.Select("id").First(&l, id).Error; err != nil {
			return err
		}
		return tx.Model(&model.SessionLog{}).Where("id = ?", id).
			Updates(map[string]any{"work_time": workMs, "approved_by": approvedBy}).Error
	})
}

func (s *Store) DeleteSessionLog(ctx context.Context, id int64) error {
	return s.do(ctx, "delete session log", func(tx *gorm.DB) error {
		res := tx.Delete(&model.SessionLog{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// UpdateSessionLogByDay corrects the single log of userID started on day.
// It fails with ErrNotFound or an *AmbiguousError rather than touching more
// than one row.
func (s *Store) UpdateSessionLogByDay(ctx context.Context, userID string, day time.Time, workMs int64, approvedBy string) (int64, error) {
	id, err := s.logOnDay(ctx, userID, day)
	if err != nil {
		return 0, err
	}
	return id, s.UpdateSessionLog(ctx, id, workMs, approvedBy)
}

func (s *Store) DeleteSessionLogByDay(ctx context.Context, userID string, day time.Time) (int64, error) {
	id, err := s.logOnDay(ctx, userID, day)
	if err != nil {
		return 0, err
	}
	return id, s.DeleteSessionLog(ctx, id)
}

func (s *Store) logOnDay(ctx context.Context, userID string, day time.Time) (int64, error) {
	from, to := dayRange(day)
	var ids []int64
	err := s.do(ctx, "find session log by day", func(tx *gorm.DB) error {
		return tx.Model(&model.SessionLog{}).
			Where("user_id = ? AND started_at >= ? AND started_at < ?", userID, from, to).
			Order("id").Pluck("id", &ids).Error
	})
	switch {
	case err != nil:
		return 0, err
	case len(ids) == 0:
		return 0, ErrNotFound
	case len(ids) > 1:
		return 0, &AmbiguousError{IDs: ids}
	}
	return ids[0], nil
}

// ApproveSessionLogs sets approved_by on every listed log. Re-approving is a
// no-op rewrite of the same verifier.
func (s *Store) ApproveSessionLogs(ctx context.Context, ids []int64, verifier string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := s.do(ctx, "approve session logs", func(tx *gorm.DB) error {
		res := tx.Model(&model.SessionLog{}).Where("id IN ?", ids).Update("approved_by", verifier)
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}
