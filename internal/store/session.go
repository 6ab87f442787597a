package store

import (
	"context"
	"time"

	"epoch/internal/model"

	"gorm.io/gorm"
)

func (s *Store) Session(ctx context.Context, userID string) (*model.UserSession, error) {
	var us model.UserSession
	err := s.do(ctx, "get session", func(tx *gorm.DB) error {
		return tx.Where("user_id = ?", userID).First(&us).Error
	})
	if err != nil {
		return nil, err
	}
	return &us, nil
}

func (s *Store) Sessions(ctx context.Context) ([]model.UserSession, error) {
	var out []model.UserSession
	err := s.do(ctx, "list sessions", func(tx *gorm.DB) error {
		return tx.Order("user_id").Find(&out).Error
	})
	return out, err
}

func (s *Store) State(ctx context.Context, userID string) (model.State, error) {
	us, err := s.Session(ctx, userID)
	if err != nil {
		return "", err
	}
	return us.State, nil
}

func (s *Store) SetState(ctx context.Context, userID string, st model.State) error {
	return s.do(ctx, "set state", func(tx *gorm.DB) error {
		return tx.Model(&model.UserSession{}).Where("user_id = ?", userID).Update("state", st).Error
	})
}

// CompareAndSetState moves userID from one state to another only if the
// stored state still equals from. It reports whether the row changed.
func (s *Store) CompareAndSetState(ctx context.Context, userID string, from, to model.State) (bool, error) {
	var n int64
	err := s.do(ctx, "compare and set state", func(tx *gorm.DB) error {
		res := tx.Model(&model.UserSession{}).
			Where("user_id = ? AND state = ?", userID, from).
			Update("state", to)
		n = res.RowsAffected
		return res.Error
	})
	return n == 1, err
}

// StartSession is the OFFLINE to ONLINE compare-and-set, also zeroing the
// work counter and stamping the session start.
func (s *Store) StartSession(ctx context.Context, userID string, at time.Time) (bool, error) {
	var n int64
	err := s.do(ctx, "start session", func(tx *gorm.DB) error {
		res := tx.Model(&model.UserSession{}).
			Where("user_id = ? AND state = ?", userID, model.StateOffline).
			Updates(map[string]any{
				"state":      model.StateOnline,
				"work_time":  0,
				"started_at": ts(at),
			})
		n = res.RowsAffected
		return res.Error
	})
	return n == 1, err
}

func (s *Store) WorkTime(ctx context.Context, userID string) (int64, error) {
	us, err := s.Session(ctx, userID)
	if err != nil {
		return 0, err
	}
	return us.WorkTime, nil
}

func (s *Store) SetWorkTime(ctx context.Context, userID string, ms int64) error {
	return s.do(ctx, "set work time", func(tx *gorm.DB) error {
		return tx.Model(&model.UserSession{}).Where("user_id = ?", userID).Update("work_time", ms).Error
	})
}

// IncrementWorkTime adds ms to the counter in one statement, only while the
// user is ONLINE. It returns the stored value after the increment and
// whether the increment applied.
func (s *Store) IncrementWorkTime(ctx context.Context, userID string, ms int64) (int64, bool, error) {
	var (
		n     int64
		total int64
	)
	err := s.atomic(ctx, "increment work time", func(tx *gorm.DB) error {
		res := tx.Model(&model.UserSession{}).
			Where("user_id = ? AND state = ?", userID, model.StateOnline).
			Update("work_time", gorm.Expr("work_time + ?", ms))
		if res.Error != nil {
			return res.Error
		}
		n = res.RowsAffected
		if n == 0 {
			return nil
		}
		return tx.Model(&model.UserSession{}).Where("user_id = ?", userID).
			Select("work_time").Scan(&total).Error
	})
	if err != nil || n == 0 {
		return 0, false, err
	}
	return total, true, nil
}

func (s *Store) SessionStart(ctx context.Context, userID string) (time.Time, error) {
	us, err := s.Session(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	return us.StartedAt, nil
}

// ResetSession zeroes the work counter. Called after the session log has
// been written.
func (s *Store) ResetSession(ctx context.Context, userID string) error {
	return s.SetWorkTime(ctx, userID, 0)
}

// ActiveUserIDs lists users whose state is not OFFLINE.
func (s *Store) ActiveUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.do(ctx, "list active users", func(tx *gorm.DB) error {
		return tx.Model(&model.UserSession{}).
			Where("state <> ?", model.StateOffline).
			Order("user_id").Pluck("user_id", &ids).Error
	})
	return ids, err
}

func (s *Store) AppendStateChange(ctx context.Context, userID string, st, prev model.State, at time.Time) error {
	return s.atomic(ctx, "append state change", func(tx *gorm.DB) error {
		return tx.Create(&model.StateChange{UserID: userID, State: st, PrevState: prev, CreatedAt: ts(at)}).Error
	})
}

func (s *Store) StateChanges(ctx context.Context, userID string) ([]model.StateChange, error) {
	var out []model.StateChange
	err := s.do(ctx, "list state changes", func(tx *gorm.DB) error {
		return tx.Where("user_id = ?", userID).Order("id").Find(&out).Error
	})
	return out, err
}
