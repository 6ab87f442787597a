package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"epoch/internal/model"

	"gorm.io/gorm"
)

const DefaultMonthlyHours = 160

func (s *Store) CreateTeam(ctx context.Context, t *model.Team) error {
	return s.do(ctx, "create team", func(tx *gorm.DB) error {
		return tx.Create(t).Error
	})
}

func (s *Store) Teams(ctx context.Context) ([]model.Team, error) {
	var out []model.Team
	err := s.do(ctx, "list teams", func(tx *gorm.DB) error {
		return tx.Order("id").Find(&out).Error
	})
	return out, err
}

// CreateUser registers u together with its OFFLINE session row.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" || u.Username == "" {
		return errors.New("create user: id and username are required")
	}
	if u.MonthlyHours <= 0 {
		u.MonthlyHours = DefaultMonthlyHours
	}
	return s.do(ctx, "create user", func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			if u.TeamID != 0 {
				var t model.Team
				if err := tx.First(&t, u.TeamID).Error; err != nil {
					return fmt.Errorf("team %d: %w", u.TeamID, err)
				}
			}
			if err := tx.Create(u).Error; err != nil {
				return err
			}
			return tx.Create(&model.UserSession{
				UserID:    u.ID,
				State:     model.StateOffline,
				StartedAt: ts(time.Now()),
			}).Error
		})
	})
}

func (s *Store) SetUserTeam(ctx context.Context, userID string, teamID int) error {
	return s.do(ctx, "set user team", func(tx *gorm.DB) error {
		var t model.Team
		if err := tx.First(&t, teamID).Error; err != nil {
			return err
		}
		res := tx.Model(&model.User{}).Where("id = ?", userID).Update("team_id", teamID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var u model.User
			return tx.Select("id").Where("id = ?", userID).First(&u).Error
		}
		return nil
	})
}

func (s *Store) AllUsers(ctx context.Context) ([]model.User, error) {
	var out []model.User
	err := s.do(ctx, "list users", func(tx *gorm.DB) error {
		return tx.Order("username").Find(&out).Error
	})
	return out, err
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	return s.userWhere(ctx, "id = ?", id)
}

func (s *Store) UserByName(ctx context.Context, name string) (*model.User, error) {
	return s.userWhere(ctx, "username = ?", name)
}

// UserByGitID resolves a GitHub or GitLab login.
func (s *Store) UserByGitID(ctx context.Context, login string) (*model.User, error) {
	return s.userWhere(ctx, "git_id = ?", login)
}

func (s *Store) UserByBitbucketEmail(ctx context.Context, email string) (*model.User, error) {
	return s.userWhere(ctx, "bitbucket_email = ?", email)
}

func (s *Store) userWhere(ctx context.Context, query string, arg string) (*model.User, error) {
	if arg == "" {
		return nil, fmt.Errorf("get user: %w", ErrNotFound)
	}
	var u model.User
	err := s.do(ctx, "get user", func(tx *gorm.DB) error {
		return tx.Where(query, arg).First(&u).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) MonthlyGoal(ctx context.Context, userID string) (int, error) {
	u, err := s.UserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.MonthlyHours, nil
}

// HoursWorkedThisMonth sums the session logs of userID started in the
// calendar month containing now.
func (s *Store) HoursWorkedThisMonth(ctx context.Context, userID string, now time.Time) (float64, error) {
	from, to := MonthRange(now)
	var total int64
	err := s.do(ctx, "hours worked this month", func(tx *gorm.DB) error {
		return tx.Model(&model.SessionLog{}).
			Where("user_id = ? AND started_at >= ? AND started_at < ?", userID, from, to).
			Select("COALESCE(SUM(work_time), 0)").Scan(&total).Error
	})
	if err != nil {
		return 0, err
	}
	return float64(total) / float64(time.Hour/time.Millisecond), nil
}
