package model

import "time"

type Team struct {
	ID   int    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name string `gorm:"size:64" json:"name"`
}

// User is keyed by the chat platform's user id.
type User struct {
	ID             string `gorm:"primaryKey;size:32" json:"id"`
	Username       string `gorm:"uniqueIndex;size:64" json:"username"`
	Title          string `gorm:"size:64" json:"title"`
	TeamID         int    `json:"team_id"`
	GitID          string `gorm:"size:64;index" json:"git_id"`
	BitbucketEmail string `gorm:"size:128;index" json:"bitbucket_email"`
	MonthlyHours   int    `gorm:"default:160" json:"monthly_hours"`
}

// UserSession holds the live state of a user. WorkTime is in milliseconds.
type UserSession struct {
	UserID    string    `gorm:"primaryKey;size:32" json:"user_id"`
	State     State     `gorm:"size:8;not null" json:"state"`
	WorkTime  int64     `gorm:"not null;default:0" json:"work_time"`
	StartedAt time.Time `json:"started_at"`
}

type SessionLog struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"size:32;index" json:"user_id"`
	WorkTime   int64     `json:"work_time"`
	Start      time.Time `gorm:"column:started_at;index" json:"start"`
	End        time.Time `gorm:"column:ended_at" json:"end"`
	ApprovedBy *string   `gorm:"size:32" json:"approved_by,omitempty"`
}

func (l SessionLog) Hours() float64 { return float64(l.WorkTime) / float64(time.Hour/time.Millisecond) }
func (l SessionLog) Verified() bool { return l.ApprovedBy != nil }

type StateChange struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:32;index" json:"user_id"`
	State     State     `gorm:"size:8" json:"state"`
	PrevState State     `gorm:"size:8" json:"prev_state"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository struct {
	ID         int64  `gorm:"primaryKey" json:"id"`
	Provider   string `gorm:"size:16;uniqueIndex:uk_repo_provider" json:"provider"`
	ExternalID string `gorm:"size:64;uniqueIndex:uk_repo_provider" json:"external_id"`
	Name       string `gorm:"size:128" json:"name"`
}

// GitIdentity is a source-control account seen on a push.
type GitIdentity struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Provider   string    `gorm:"size:16;uniqueIndex:uk_git_provider" json:"provider"`
	ExternalID string    `gorm:"size:128;uniqueIndex:uk_git_provider" json:"external_id"`
	Login      string    `gorm:"size:64" json:"login"`
	Email      string    `gorm:"size:128" json:"email"`
	SeenAt     time.Time `json:"seen_at"`
}

type CommitLog struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	RepoID     int64      `gorm:"index" json:"repo_id"`
	Repository Repository `gorm:"foreignKey:RepoID" json:"repository"`
	UserID     *string    `gorm:"size:32;index" json:"user_id,omitempty"`
	Message    string     `gorm:"type:text" json:"message"`
	URL        string     `gorm:"size:512" json:"url"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (Team) TableName() string        { return "teams" }
func (User) TableName() string        { return "users" }
func (UserSession) TableName() string { return "user_sessions" }
func (SessionLog) TableName() string  { return "log_user_sessions" }
func (StateChange) TableName() string { return "log_user_states" }
func (Repository) TableName() string  { return "dev_repos" }
func (GitIdentity) TableName() string { return "git_users" }
func (CommitLog) TableName() string   { return "log_dev_commits" }

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&Team{}, &User{}, &UserSession{}, &SessionLog{},
		&StateChange{}, &Repository{}, &GitIdentity{}, &CommitLog{},
	}
}
