package model

import (
	"fmt"
	"strings"
)

type State string

const (
	StateOffline State = "OFFLINE"
	StateOnline  State = "ONLINE"
	StatePaused  State = "PAUSED"
)

func ParseState(s string) (State, error) {
	switch st := State(strings.ToUpper(strings.TrimSpace(s))); st {
	case StateOffline, StateOnline, StatePaused:
		return st, nil
	default:
		return "", fmt.Errorf("unknown state %q", s)
	}
}

// Admin API payloads.

type VerifyRequest struct {
	Token string  `json:"token" binding:"required"`
	IDs   []int64 `json:"ids"`
	All   bool    `json:"all"`
}

type VerifyResponse struct {
	Signed  []int64      `json:"signed"`
	Unknown []int64      `json:"unknown,omitempty"`
	Pending []SessionLog `json:"pending"`
	Token   string       `json:"token"`
}

type PendingResponse struct {
	Verifier string       `json:"verifier"`
	Target   string       `json:"target"`
	Pending  []SessionLog `json:"pending"`
	Token    string       `json:"token"`
}

type UserStatus struct {
	User       User    `json:"user"`
	State      State   `json:"state"`
	StartedAt  string  `json:"started_at,omitempty"`
	MonthHours float64 `json:"month_hours"`
	GoalHours  int     `json:"goal_hours"`
}

type ForceLogoutResponse struct {
	LoggedOut []string `json:"logged_out"`
}
