// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// Session event types.
const (
	EventUserRegistered      = "user.registered"
	EventLogin               = "session.login"
	EventLoginDeniedInactive = "session.login_denied_inactive"
	EventRefreshed           = "session.refreshed"
	EventReplayDetected      = "session.replay_detected"
	EventLogout              = "session.logout"
	EventUserDeactivated     = "user.deactivated"
	EventUserReactivated     = "user.reactivated"
)

// SessionEvent is published whenever a session changes state.  It carries
// ids only, never token material, so downstream audit and alerting can
// consume it without handling secrets.
type SessionEvent struct {
	Type       string    `json:"type"`
	UserID     uint64    `json:"user_id"`
	FamilyID   string    `json:"family_id,omitempty"`
	Revoked    int64     `json:"revoked,omitempty"`
	IP         string    `json:"ip,omitempty"`
	ActorID    uint64    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
