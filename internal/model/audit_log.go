package model

import "time"

type AuditLog struct {
	ID           int64                  `db:"id" json:"id"`
	ActorID      *string                `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole    *string                `db:"actor_role" json:"actor_role,omitempty"`
	Action       string                 `db:"action" json:"action"`
	ResourceType *string                `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   *string                `db:"resource_id" json:"resource_id,omitempty"`
	Payload      map[string]interface{} `db:"payload" json:"payload,omitempty"`
	Status       int                    `db:"status" json:"status"`
	IPAddress    *string                `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent    *string                `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}
