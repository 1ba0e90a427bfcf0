package types

import "time"

// DeliveryMessage is the queue payload that triggers push/email fan-out for a
// created notification record. Delivery is at-least-once; consumers must
// tolerate duplicates. The message carries the full rendered content so the
// delivery worker needs no read-back.
type DeliveryMessage struct {
	NotificationID string           `json:"notification_id"`
	UserID         string           `json:"user_id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
	ActionRoute    string           `json:"action_route,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
