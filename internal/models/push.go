package models

import "time"

// PushSubscription is a stored Web Push subscription. Subscription holds the JSON
// blob (endpoint + keys) in the PushSubscription.toJSON() shape.
type PushSubscription struct {
	ID           string    `json:"id" bson:"_id" gorm:"primaryKey"`
	UserID       string    `json:"user_id" bson:"user_id" gorm:"index;not null"`
	Subscription string    `json:"subscription" bson:"subscription" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// SubscribeRequest is the PushSubscription.toJSON() shape sent by browsers.
type SubscribeRequest struct {
	Endpoint       string           `json:"endpoint" validate:"required,url"`
	ExpirationTime *int64           `json:"expirationTime,omitempty"`
	Keys           SubscriptionKeys `json:"keys"`
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}
