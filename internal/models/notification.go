package models

import (
	"strings"
	"time"
)

// NotificationType is the "type" field of an inbound push message.
type NotificationType string

const (
	TypePromotion      NotificationType = "promotion"
	TypeNewPlan        NotificationType = "new_plan"
	TypeBillReady      NotificationType = "bill_ready"
	TypePaymentDue     NotificationType = "payment_due"
	TypeTechnicalAlert NotificationType = "technical_alert"
	TypeServiceUpdate  NotificationType = "service_update"
	TypeChatMessage    NotificationType = "chat_message"
	TypeGeneral        NotificationType = "general"
)

// AllNotificationTypes lists every known type.
var AllNotificationTypes = []NotificationType{
	TypePromotion,
	TypeNewPlan,
	TypeBillReady,
	TypePaymentDue,
	TypeTechnicalAlert,
	TypeServiceUpdate,
	TypeChatMessage,
	TypeGeneral,
}

// ParseNotificationType maps a wire value to a known type. Unknown values map to [TypeGeneral].
func ParseNotificationType(raw string) NotificationType {
	t := NotificationType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllNotificationTypes {
		if t == known {
			return t
		}
	}
	return TypeGeneral
}

// NotificationClass decides whether an event is rendered immediately or batched.
type NotificationClass int

const (
	ClassBatchable NotificationClass = iota
	ClassUrgent
)

func (c NotificationClass) String() string {
	if c == ClassUrgent {
		return "urgent"
	}
	return "batchable"
}

// ChannelID identifies a platform notification channel.
type ChannelID string

const (
	ChannelDefault    ChannelID = "default"
	ChannelPromotions ChannelID = "promotions"
	ChannelTechnical  ChannelID = "technical"
	ChannelBilling    ChannelID = "billing"
)

// Importance is a channel's interruption level.
type Importance int

const (
	ImportanceLow Importance = iota + 1
	ImportanceDefault
	ImportanceHigh
)

func (i Importance) String() string {
	switch i {
	case ImportanceLow:
		return "low"
	case ImportanceHigh:
		return "high"
	default:
		return "default"
	}
}

// Channel is a platform notification channel definition.
type Channel struct {
	ID          ChannelID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Importance  Importance `json:"importance"`
}

// Well-known payload keys.
const (
	PayloadType      = "type"
	PayloadTitle     = "title"
	PayloadBody      = "body"
	PayloadMessageID = "message_id"
	PayloadImageURL  = "image_url"
)

// NotificationEvent is an inbound push message during dispatch. It is never persisted.
type NotificationEvent struct {
	Type       NotificationType  `json:"type"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Payload    map[string]string `json:"payload"`
	ReceivedAt time.Time         `json:"receivedAt"`
}

// EventFromData builds an event from a push message data map.
func EventFromData(data map[string]string, receivedAt time.Time) NotificationEvent {
	payload := make(map[string]string, len(data))
	for k, v := range data {
		payload[k] = v
	}
	return NotificationEvent{
		Type:       ParseNotificationType(data[PayloadType]),
		Title:      data[PayloadTitle],
		Body:       data[PayloadBody],
		Payload:    payload,
		ReceivedAt: receivedAt,
	}
}

// MessageID returns the payload's message id, if any.
func (e NotificationEvent) MessageID() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload[PayloadMessageID]
}

// NotificationRecord is a history entry used for rate limiting and statistics.
type NotificationRecord struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Shown     bool             `json:"shown"`
}

// Notification is what the dispatcher hands to a renderer.
type Notification struct {
	ID           string            `json:"id"`
	Type         NotificationType  `json:"type"`
	Channel      ChannelID         `json:"channel"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	DeepLink     string            `json:"deepLink"`
	Count        int               `json:"count"`
	ImageURL     string            `json:"imageUrl,omitempty"`
	ImageQuality ImageQuality      `json:"imageQuality"`
	Payload      map[string]string `json:"payload,omitempty"`
}
