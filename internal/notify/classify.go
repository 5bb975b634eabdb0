package notify

import "github.com/linage/linapush/internal/models"

// Route is where a notification type goes: its channel, its class and its tap target.
type Route struct {
	Channel  models.ChannelID
	Class    models.NotificationClass
	DeepLink string
	Label    string // plural noun used in coalesced summaries
}

// Classify returns the route for t. Unknown types route like [models.TypeGeneral].
func Classify(t models.NotificationType) Route {
	switch t {
	case models.TypePromotion:
		return Route{models.ChannelPromotions, models.ClassBatchable, "linage://promotions", "promotions"}
	case models.TypeNewPlan:
		return Route{models.ChannelPromotions, models.ClassBatchable, "linage://plans", "new plans"}
	case models.TypeBillReady:
		return Route{models.ChannelBilling, models.ClassBatchable, "linage://billing", "bills"}
	case models.TypePaymentDue:
		return Route{models.ChannelBilling, models.ClassUrgent, "linage://billing/pay", "payment reminders"}
	case models.TypeTechnicalAlert:
		return Route{models.ChannelTechnical, models.ClassUrgent, "linage://support/status", "technical alerts"}
	case models.TypeServiceUpdate:
		return Route{models.ChannelTechnical, models.ClassBatchable, "linage://support", "service updates"}
	case models.TypeChatMessage:
		return Route{models.ChannelDefault, models.ClassBatchable, "linage://assistant", "messages"}
	default:
		return Route{models.ChannelDefault, models.ClassBatchable, "linage://home", "notifications"}
	}
}

// Channels returns the fixed platform channels, registered once per process.
func Channels() []models.Channel {
	return []models.Channel{
		{ID: models.ChannelDefault, Name: "General", Description: "Account and assistant notifications", Importance: models.ImportanceDefault},
		{ID: models.ChannelPromotions, Name: "Promotions", Description: "Offers and new plans", Importance: models.ImportanceLow},
		{ID: models.ChannelTechnical, Name: "Technical", Description: "Service status and outages", Importance: models.ImportanceHigh},
		{ID: models.ChannelBilling, Name: "Billing", Description: "Bills and payment reminders", Importance: models.ImportanceHigh},
	}
}
