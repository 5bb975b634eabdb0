package push

import (
	"strings"
	"time"
	"unicode"

	"github.com/linage/linapush/internal/models"
)

// Segment activity and tenure windows.
const (
	HighlyActiveWindow = 24 * time.Hour
	ActiveWindow       = 30 * 24 * time.Hour
	NewCustomerWindow  = 90 * 24 * time.Hour
	LoyalCustomerAge   = 2 * 365 * 24 * time.Hour
)

// Topic prefixes.
const (
	SegmentTopicPrefix = "segment_"
	UserTopicPrefix    = "user_"
)

// DeriveSegments computes the segment tags for attrs at now. The result depends only on its inputs.
func DeriveSegments(attrs models.UserAttributes, now time.Time) models.SegmentSet {
	var tags []string

	if attrs.IsLinageCustomer {
		tags = append(tags, "linage_customer")
	} else {
		tags = append(tags, "non_customer")
	}

	if plan := sanitize(attrs.PlanType); plan != "" {
		tags = append(tags, "plan_"+plan)
	}

	if attrs.HasActiveService {
		tags = append(tags, "active_service")
	} else {
		tags = append(tags, "no_active_service")
	}

	if !attrs.CustomerSince.IsZero() {
		switch age := now.Sub(attrs.CustomerSince); {
		case age < NewCustomerWindow:
			tags = append(tags, "new_customer")
		case age >= LoyalCustomerAge:
			tags = append(tags, "loyal_customer")
		}
	}

	if !attrs.LastActivity.IsZero() {
		switch idle := now.Sub(attrs.LastActivity); {
		case idle <= HighlyActiveWindow:
			tags = append(tags, "highly_active")
		case idle <= ActiveWindow:
			tags = append(tags, "active")
		default:
			tags = append(tags, "dormant")
		}
	}

	if lang := sanitize(attrs.PreferredLanguage); lang != "" {
		tags = append(tags, "lang_"+lang)
	}

	return models.NewSegmentSet(tags...)
}

// SegmentTopic returns the push topic for a segment tag.
func SegmentTopic(tag string) string { return SegmentTopicPrefix + sanitize(tag) }

// UserTopic returns the push topic for an authenticated user.
func UserTopic(userID string) string { return UserTopicPrefix + sanitize(userID) }

// sanitize lowercases s and replaces anything outside [a-z0-9_-] with '_'.
func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			return r
		}
		return '_'
	}, s)
}
