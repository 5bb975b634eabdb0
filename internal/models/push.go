package models

import (
	"sort"
	"time"
)

// PushToken is the opaque push-messaging registration token.
type PushToken struct {
	Value    string    `json:"token"`
	IssuedAt time.Time `json:"issuedAt"`
}

// IsZero reports whether no token is held.
func (t PushToken) IsZero() bool { return t.Value == "" }

// SyncOutcome is the result of a backend token sync attempt.
type SyncOutcome int

const (
	SyncSuccess SyncOutcome = iota
	SyncRateLimited
	SyncFailed
)

func (o SyncOutcome) String() string {
	switch o {
	case SyncSuccess:
		return "success"
	case SyncRateLimited:
		return "rate_limited"
	default:
		return "failed"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (o SyncOutcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UserAttributes are the account and activity attributes segments are derived from.
type UserAttributes struct {
	UserID            string    `json:"userId"`
	Email             string    `json:"userEmail"`
	IsLinageCustomer  bool      `json:"isLinageCustomer"`
	PlanType          string    `json:"planType"`
	CustomerSince     time.Time `json:"customerSince"`
	LastActivity      time.Time `json:"lastActivity"`
	PreferredLanguage string    `json:"preferredLanguage"`
	HasActiveService  bool      `json:"hasActiveService"`
}

// SegmentSet is a set of segment tags.
type SegmentSet map[string]struct{}

// NewSegmentSet builds a set from tags, skipping empty strings.
func NewSegmentSet(tags ...string) SegmentSet {
	s := make(SegmentSet, len(tags))
	for _, tag := range tags {
		if tag != "" {
			s[tag] = struct{}{}
		}
	}
	return s
}

// Has reports whether tag is in the set.
func (s SegmentSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Diff returns the tags in s missing from prev (added) and those in prev missing from s (removed).
func (s SegmentSet) Diff(prev SegmentSet) (added, removed []string) {
	for tag := range s {
		if !prev.Has(tag) {
			added = append(added, tag)
		}
	}
	for tag := range prev {
		if !s.Has(tag) {
			removed = append(removed, tag)
		}
	}
	return added, removed
}

// Sorted returns the tags in lexical order.
func (s SegmentSet) Sorted() []string {
	tags := make([]string, 0, len(s))
	for tag := range s {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
