package enums

import "fmt"

// SubscriptionType maps to the subscription_type enum in Postgres.
type SubscriptionType string

const (
	SubscriptionTypeDaily   SubscriptionType = "daily"
	SubscriptionTypeInstant SubscriptionType = "instant"
)

var validSubscriptionTypes = []SubscriptionType{
	SubscriptionTypeDaily,
	SubscriptionTypeInstant,
}

// IsValid checks whether the given type matches the canonical enum.
func (s SubscriptionType) IsValid() bool {
	for _, candidate := range validSubscriptionTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubscriptionType converts raw strings into SubscriptionType.
func ParseSubscriptionType(value string) (SubscriptionType, error) {
	for _, candidate := range validSubscriptionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription type %q", value)
}
