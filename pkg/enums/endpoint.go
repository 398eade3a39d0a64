package enums

import "fmt"

// EndpointType maps to the endpoint_type enum in Postgres.
type EndpointType string

const (
	EndpointTypeWebhook           EndpointType = "webhook"
	EndpointTypeBridge            EndpointType = "bridge"
	EndpointTypeEmailSubscription EndpointType = "email_subscription"
	EndpointTypeDrawer            EndpointType = "drawer"
)

var validEndpointTypes = []EndpointType{
	EndpointTypeWebhook,
	EndpointTypeBridge,
	EndpointTypeEmailSubscription,
	EndpointTypeDrawer,
}

// IsValid checks whether the given type matches the canonical enum.
func (e EndpointType) IsValid() bool {
	for _, candidate := range validEndpointTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEndpointType converts raw strings into EndpointType.
func ParseEndpointType(value string) (EndpointType, error) {
	for _, candidate := range validEndpointTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid endpoint type %q", value)
}
