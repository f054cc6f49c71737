package enums

// GatewayEventStatus records how a payment gateway notification was handled.
type GatewayEventStatus string

const (
	GatewayEventReceived  GatewayEventStatus = "received"
	GatewayEventProcessed GatewayEventStatus = "processed"
	GatewayEventIgnored   GatewayEventStatus = "ignored"
	GatewayEventFailed    GatewayEventStatus = "failed"
)

var validGatewayEventStatuses = []GatewayEventStatus{
	GatewayEventReceived,
	GatewayEventProcessed,
	GatewayEventIgnored,
	GatewayEventFailed,
}

func (s GatewayEventStatus) IsValid() bool {
	for _, candidate := range validGatewayEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
