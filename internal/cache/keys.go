package cache

import "fmt"

// WebhookDeliveryKey identifies one identity-provider webhook delivery.
func WebhookDeliveryKey(deliveryID string) string {
	return fmt.Sprintf("webhook:identity:%s", deliveryID)
}
