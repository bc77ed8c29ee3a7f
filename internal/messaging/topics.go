package messaging

// Topic names shared by the four services. order.lifecycle is read by two
// consumer groups: the order service reacts to cancel/complete, the
// notification service to all three lifecycle commands.
const (
	TopicOrderLifecycle = "order.lifecycle"
	TopicBasketDelete   = "basket.delete"
	TopicBasketResult   = "basket.delete.result"
	TopicMaintenance    = "notifications.maintenance"
)
