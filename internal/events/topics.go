package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderPaid          = "order.paid"
	TopicOrderCanceled      = "order.canceled"
	TopicOrderStatusChanged = "order.status_changed"
	TopicOrdersSettled      = "orders.settled"
	TopicMemberVIPChanged   = "member.vip_changed"
	TopicAdminAction        = "admin.action"
)

// DefaultTopics returns every topic the storefront emits.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicOrderCanceled,
		TopicOrderStatusChanged,
		TopicOrdersSettled,
		TopicMemberVIPChanged,
		TopicAdminAction,
	}
}
