package events

// Topic constants for domain events emitted by the checkout flow.
const (
	TopicCheckoutSettled     = "checkout.settled"
	TopicCheckoutTruncated   = "checkout.truncated"
	TopicCheckoutBalanceOwed = "checkout.balance_owed"
	TopicLaneExited          = "lane.exited"
)
