package consts

import "time"

const (
	DefaultListPollInterval   = 30 * time.Second
	DefaultThreadPollInterval = 5 * time.Second
	DefaultViewingTTL         = 15 * time.Second
	OpenDebounceTTL           = time.Second
)

const (
	RoleAdmin    = "ADMIN"
	RoleCommView = "COMM_VIEW"
	RoleCommSend = "COMM_SEND"
)

const (
	WebhookSecretHeader = "X-Webhook-Secret"
)
