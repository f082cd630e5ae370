package models

// Realtime event types pushed to browser clients
const (
	EventConnected          = "connected"
	EventPing               = "ping"
	EventEmailReceived      = "email_received"
	EventSystemNotification = "system_notification"
	EventProgress           = "progress"
	EventOperationComplete  = "operation_complete"
	EventError              = "error"
)

// Event is one frame on a push connection. Timestamp is RFC 3339.
type Event struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// EmailNotification is the payload of an email_received event.
type EmailNotification struct {
	EmailID         string `json:"emailId"`
	FromAddress     string `json:"fromAddress"`
	Subject         string `json:"subject"`
	ReceivedAt      string `json:"receivedAt"`
	AttachmentCount int    `json:"attachmentCount"`
}

// SystemNotification is the payload of a system_notification event.
type SystemNotification struct {
	Message string                 `json:"message"`
	Type    string                 `json:"type"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Progress describes the state of one long-running operation for one client.
// Progress is a percentage in [0, 100]; Timestamp is epoch milliseconds.
type Progress struct {
	Operation     string `json:"operation"`
	Progress      int    `json:"progress"`
	Message       string `json:"message"`
	EstimatedTime *int   `json:"estimatedTime,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}
