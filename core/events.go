package core

import "time"

const (
	EventInstall        = "INSTALL"
	EventUninstall      = "UNINSTALL"
	EventPlanChange     = "PLAN_CHANGE"
	EventLocationCreate = "LocationCreate"
	EventLocationUpdate = "LocationUpdate"

	EventContactCreate    = "ContactCreate"
	EventContactUpdate    = "ContactUpdate"
	EventContactDelete    = "ContactDelete"
	EventContactDndUpdate = "ContactDndUpdate"
	EventContactTagUpdate = "ContactTagUpdate"
	EventNoteCreate       = "NoteCreate"
	EventNoteUpdate       = "NoteUpdate"
	EventNoteDelete       = "NoteDelete"

	EventAppointmentCreate = "AppointmentCreate"
	EventAppointmentUpdate = "AppointmentUpdate"
	EventAppointmentDelete = "AppointmentDelete"

	EventInboundMessage           = "InboundMessage"
	EventOutboundMessage          = "OutboundMessage"
	EventConversationUnreadUpdate = "ConversationUnreadUpdate"

	EventInvoiceCreate        = "InvoiceCreate"
	EventInvoiceUpdate        = "InvoiceUpdate"
	EventInvoiceSent          = "InvoiceSent"
	EventInvoicePaid          = "InvoicePaid"
	EventInvoicePartiallyPaid = "InvoicePartiallyPaid"
	EventInvoiceVoid          = "InvoiceVoid"
	EventInvoiceDelete        = "InvoiceDelete"
	EventOrderCreate          = "OrderCreate"
	EventOrderStatusUpdate    = "OrderStatusUpdate"

	EventOpportunityCreate              = "OpportunityCreate"
	EventOpportunityUpdate              = "OpportunityUpdate"
	EventOpportunityStageUpdate         = "OpportunityStageUpdate"
	EventOpportunityStatusUpdate        = "OpportunityStatusUpdate"
	EventOpportunityMonetaryValueUpdate = "OpportunityMonetaryValueUpdate"
	EventOpportunityAssignedToUpdate    = "OpportunityAssignedToUpdate"
	EventOpportunityDelete              = "OpportunityDelete"
	EventTaskCreate                     = "TaskCreate"
	EventTaskComplete                   = "TaskComplete"
	EventTaskDelete                     = "TaskDelete"

	EventUserCreate           = "UserCreate"
	EventUserUpdate           = "UserUpdate"
	EventCampaignStatusUpdate = "CampaignStatusUpdate"
	EventLCEmailStats         = "LCEmailStats"
)

// Event is the canonical form every handler receives, whatever the upstream
// payload shape was.
type Event struct {
	ItemID    string
	WebhookID string
	Type      string
	TenantID  string
	CompanyID string
	Attempts  int
	Data      map[string]any
	Nested    bool
	Received  time.Time
}

// Notification is a derived real-time publish, gated on (EntityID, EventName).
type Notification struct {
	Channel   string
	EventName string
	Data      map[string]any
	EntityID  string
}

type PushMessage struct {
	Title string
	Body  string
	Data  map[string]any
}

type PushNotification struct {
	UserID   string
	EntityID string
	Event    string
	Message  PushMessage
}

// Outcome is what an apply phase returns to the notify phase.
type Outcome struct {
	EntityID      string
	Notifications []Notification
	Pushes        []PushNotification
	Metadata      map[string]any
}

func (o Outcome) Empty() bool {
	return len(o.Notifications) == 0 && len(o.Pushes) == 0
}
