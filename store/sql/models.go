package sqlstore

import (
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/uptrace/bun"
)

type workItemRecord struct {
	bun.BaseModel `bun:"table:hookqueue_work_items,alias:wi"`

	ID             string         `bun:"id,pk"`
	QueueType      string         `bun:"queue_type,notnull"`
	Type           string         `bun:"type,notnull"`
	WebhookID      string         `bun:"webhook_id,notnull"`
	TenantID       string         `bun:"tenant_id,notnull"`
	CompanyID      string         `bun:"company_id,notnull"`
	Payload        map[string]any `bun:"payload,type:jsonb,notnull"`
	Priority       int            `bun:"priority,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	MaxAttempts    int            `bun:"max_attempts,notnull"`
	Status         string         `bun:"status,notnull"`
	ClaimID        string         `bun:"claim_id,notnull"`
	LeaseExpiresAt *time.Time     `bun:"lease_expires_at,nullzero"`
	NextAttemptAt  *time.Time     `bun:"next_attempt_at,nullzero"`
	LastError      string         `bun:"last_error,notnull"`
	DeadAt         *time.Time     `bun:"dead_at,nullzero"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type dedupMarkerRecord struct {
	bun.BaseModel `bun:"table:hookqueue_dedup_markers,alias:dm"`

	ID        string    `bun:"id,pk"`
	EntityID  string    `bun:"entity_id,notnull"`
	EventType string    `bun:"event_type,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull"`
	ExpiresAt time.Time `bun:"expires_at,nullzero,notnull"`
}

type webhookMetricRecord struct {
	bun.BaseModel `bun:"table:hookqueue_webhook_metrics,alias:whm"`

	ID                    string     `bun:"id,pk"`
	WebhookID             string     `bun:"webhook_id,notnull"`
	Type                  string     `bun:"type,notnull"`
	QueueType             string     `bun:"queue_type,notnull"`
	TenantID              string     `bun:"tenant_id,notnull"`
	Status                string     `bun:"status,notnull"`
	Attempts              int        `bun:"attempts,notnull"`
	ReceivedAt            time.Time  `bun:"received_at,nullzero,notnull"`
	ProcessingStartedAt   *time.Time `bun:"processing_started_at,nullzero"`
	ProcessingCompletedAt *time.Time `bun:"processing_completed_at,nullzero"`
	QueueWaitMs           int64      `bun:"queue_wait_ms,notnull"`
	ProcessingMs          int64      `bun:"processing_ms,notnull"`
	TotalMs               int64      `bun:"total_ms,notnull"`
	SLATargetMs           int64      `bun:"sla_target_ms,notnull"`
	ExceedsSLA            bool       `bun:"exceeds_sla,notnull"`
	ErrorReason           string     `bun:"error_reason,notnull"`
}

type locationRecord struct {
	bun.BaseModel `bun:"table:hookqueue_locations,alias:loc"`

	ID             string         `bun:"id,pk"`
	ExternalID     string         `bun:"external_id,notnull"`
	CompanyID      string         `bun:"company_id,notnull"`
	Name           string         `bun:"name,notnull"`
	Plan           string         `bun:"plan,notnull"`
	Status         string         `bun:"status,notnull"`
	AccessToken    string         `bun:"access_token,notnull"`
	TokenExpiresAt *time.Time     `bun:"token_expires_at,nullzero"`
	Timezone       string         `bun:"timezone,notnull"`
	OwnerUserID    string         `bun:"owner_user_id,notnull"`
	Settings       map[string]any `bun:"settings,type:jsonb,notnull"`
	InstalledAt    *time.Time     `bun:"installed_at,nullzero"`
	UninstalledAt  *time.Time     `bun:"uninstalled_at,nullzero"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type contactRecord struct {
	bun.BaseModel `bun:"table:hookqueue_contacts,alias:ct"`

	ID              string         `bun:"id,pk"`
	ExternalID      string         `bun:"external_id,notnull"`
	LocationID      string         `bun:"location_id,notnull"`
	FirstName       string         `bun:"first_name,notnull"`
	LastName        string         `bun:"last_name,notnull"`
	FullName        string         `bun:"full_name,notnull"`
	Email           string         `bun:"email,notnull"`
	Phone           string         `bun:"phone,notnull"`
	CompanyName     string         `bun:"company_name,notnull"`
	Source          string         `bun:"source,notnull"`
	AssignedTo      string         `bun:"assigned_to,notnull"`
	Tags            []string       `bun:"tags,type:jsonb,notnull"`
	DND             bool           `bun:"dnd,notnull"`
	CustomFields    map[string]any `bun:"custom_fields,type:jsonb,notnull"`
	Address         map[string]any `bun:"address,type:jsonb,notnull"`
	NeedsEnrichment bool           `bun:"needs_enrichment,notnull"`
	Deleted         bool           `bun:"deleted,notnull"`
	DeletedAt       *time.Time     `bun:"deleted_at,nullzero"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type noteRecord struct {
	bun.BaseModel `bun:"table:hookqueue_notes,alias:nt"`

	ID         string     `bun:"id,pk"`
	ExternalID string     `bun:"external_id,notnull"`
	LocationID string     `bun:"location_id,notnull"`
	ContactID  *string    `bun:"contact_id"`
	ExtContact string     `bun:"ext_contact_id,notnull"`
	Body       string     `bun:"body,notnull"`
	UserID     string     `bun:"user_id,notnull"`
	Deleted    bool       `bun:"deleted,notnull"`
	DeletedAt  *time.Time `bun:"deleted_at,nullzero"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type appointmentRecord struct {
	bun.BaseModel `bun:"table:hookqueue_appointments,alias:ap"`

	ID               string     `bun:"id,pk"`
	ExternalID       string     `bun:"external_id,notnull"`
	LocationID       string     `bun:"location_id,notnull"`
	CalendarID       string     `bun:"calendar_id,notnull"`
	ContactID        *string    `bun:"contact_id"`
	ExtContact       string     `bun:"ext_contact_id,notnull"`
	AssignedUserID   string     `bun:"assigned_user_id,notnull"`
	Title            string     `bun:"title,notnull"`
	Status           string     `bun:"status,notnull"`
	AppointmentState string     `bun:"appointment_state,notnull"`
	Address          string     `bun:"address,notnull"`
	Notes            string     `bun:"notes,notnull"`
	StartTime        *time.Time `bun:"start_time,nullzero"`
	EndTime          *time.Time `bun:"end_time,nullzero"`
	Deleted          bool       `bun:"deleted,notnull"`
	DeletedAt        *time.Time `bun:"deleted_at,nullzero"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type invoiceRecord struct {
	bun.BaseModel `bun:"table:hookqueue_invoices,alias:inv"`

	ID            string           `bun:"id,pk"`
	ExternalID    string           `bun:"external_id,notnull"`
	LocationID    string           `bun:"location_id,notnull"`
	Kind          string           `bun:"kind,notnull"`
	Number        string           `bun:"number,notnull"`
	Name          string           `bun:"name,notnull"`
	ContactID     *string          `bun:"contact_id"`
	ExtContact    string           `bun:"ext_contact_id,notnull"`
	OpportunityID string           `bun:"opportunity_id,notnull"`
	Status        string           `bun:"status,notnull"`
	Currency      string           `bun:"currency,notnull"`
	Total         float64          `bun:"total,notnull"`
	AmountPaid    float64          `bun:"amount_paid,notnull"`
	AmountDue     float64          `bun:"amount_due,notnull"`
	IssueDate     *time.Time       `bun:"issue_date,nullzero"`
	DueDate       *time.Time       `bun:"due_date,nullzero"`
	PaidAt        *time.Time       `bun:"paid_at,nullzero"`
	LineItems     []map[string]any `bun:"line_items,type:jsonb,notnull"`
	Deleted       bool             `bun:"deleted,notnull"`
	DeletedAt     *time.Time       `bun:"deleted_at,nullzero"`
	CreatedAt     time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type projectRecord struct {
	bun.BaseModel `bun:"table:hookqueue_projects,alias:pj"`

	ID              string               `bun:"id,pk"`
	OpportunityID   string               `bun:"opportunity_id,notnull"`
	LocationID      string               `bun:"location_id,notnull"`
	ContactID       *string              `bun:"contact_id"`
	ExtContact      string               `bun:"ext_contact_id,notnull"`
	Title           string               `bun:"title,notnull"`
	Status          string               `bun:"status,notnull"`
	PipelineID      string               `bun:"pipeline_id,notnull"`
	PipelineStageID string               `bun:"pipeline_stage_id,notnull"`
	MonetaryValue   float64              `bun:"monetary_value,notnull"`
	AssignedTo      string               `bun:"assigned_to,notnull"`
	Timeline        []core.TimelineEntry `bun:"timeline,type:jsonb,notnull"`
	Deleted         bool                 `bun:"deleted,notnull"`
	DeletedAt       *time.Time           `bun:"deleted_at,nullzero"`
	CreatedAt       time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time            `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type taskRecord struct {
	bun.BaseModel `bun:"table:hookqueue_tasks,alias:tk"`

	ID         string     `bun:"id,pk"`
	ExternalID string     `bun:"external_id,notnull"`
	LocationID string     `bun:"location_id,notnull"`
	ContactID  *string    `bun:"contact_id"`
	ExtContact string     `bun:"ext_contact_id,notnull"`
	ProjectID  *string    `bun:"project_id"`
	Title      string     `bun:"title,notnull"`
	Body       string     `bun:"body,notnull"`
	AssignedTo string     `bun:"assigned_to,notnull"`
	DueDate    *time.Time `bun:"due_date,nullzero"`
	Completed  bool       `bun:"completed,notnull"`
	Deleted    bool       `bun:"deleted,notnull"`
	DeletedAt  *time.Time `bun:"deleted_at,nullzero"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type messageRecord struct {
	bun.BaseModel `bun:"table:hookqueue_messages,alias:msg"`

	ID             string     `bun:"id,pk"`
	ExternalID     string     `bun:"external_id,notnull"`
	LocationID     string     `bun:"location_id,notnull"`
	ConversationID *string    `bun:"conversation_id"`
	ExtConv        string     `bun:"ext_conversation_id,notnull"`
	ContactID      *string    `bun:"contact_id"`
	ExtContact     string     `bun:"ext_contact_id,notnull"`
	Direction      string     `bun:"direction,notnull"`
	MessageType    string     `bun:"message_type,notnull"`
	Body           string     `bun:"body,notnull"`
	Status         string     `bun:"status,notnull"`
	Attachments    []string   `bun:"attachments,type:jsonb,notnull"`
	UserID         string     `bun:"user_id,notnull"`
	SentAt         *time.Time `bun:"sent_at,nullzero"`
	Deleted        bool       `bun:"deleted,notnull"`
	DeletedAt      *time.Time `bun:"deleted_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type conversationRecord struct {
	bun.BaseModel `bun:"table:hookqueue_conversations,alias:cv"`

	ID              string     `bun:"id,pk"`
	ExternalID      string     `bun:"external_id,notnull"`
	LocationID      string     `bun:"location_id,notnull"`
	ContactID       *string    `bun:"contact_id"`
	ExtContact      string     `bun:"ext_contact_id,notnull"`
	AssignedTo      string     `bun:"assigned_to,notnull"`
	LastMessageBody string     `bun:"last_message_body,notnull"`
	LastMessageType string     `bun:"last_message_type,notnull"`
	LastMessageAt   *time.Time `bun:"last_message_at,nullzero"`
	UnreadCount     int        `bun:"unread_count,notnull"`
	Deleted         bool       `bun:"deleted,notnull"`
	DeletedAt       *time.Time `bun:"deleted_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type userRecord struct {
	bun.BaseModel `bun:"table:hookqueue_users,alias:usr"`

	ID         string    `bun:"id,pk"`
	ExternalID string    `bun:"external_id,notnull"`
	LocationID string    `bun:"location_id,notnull"`
	Name       string    `bun:"name,notnull"`
	Email      string    `bun:"email,notnull"`
	Role       string    `bun:"role,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type unhandledEventRecord struct {
	bun.BaseModel `bun:"table:hookqueue_unhandled_events,alias:ue"`

	ID        string         `bun:"id,pk"`
	WebhookID string         `bun:"webhook_id,notnull"`
	Type      string         `bun:"type,notnull"`
	TenantID  string         `bun:"tenant_id,notnull"`
	QueueType string         `bun:"queue_type,notnull"`
	Payload   map[string]any `bun:"payload,type:jsonb,notnull"`
	Reason    string         `bun:"reason,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// automationRuleRecord and syncStateRecord are derivative tables owned by
// other services; the pipeline only purges them on uninstall.
type automationRuleRecord struct {
	bun.BaseModel `bun:"table:hookqueue_automation_rules,alias:ar"`

	ID         string    `bun:"id,pk"`
	LocationID string    `bun:"location_id,notnull"`
	Name       string    `bun:"name,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type syncStateRecord struct {
	bun.BaseModel `bun:"table:hookqueue_sync_states,alias:ss"`

	ID         string    `bun:"id,pk"`
	LocationID string    `bun:"location_id,notnull"`
	Resource   string    `bun:"resource,notnull"`
	Cursor     string    `bun:"cursor,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
