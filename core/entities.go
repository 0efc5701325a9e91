package core

import "time"

// TimelineEntry is appended to a parent document and never edited afterwards.
type TimelineEntry struct {
	ID          string         `json:"id"`
	Event       string         `json:"event"`
	Description string         `json:"description,omitempty"`
	SourceType  string         `json:"source_type,omitempty"`
	SourceID    string         `json:"source_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

type Contact struct {
	ID              string
	ExternalID      string
	LocationID      string
	FirstName       string
	LastName        string
	FullName        string
	Email           string
	Phone           string
	CompanyName     string
	Source          string
	AssignedTo      string
	Tags            []string
	DND             bool
	CustomFields    map[string]any
	Address         map[string]any
	NeedsEnrichment bool
	Deleted         bool
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Note struct {
	ID         string
	ExternalID string
	LocationID string
	ContactID  string
	ExtContact string
	Body       string
	UserID     string
	Deleted    bool
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Appointment struct {
	ID               string
	ExternalID       string
	LocationID       string
	CalendarID       string
	ContactID        string
	ExtContact       string
	AssignedUserID   string
	Title            string
	Status           string
	AppointmentState string
	Address          string
	Notes            string
	StartTime        *time.Time
	EndTime          *time.Time
	Deleted          bool
	DeletedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type InvoiceKind string

const (
	InvoiceKindInvoice InvoiceKind = "invoice"
	InvoiceKindOrder   InvoiceKind = "order"
)

type Invoice struct {
	ID            string
	ExternalID    string
	LocationID    string
	Kind          InvoiceKind
	Number        string
	Name          string
	ContactID     string
	ExtContact    string
	OpportunityID string
	Status        string
	Currency      string
	Total         float64
	AmountPaid    float64
	AmountDue     float64
	IssueDate     *time.Time
	DueDate       *time.Time
	PaidAt        *time.Time
	LineItems     []map[string]any
	Deleted       bool
	DeletedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ProjectStatus string

const (
	ProjectStatusOpen      ProjectStatus = "open"
	ProjectStatusWon       ProjectStatus = "won"
	ProjectStatusLost      ProjectStatus = "lost"
	ProjectStatusAbandoned ProjectStatus = "abandoned"
)

func (s ProjectStatus) Closed() bool {
	return s == ProjectStatusWon || s == ProjectStatusLost || s == ProjectStatusAbandoned
}

type Project struct {
	ID              string
	OpportunityID   string
	LocationID      string
	ContactID       string
	ExtContact      string
	Title           string
	Status          ProjectStatus
	PipelineID      string
	PipelineStageID string
	MonetaryValue   float64
	AssignedTo      string
	Timeline        []TimelineEntry
	Deleted         bool
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Task struct {
	ID         string
	ExternalID string
	LocationID string
	ContactID  string
	ExtContact string
	ProjectID  string
	Title      string
	Body       string
	AssignedTo string
	DueDate    *time.Time
	Completed  bool
	Deleted    bool
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Message struct {
	ID             string
	ExternalID     string
	LocationID     string
	ConversationID string
	ExtConv        string
	ContactID      string
	ExtContact     string
	Direction      string
	MessageType    string
	Body           string
	Status         string
	Attachments    []string
	UserID         string
	SentAt         *time.Time
	Deleted        bool
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Conversation struct {
	ID              string
	ExternalID      string
	LocationID      string
	ContactID       string
	ExtContact      string
	AssignedTo      string
	LastMessageBody string
	LastMessageType string
	LastMessageAt   *time.Time
	UnreadCount     int
	Deleted         bool
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type LocationStatus string

const (
	LocationStatusActive      LocationStatus = "active"
	LocationStatusUninstalled LocationStatus = "uninstalled"
)

// Location is the persisted tenant configuration record.
type Location struct {
	ID             string
	ExternalID     string
	CompanyID      string
	Name           string
	Plan           string
	Status         LocationStatus
	AccessToken    string
	TokenExpiresAt *time.Time
	Timezone       string
	OwnerUserID    string
	Settings       map[string]any
	InstalledAt    *time.Time
	UninstalledAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasCredentials reports whether outbound enrichment calls can be made at now.
func (l Location) HasCredentials(now time.Time) bool {
	if l.AccessToken == "" {
		return false
	}
	if l.TokenExpiresAt != nil && !l.TokenExpiresAt.After(now) {
		return false
	}
	return true
}

type UnhandledEvent struct {
	ID        string
	WebhookID string
	Type      string
	TenantID  string
	QueueType QueueType
	Payload   map[string]any
	Reason    string
	CreatedAt time.Time
}

type CleanupReport struct {
	LocationID      string
	AutomationRules int
	QueuedJobs      int
	SyncStates      int
}

type UserRecord struct {
	ID         string
	ExternalID string
	LocationID string
	Name       string
	Email      string
	Role       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
