package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type QueueStore interface {
	Insert(ctx context.Context, item WorkItem) (WorkItem, bool, error)
	Get(ctx context.Context, id string) (WorkItem, error)
	Claim(ctx context.Context, req ClaimRequest) ([]WorkItem, error)
	// Complete and Fail only apply to a processing item still held by the
	// given claim; otherwise they return ErrLeaseLost.
	Complete(ctx context.Context, id string, claimID string, now time.Time) error
	Fail(ctx context.Context, id string, update FailUpdate) error
	Requeue(ctx context.Context, id string, now time.Time) error
	ListDead(ctx context.Context, filter DeadLetterFilter) ([]WorkItem, error)
	Depth(ctx context.Context) ([]QueueDepth, error)
}

type MarkerStore interface {
	// Acquire inserts or revives the marker for the key; it returns
	// ErrMarkerExists when a live marker already holds the key.
	Acquire(ctx context.Context, entityID string, eventType string, now time.Time, ttl time.Duration) error
	PruneExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

type MetricStore interface {
	InsertReceived(ctx context.Context, metric WebhookMetric) error
	Get(ctx context.Context, webhookID string) (WebhookMetric, error)
	MarkStarted(ctx context.Context, update StartedUpdate) error
	MarkCompleted(ctx context.Context, update CompletedUpdate) error
	List(ctx context.Context, filter MetricFilter) ([]WebhookMetric, error)
}

type ContactStore interface {
	UpsertContact(ctx context.Context, contact Contact) (Contact, bool, error)
	FindContact(ctx context.Context, externalID string, locationID string) (Contact, error)
	SoftDeleteContact(ctx context.Context, externalID string, locationID string, at time.Time) (bool, error)
	UpsertNote(ctx context.Context, note Note) (Note, bool, error)
	SoftDeleteNote(ctx context.Context, externalID string, locationID string, at time.Time) (bool, error)
}

type AppointmentStore interface {
	UpsertAppointment(ctx context.Context, appointment Appointment) (Appointment, bool, error)
	FindAppointment(ctx context.Context, externalID string, locationID string) (Appointment, error)
	SoftDeleteAppointment(ctx context.Context, externalID string, locationID string, at time.Time) (bool, error)
}

type InvoiceStore interface {
	UpsertInvoice(ctx context.Context, invoice Invoice) (Invoice, bool, error)
	FindInvoice(ctx context.Context, externalID string, locationID string) (Invoice, error)
	SoftDeleteInvoice(ctx context.Context, externalID string, locationID string, at time.Time) (bool, error)
}

type ProjectStore interface {
	UpsertProject(ctx context.Context, project Project) (Project, bool, error)
	FindProjectByOpportunity(ctx context.Context, opportunityID string, locationID string) (Project, error)
	FindOpenProjectForContact(ctx context.Context, contactExternalID string, locationID string) (Project, error)
	AppendTimeline(ctx context.Context, projectID string, entry TimelineEntry) error
	SoftDeleteProject(ctx context.Context, opportunityID string, locationID string, at time.Time) (bool, error)
	UpsertTask(ctx context.Context, task Task) (Task, bool, error)
	FindTask(ctx context.Context, externalID string, locationID string) (Task, error)
	SoftDeleteTask(ctx context.Context, externalID string, locationID string, at time.Time) (bool, error)
}

type MessageStore interface {
	UpsertMessage(ctx context.Context, message Message) (Message, bool, error)
	UpsertConversation(ctx context.Context, conversation Conversation) (Conversation, bool, error)
	FindConversation(ctx context.Context, externalID string, locationID string) (Conversation, error)
	IncrementUnread(ctx context.Context, conversationID string, delta int) error
}

type LocationStore interface {
	UpsertLocation(ctx context.Context, location Location) (Location, error)
	GetLocation(ctx context.Context, externalID string) (Location, error)
}

type LocationReader interface {
	GetLocation(ctx context.Context, externalID string) (Location, error)
}

type UserStore interface {
	UpsertUser(ctx context.Context, user UserRecord) (UserRecord, bool, error)
}

type CleanupStore interface {
	// PurgeDerivatives hard deletes short-lived derivative records of a
	// location. Business records are never touched.
	PurgeDerivatives(ctx context.Context, locationID string, keepItemID string, limit int) (CleanupReport, error)
}

type UnhandledStore interface {
	RecordUnhandled(ctx context.Context, event UnhandledEvent) error
}

// Stores groups the entity stores bound to one connection or transaction.
type Stores struct {
	Contacts     ContactStore
	Appointments AppointmentStore
	Invoices     InvoiceStore
	Projects     ProjectStore
	Messages     MessageStore
	Locations    LocationStore
	Users        UserStore
	Cleanup      CleanupStore
	Unhandled    UnhandledStore
}

type UnitOfWork interface {
	Stores() Stores
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}

type QueueManager interface {
	GetNextBatch(ctx context.Context, queueType QueueType, batchSize int) ([]WorkItem, error)
	MarkComplete(ctx context.Context, id string, claimID string) error
	MarkFailed(ctx context.Context, id string, claimID string, reason string) (FailureOutcome, error)
}

type AnalyticsRecorder interface {
	RecordReceived(ctx context.Context, in ReceivedInput) error
	RecordProcessingStarted(ctx context.Context, webhookID string) error
	RecordProcessingCompleted(ctx context.Context, webhookID string, success bool, reason string) error
}

type DedupGate interface {
	ShouldPublish(ctx context.Context, entityID string, eventType string) bool
}

type Channel interface {
	Publish(ctx context.Context, eventName string, data any) error
}

type Publisher interface {
	Channel(name string) Channel
}

type PushClient interface {
	SendToUser(ctx context.Context, userID string, msg PushMessage) error
}

type Notifier interface {
	Deliver(ctx context.Context, outcome Outcome) error
}

type ContactEnricher interface {
	FetchContact(ctx context.Context, location Location, contactID string) (map[string]any, error)
}

type TransportRequest struct {
	Method   string
	URL      string
	Headers  map[string]string
	Query    map[string]string
	Body     []byte
	Metadata map[string]any
	Timeout  time.Duration

	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}
