package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrWorkItemNotFound     = errors.New("core: work item not found")
	ErrMetricNotFound       = errors.New("core: webhook metric not found")
	ErrLocationNotFound     = errors.New("core: location not found")
	ErrEntityNotFound       = errors.New("core: entity not found")
	ErrMarkerExists         = errors.New("core: live dedup marker exists")
	ErrInvalidQueueType     = errors.New("core: invalid queue type")
	ErrInvalidStatusChange  = errors.New("core: invalid work item status transition")
	ErrHandlerNotRegistered = errors.New("core: handler not registered")
	ErrLeaseLost            = errors.New("core: work item claim is no longer held")
)

type QueueType string

const (
	QueueCritical     QueueType = "critical"
	QueueContacts     QueueType = "contacts"
	QueueAppointments QueueType = "appointments"
	QueueMessages     QueueType = "messages"
	QueueFinancial    QueueType = "financial"
	QueueProjects     QueueType = "projects"
	QueueGeneral      QueueType = "general"
)

// QueueTypes lists every queue type in priority order.
func QueueTypes() []QueueType {
	return []QueueType{
		QueueCritical,
		QueueMessages,
		QueueAppointments,
		QueueFinancial,
		QueueContacts,
		QueueProjects,
		QueueGeneral,
	}
}

func ParseQueueType(raw string) (QueueType, error) {
	value := QueueType(strings.TrimSpace(strings.ToLower(raw)))
	for _, known := range QueueTypes() {
		if value == known {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidQueueType, raw)
}

type WorkItemStatus string

const (
	WorkItemPending    WorkItemStatus = "pending"
	WorkItemProcessing WorkItemStatus = "processing"
	WorkItemComplete   WorkItemStatus = "complete"
	WorkItemDead       WorkItemStatus = "dead"
)

func (s WorkItemStatus) Terminal() bool {
	return s == WorkItemComplete || s == WorkItemDead
}

type WorkItem struct {
	ID             string
	QueueType      QueueType
	Type           string
	WebhookID      string
	TenantID       string
	CompanyID      string
	Payload        map[string]any
	Priority       int
	Attempts       int
	MaxAttempts    int
	Status         WorkItemStatus
	ClaimID        string
	LeaseExpiresAt *time.Time
	NextAttemptAt  *time.Time
	LastError      string
	DeadAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LeaseActive reports whether a processing item still holds its lease at now.
func (w WorkItem) LeaseActive(now time.Time) bool {
	if w.Status != WorkItemProcessing || w.LeaseExpiresAt == nil {
		return false
	}
	return w.LeaseExpiresAt.After(now)
}

// Claimable reports whether the item can be claimed at now.
func (w WorkItem) Claimable(now time.Time) bool {
	switch w.Status {
	case WorkItemPending:
		return w.NextAttemptAt == nil || !w.NextAttemptAt.After(now)
	case WorkItemProcessing:
		return !w.LeaseActive(now)
	default:
		return false
	}
}

// EnqueueRequest is the ingestion contract handed over by the HTTP edge.
type EnqueueRequest struct {
	Type      string
	Payload   map[string]any
	WebhookID string
	TenantID  string
	CompanyID string
	Priority  int
	QueueType QueueType
}

type FailureOutcome struct {
	ID            string
	Attempts      int
	Dead          bool
	NextAttemptAt *time.Time
}

type ClaimRequest struct {
	QueueType QueueType
	Limit     int
	ClaimID   string
	Now       time.Time
	LeaseTTL  time.Duration
}

// FailUpdate applies to the item only while ClaimID still holds it. Attempts
// is the count after this failure; stores increment the stored value.
type FailUpdate struct {
	ClaimID       string
	Reason        string
	Attempts      int
	Dead          bool
	NextAttemptAt *time.Time
	Now           time.Time
}

type DeadLetterFilter struct {
	QueueType QueueType
	TenantID  string
	Limit     int
	Offset    int
}

type QueueDepth struct {
	QueueType QueueType
	Status    WorkItemStatus
	Count     int
}

type RunStats struct {
	QueueType  QueueType
	Processed  int
	Succeeded  int
	Failed     int
	Batches    int
	StartedAt  time.Time
	FinishedAt time.Time
	Runtime    time.Duration
	Throughput float64
	StopReason string
}

type Route struct {
	QueueType QueueType
	Priority  int
}

var defaultQueuePriority = map[QueueType]int{
	QueueCritical:     1,
	QueueMessages:     2,
	QueueAppointments: 3,
	QueueFinancial:    3,
	QueueContacts:     5,
	QueueProjects:     5,
	QueueGeneral:      10,
}

var eventRoutes = map[string]QueueType{
	EventInstall:        QueueCritical,
	EventUninstall:      QueueCritical,
	EventPlanChange:     QueueCritical,
	EventLocationCreate: QueueCritical,
	EventLocationUpdate: QueueCritical,

	EventContactCreate:    QueueContacts,
	EventContactUpdate:    QueueContacts,
	EventContactDelete:    QueueContacts,
	EventContactDndUpdate: QueueContacts,
	EventContactTagUpdate: QueueContacts,
	EventNoteCreate:       QueueContacts,
	EventNoteUpdate:       QueueContacts,
	EventNoteDelete:       QueueContacts,

	EventAppointmentCreate: QueueAppointments,
	EventAppointmentUpdate: QueueAppointments,
	EventAppointmentDelete: QueueAppointments,

	EventInboundMessage:           QueueMessages,
	EventOutboundMessage:          QueueMessages,
	EventConversationUnreadUpdate: QueueMessages,

	EventInvoiceCreate:        QueueFinancial,
	EventInvoiceUpdate:        QueueFinancial,
	EventInvoiceSent:          QueueFinancial,
	EventInvoicePaid:          QueueFinancial,
	EventInvoicePartiallyPaid: QueueFinancial,
	EventInvoiceVoid:          QueueFinancial,
	EventInvoiceDelete:        QueueFinancial,
	EventOrderCreate:          QueueFinancial,
	EventOrderStatusUpdate:    QueueFinancial,

	EventOpportunityCreate:              QueueProjects,
	EventOpportunityUpdate:              QueueProjects,
	EventOpportunityStageUpdate:         QueueProjects,
	EventOpportunityStatusUpdate:        QueueProjects,
	EventOpportunityMonetaryValueUpdate: QueueProjects,
	EventOpportunityAssignedToUpdate:    QueueProjects,
	EventOpportunityDelete:              QueueProjects,
	EventTaskCreate:                     QueueProjects,
	EventTaskComplete:                   QueueProjects,
	EventTaskDelete:                     QueueProjects,
}

// RouteEvent resolves the queue type and default priority for an event type.
// Unknown types land on the general queue.
func RouteEvent(eventType string) Route {
	queueType, ok := eventRoutes[strings.TrimSpace(eventType)]
	if !ok {
		queueType = QueueGeneral
	}
	return Route{QueueType: queueType, Priority: DefaultPriority(queueType)}
}

func DefaultPriority(queueType QueueType) int {
	if priority, ok := defaultQueuePriority[queueType]; ok {
		return priority
	}
	return defaultQueuePriority[QueueGeneral]
}

// EventTypesFor returns the routed event types of a queue type.
func EventTypesFor(queueType QueueType) []string {
	out := make([]string, 0)
	for eventType, routed := range eventRoutes {
		if routed == queueType {
			out = append(out, eventType)
		}
	}
	return out
}
