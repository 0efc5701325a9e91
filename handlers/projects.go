package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/processor"
)

const (
	EventNameProjectCreated  = "project.created"
	EventNameProjectUpdated  = "project.updated"
	EventNameProjectStage    = "project.stage_changed"
	EventNameProjectStatus   = "project.status_changed"
	EventNameProjectAssigned = "project.assigned"
	EventNameProjectDeleted  = "project.deleted"
	EventNameTaskCreated     = "task.created"
	EventNameTaskCompleted   = "task.completed"
	EventNameTaskDeleted     = "task.deleted"

	TimelineStageChanged  = "stage_changed"
	TimelineStatusChanged = "status_changed"
)

// Projects processes opportunities, mirrored as projects, and their tasks.
type Projects struct {
	deps Deps
}

func NewProjects(deps Deps) *Projects {
	return &Projects{deps: deps}
}

func (h *Projects) Register(reg *processor.Registry) error {
	if err := h.deps.validate(); err != nil {
		return err
	}
	return registerAll(reg, map[string]processor.HandlerFunc{
		core.EventOpportunityCreate:              h.opportunity,
		core.EventOpportunityUpdate:              h.opportunity,
		core.EventOpportunityMonetaryValueUpdate: h.opportunity,
		core.EventOpportunityAssignedToUpdate:    h.opportunity,
		core.EventOpportunityStageUpdate:         h.transition(TimelineStageChanged, EventNameProjectStage),
		core.EventOpportunityStatusUpdate:        h.transition(TimelineStatusChanged, EventNameProjectStatus),
		core.EventOpportunityDelete:              h.deleteOpportunity,
		core.EventTaskCreate:                     h.task(false),
		core.EventTaskComplete:                   h.task(true),
		core.EventTaskDelete:                     h.deleteTask,
	})
}

func (h *Projects) opportunity(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	opportunityID, tenantID, err := identity(event, data, "id", "opportunityId")
	if err != nil {
		return core.Outcome{}, err
	}
	stores := h.deps.stores()
	project, previous, err := h.build(ctx, stores, opportunityID, tenantID, data)
	if err != nil {
		return core.Outcome{}, err
	}
	saved, _, err := stores.Projects.UpsertProject(ctx, project)
	if err != nil {
		return core.Outcome{}, err
	}

	eventName := EventNameProjectUpdated
	if previous == nil {
		eventName = EventNameProjectCreated
	}
	summary := projectSummary(saved)
	outcome := core.Outcome{
		EntityID: saved.ID,
		Notifications: []core.Notification{
			locationNotice(tenantID, eventName, saved.ID, summary),
			projectNotice(saved.ID, eventName, summary),
		},
	}
	if saved.AssignedTo != "" && (previous == nil || previous.AssignedTo != saved.AssignedTo) {
		outcome.Pushes = append(outcome.Pushes, core.PushNotification{
			UserID:   saved.AssignedTo,
			EntityID: saved.ID,
			Event:    EventNameProjectAssigned,
			Message: core.PushMessage{
				Title: "Project assigned",
				Body:  firstNonEmpty(saved.Title, "A project was assigned to you"),
				Data:  summary,
			},
		})
	}
	return outcome, nil
}

// transition updates the project and records the stage or status change on
// its timeline atomically. Redelivered events that change nothing append
// nothing.
func (h *Projects) transition(timelineEvent string, eventName string) processor.HandlerFunc {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		data := fields(event.Data)
		opportunityID, tenantID, err := identity(event, data, "id", "opportunityId")
		if err != nil {
			return core.Outcome{}, err
		}

		var (
			saved   core.Project
			changed bool
		)
		err = h.deps.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx core.Stores) error {
			project, previous, err := h.build(ctx, tx, opportunityID, tenantID, data)
			if err != nil {
				return err
			}
			saved, _, err = tx.Projects.UpsertProject(ctx, project)
			if err != nil {
				return err
			}
			var from, to string
			switch timelineEvent {
			case TimelineStageChanged:
				to = saved.PipelineStageID
				if previous != nil {
					from = previous.PipelineStageID
				}
			default:
				to = string(saved.Status)
				if previous != nil {
					from = string(previous.Status)
				}
			}
			if previous != nil && from == to {
				return nil
			}
			changed = true
			return tx.Projects.AppendTimeline(ctx, saved.ID, timelineEntry(
				timelineEvent,
				transitionDescription(timelineEvent, from, to),
				"opportunity",
				saved.OpportunityID,
				map[string]any{"from": from, "to": to},
			))
		})
		if err != nil {
			return core.Outcome{}, err
		}

		summary := projectSummary(saved)
		notifications := []core.Notification{locationNotice(tenantID, eventName, saved.ID, summary)}
		if changed {
			notifications = append(notifications, projectNotice(saved.ID, eventName, summary))
		}
		return core.Outcome{
			EntityID:      saved.ID,
			Notifications: notifications,
			Metadata:      map[string]any{"timeline_appended": changed},
		}, nil
	}
}

func (h *Projects) deleteOpportunity(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	opportunityID, tenantID, err := identity(event, data, "id", "opportunityId")
	if err != nil {
		return core.Outcome{}, err
	}
	deleted, err := h.deps.stores().Projects.SoftDeleteProject(ctx, opportunityID, tenantID, h.deps.now())
	if err != nil || !deleted {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: opportunityID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameProjectDeleted, opportunityID, map[string]any{"opportunity_id": opportunityID}),
		},
	}, nil
}

// task upserts a task, linking it to the contact's open project when the
// task has no project yet.
func (h *Projects) task(complete bool) processor.HandlerFunc {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		data := fields(event.Data)
		externalID, tenantID, err := identity(event, data, "id", "taskId")
		if err != nil {
			return core.Outcome{}, err
		}
		stores := h.deps.stores()
		task, err := stores.Projects.FindTask(ctx, externalID, tenantID)
		if err != nil {
			if !isMissing(err) {
				return core.Outcome{}, err
			}
			task = core.Task{ExternalID: externalID, LocationID: tenantID}
		}
		if data.has("contactId") {
			task.ExtContact = data.str("contactId")
			task.ContactID, err = resolveContact(ctx, stores, task.ExtContact, tenantID)
			if err != nil {
				return core.Outcome{}, err
			}
		}
		if task.ProjectID == "" && task.ExtContact != "" {
			project, err := stores.Projects.FindOpenProjectForContact(ctx, task.ExtContact, tenantID)
			switch {
			case err == nil:
				task.ProjectID = project.ID
			case !isMissing(err):
				return core.Outcome{}, err
			}
		}
		if data.has("title") {
			task.Title = truncate(data.str("title"), 255)
		}
		if data.has("body", "description") {
			task.Body = data.str("body", "description")
		}
		if data.has("assignedTo") {
			task.AssignedTo = data.str("assignedTo")
		}
		if due := data.time("dueDate"); due != nil {
			task.DueDate = due
		}
		if data.has("completed") {
			task.Completed = data.flag("completed")
		}
		if complete {
			task.Completed = true
		}
		saved, _, err := stores.Projects.UpsertTask(ctx, task)
		if err != nil {
			return core.Outcome{}, err
		}

		eventName := EventNameTaskCreated
		if complete {
			eventName = EventNameTaskCompleted
		}
		summary := map[string]any{
			"id":          saved.ID,
			"external_id": saved.ExternalID,
			"title":       saved.Title,
			"completed":   saved.Completed,
			"project_id":  saved.ProjectID,
		}
		outcome := core.Outcome{
			EntityID:      saved.ID,
			Notifications: []core.Notification{locationNotice(tenantID, eventName, saved.ID, summary)},
		}
		if saved.ProjectID != "" {
			outcome.Notifications = append(outcome.Notifications, projectNotice(saved.ProjectID, eventName, summary))
		}
		if !complete && saved.AssignedTo != "" {
			outcome.Notifications = append(outcome.Notifications, userNotice(saved.AssignedTo, eventName, saved.ID, summary))
		}
		return outcome, nil
	}
}

func (h *Projects) deleteTask(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	externalID, tenantID, err := identity(event, data, "id", "taskId")
	if err != nil {
		return core.Outcome{}, err
	}
	deleted, err := h.deps.stores().Projects.SoftDeleteTask(ctx, externalID, tenantID, h.deps.now())
	if err != nil || !deleted {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: externalID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameTaskDeleted, externalID, map[string]any{"external_id": externalID}),
		},
	}, nil
}

// build merges the payload over the stored project and returns the stored
// copy, nil when the project is new.
func (h *Projects) build(ctx context.Context, stores core.Stores, opportunityID string, tenantID string, data fields) (core.Project, *core.Project, error) {
	var previous *core.Project
	project, err := stores.Projects.FindProjectByOpportunity(ctx, opportunityID, tenantID)
	if err != nil {
		if !isMissing(err) {
			return core.Project{}, nil, err
		}
		project = core.Project{OpportunityID: opportunityID, LocationID: tenantID, Status: core.ProjectStatusOpen}
	} else {
		stored := project
		previous = &stored
	}
	// The store keeps the timeline when none is passed in.
	project.Timeline = nil

	if data.has("contactId") {
		project.ExtContact = data.str("contactId")
		project.ContactID, err = resolveContact(ctx, stores, project.ExtContact, tenantID)
		if err != nil {
			return core.Project{}, nil, err
		}
	}
	if data.has("name", "title") {
		project.Title = truncate(data.str("name", "title"), 255)
	}
	if data.has("status") {
		project.Status = projectStatus(data.str("status"))
	}
	if data.has("pipelineId") {
		project.PipelineID = data.str("pipelineId")
	}
	if data.has("pipelineStageId", "stageId") {
		project.PipelineStageID = data.str("pipelineStageId", "stageId")
	}
	if data.has("monetaryValue") {
		project.MonetaryValue = data.num("monetaryValue")
	}
	if data.has("assignedTo") {
		project.AssignedTo = data.str("assignedTo")
	}
	return project, previous, nil
}

func projectStatus(raw string) core.ProjectStatus {
	switch status := core.ProjectStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case core.ProjectStatusWon, core.ProjectStatusLost, core.ProjectStatusAbandoned:
		return status
	default:
		return core.ProjectStatusOpen
	}
}

func transitionDescription(timelineEvent string, from string, to string) string {
	subject := "Status"
	if timelineEvent == TimelineStageChanged {
		subject = "Stage"
	}
	if from == "" {
		return fmt.Sprintf("%s set to %s", subject, to)
	}
	return fmt.Sprintf("%s changed from %s to %s", subject, from, to)
}

func projectSummary(project core.Project) map[string]any {
	return map[string]any{
		"id":                project.ID,
		"opportunity_id":    project.OpportunityID,
		"title":             project.Title,
		"status":            string(project.Status),
		"pipeline_stage_id": project.PipelineStageID,
		"monetary_value":    project.MonetaryValue,
		"assigned_to":       project.AssignedTo,
	}
}
