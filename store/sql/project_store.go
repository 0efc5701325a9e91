package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProjectStore persists opportunity-backed projects and their tasks.
type ProjectStore struct {
	db bun.IDB
	clock
}

func NewProjectStore(db bun.IDB) (*ProjectStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &ProjectStore{db: db}, nil
}

func opportunityKey(opportunityID string, locationID string) recordKey {
	return recordKey{Column: "opportunity_id", Value: strings.TrimSpace(opportunityID), LocationID: strings.TrimSpace(locationID)}
}

// UpsertProject overwrites the project columns. The stored timeline is kept
// when the incoming project carries none; AppendTimeline is the only writer
// that grows it.
func (s *ProjectStore) UpsertProject(ctx context.Context, project core.Project) (core.Project, bool, error) {
	now := s.now()
	key := opportunityKey(project.OpportunityID, project.LocationID)
	record := newProjectRecord(project)
	record.UpdatedAt = now
	if len(project.Timeline) == 0 {
		existing, err := findByKey[projectRecord](ctx, s.db, key)
		if err != nil {
			return core.Project{}, false, err
		}
		if existing != nil {
			record.Timeline = copyTimeline(existing.Timeline)
		}
	}
	created, err := upsertByKey[projectRecord](ctx, s.db, key, record, now)
	if err != nil {
		return core.Project{}, false, err
	}
	return record.toDomain(), created, nil
}

func (s *ProjectStore) FindProjectByOpportunity(ctx context.Context, opportunityID string, locationID string) (core.Project, error) {
	key := opportunityKey(opportunityID, locationID)
	record, err := findByKey[projectRecord](ctx, s.db, key)
	if err != nil {
		return core.Project{}, err
	}
	if record == nil {
		return core.Project{}, notFound("project", key)
	}
	return record.toDomain(), nil
}

// FindOpenProjectForContact returns the most recently updated live project
// of the contact that is not won, lost or abandoned.
func (s *ProjectStore) FindOpenProjectForContact(ctx context.Context, contactExternalID string, locationID string) (core.Project, error) {
	key := recordKey{Column: "ext_contact_id", Value: strings.TrimSpace(contactExternalID), LocationID: strings.TrimSpace(locationID)}
	record := &projectRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.ext_contact_id = ?", key.Value).
		Where("?TableAlias.location_id = ?", key.LocationID).
		Where("?TableAlias.deleted = ?", false).
		Where("?TableAlias.status NOT IN (?)", bun.In([]string{
			string(core.ProjectStatusWon),
			string(core.ProjectStatusLost),
			string(core.ProjectStatusAbandoned),
		})).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Project{}, notFound("open project", key)
		}
		return core.Project{}, err
	}
	return record.toDomain(), nil
}

// AppendTimeline adds entry to the end of the project timeline. Callers that
// need the append to be atomic with other writes run it inside RunInTx.
func (s *ProjectStore) AppendTimeline(ctx context.Context, projectID string, entry core.TimelineEntry) error {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return core.NewValidationError("project_id", "is required")
	}
	record := &projectRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", projectID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: project %s", core.ErrEntityNotFound, projectID)
		}
		return err
	}

	now := s.now()
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	entry.Timestamp = entry.Timestamp.UTC()
	record.Timeline = append(copyTimeline(record.Timeline), entry)
	record.UpdatedAt = now

	_, err = s.db.NewUpdate().
		Model(record).
		Column("timeline", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

func (s *ProjectStore) SoftDeleteProject(ctx context.Context, opportunityID string, locationID string, at time.Time) (bool, error) {
	return softDeleteByKey(ctx, s.db, (*projectRecord)(nil), opportunityKey(opportunityID, locationID), at)
}

func (s *ProjectStore) UpsertTask(ctx context.Context, task core.Task) (core.Task, bool, error) {
	now := s.now()
	record := newTaskRecord(task)
	record.UpdatedAt = now
	created, err := upsertByKey[taskRecord](ctx, s.db, externalKey(task.ExternalID, task.LocationID), record, now)
	if err != nil {
		return core.Task{}, false, err
	}
	return record.toDomain(), created, nil
}

func (s *ProjectStore) FindTask(ctx context.Context, externalID string, locationID string) (core.Task, error) {
	key := externalKey(externalID, locationID)
	record, err := findByKey[taskRecord](ctx, s.db, key)
	if err != nil {
		return core.Task{}, err
	}
	if record == nil {
		return core.Task{}, notFound("task", key)
	}
	return record.toDomain(), nil
}

func (s *ProjectStore) SoftDeleteTask(ctx context.Context, externalID string, locationID string, at time.Time) (bool, error) {
	return softDeleteByKey(ctx, s.db, (*taskRecord)(nil), externalKey(externalID, locationID), at)
}

var _ core.ProjectStore = (*ProjectStore)(nil)
