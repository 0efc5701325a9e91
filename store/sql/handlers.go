package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// stringIDHandlers builds model handlers for records keyed by a string uuid
// column named id.
func stringIDHandlers[T any](
	newRecord func() T,
	getID func(T) string,
	setID func(T, string),
) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return parseUUID(getID(record))
		},
		SetID: func(record T, id uuid.UUID) {
			setID(record, id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			return strings.TrimSpace(getID(record))
		},
	}
}

func workItemHandlers() repository.ModelHandlers[*workItemRecord] {
	return stringIDHandlers(
		func() *workItemRecord { return &workItemRecord{} },
		func(record *workItemRecord) string {
			if record == nil {
				return ""
			}
			return record.ID
		},
		func(record *workItemRecord, id string) {
			if record != nil {
				record.ID = id
			}
		},
	)
}

func webhookMetricHandlers() repository.ModelHandlers[*webhookMetricRecord] {
	return stringIDHandlers(
		func() *webhookMetricRecord { return &webhookMetricRecord{} },
		func(record *webhookMetricRecord) string {
			if record == nil {
				return ""
			}
			return record.ID
		},
		func(record *webhookMetricRecord, id string) {
			if record != nil {
				record.ID = id
			}
		},
	)
}

func locationHandlers() repository.ModelHandlers[*locationRecord] {
	return stringIDHandlers(
		func() *locationRecord { return &locationRecord{} },
		func(record *locationRecord) string {
			if record == nil {
				return ""
			}
			return record.ID
		},
		func(record *locationRecord, id string) {
			if record != nil {
				record.ID = id
			}
		},
	)
}

func unhandledEventHandlers() repository.ModelHandlers[*unhandledEventRecord] {
	return stringIDHandlers(
		func() *unhandledEventRecord { return &unhandledEventRecord{} },
		func(record *unhandledEventRecord) string {
			if record == nil {
				return ""
			}
			return record.ID
		},
		func(record *unhandledEventRecord, id string) {
			if record != nil {
				record.ID = id
			}
		},
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
