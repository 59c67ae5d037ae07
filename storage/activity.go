package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"taskboard-api/domain"
)

// ActivityTable appends every board event to an Azure table, one partition
// per board, rows ordered by event timestamp.
type ActivityTable struct {
	table *aztables.Client
}

type activityEntity struct {
	aztables.Entity
	EventID string `json:"EventID"`
	Type    string `json:"Type"`
	TaskID  int64  `json:"TaskID"`
	Data    string `json:"Data"`
}

// NewActivityTable creates an activity log backed by the named table.
func NewActivityTable(connStr, tableName string) (*ActivityTable, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, tablesClientOptions())
	if err != nil {
		return nil, err
	}
	return &ActivityTable{table: svc.NewClient(tableName)}, nil
}

// Publish records ev as a new table row.
func (a *ActivityTable) Publish(ctx context.Context, ev domain.Event) error {
	data, err := encodeActivityEntity(ev)
	if err != nil {
		return err
	}
	if _, err := a.table.AddEntity(ctx, data, nil); err != nil {
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	return nil
}

func newActivityEntity(ev domain.Event) activityEntity {
	return activityEntity{
		Entity: aztables.Entity{
			PartitionKey: strconv.FormatInt(ev.BoardID, 10),
			// zero padded so lexical row order matches event order; the event id
			// keeps rows from different instances apart
			RowKey: fmt.Sprintf("%020d-%s", ev.Timestamp, ev.ID),
		},
		EventID: ev.ID,
		Type:    ev.Type,
		TaskID:  ev.TaskID,
		Data:    string(ev.Data),
	}
}

func encodeActivityEntity(ev domain.Event) ([]byte, error) {
	data, err := sonic.Marshal(newActivityEntity(ev))
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return data, nil
}
