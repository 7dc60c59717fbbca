package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-data/catalog-engine/pkg/models"
)

func TestMatches(t *testing.T) {
	created := models.ChangeEvent{EventType: models.EventEntityCreated, EntityKind: models.KindTable}
	updated := models.ChangeEvent{EventType: models.EventEntityUpdated, EntityKind: models.KindTopic}

	tests := []struct {
		name    string
		filters []models.EventFilter
		event   models.ChangeEvent
		want    bool
	}{
		{
			name:  "no filters match everything",
			event: created,
			want:  true,
		},
		{
			name:    "event type match",
			filters: []models.EventFilter{{EventType: models.EventEntityCreated}},
			event:   created,
			want:    true,
		},
		{
			name:    "event type mismatch",
			filters: []models.EventFilter{{EventType: models.EventEntityCreated}},
			event:   updated,
			want:    false,
		},
		{
			name:    "empty event type matches any type",
			filters: []models.EventFilter{{Kinds: []string{"topic"}}},
			event:   updated,
			want:    true,
		},
		{
			name:    "kind wildcard",
			filters: []models.EventFilter{{EventType: models.EventEntityCreated, Kinds: []string{"*"}}},
			event:   created,
			want:    true,
		},
		{
			name:    "kind exact match",
			filters: []models.EventFilter{{EventType: models.EventEntityCreated, Kinds: []string{"table"}}},
			event:   created,
			want:    true,
		},
		{
			name:    "kind mismatch",
			filters: []models.EventFilter{{EventType: models.EventEntityUpdated, Kinds: []string{"table"}}},
			event:   updated,
			want:    false,
		},
		{
			name: "any filter may match",
			filters: []models.EventFilter{
				{EventType: models.EventEntityDeleted},
				{EventType: models.EventEntityUpdated, Kinds: []string{"topic"}},
			},
			event: updated,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.filters, tt.event))
		})
	}
}
