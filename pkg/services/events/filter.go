package events

import "github.com/meridian-data/catalog-engine/pkg/models"

// Matches reports whether a subscription's filters select the event. No
// filters means everything; within one filter, an empty kind list or the "*"
// wildcard matches every entity kind for that event type.
func Matches(filters []models.EventFilter, event models.ChangeEvent) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.EventType != "" && f.EventType != event.EventType {
			continue
		}
		if matchesKind(f.Kinds, event.EntityKind) {
			return true
		}
	}
	return false
}

func matchesKind(kinds []string, kind models.EntityKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == "*" || k == string(kind) {
			return true
		}
	}
	return false
}
