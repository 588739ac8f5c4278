package domain

import (
	"time"

	"github.com/google/uuid"
)

// Case is the unit of isolation for all engine work.
type Case struct {
	ID         uuid.UUID
	Title      string
	OwnerEmail string
	Timezone   string
	CreatedAt  time.Time
}

// Location resolves the case calendar, falling back when the stored zone is
// empty or unknown.
func (c Case) Location(fallback *time.Location) *time.Location {
	if c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// ServiceFacts are the user-confirmed facts about formal notification.
// Either date may be absent.
type ServiceFacts struct {
	ServedAt      *LocalDate
	ReturnFiledAt *LocalDate
}
