package mensa

import (
	"context"
	"time"

	"github.com/xraph/mensa/actor"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/types"
)

// AddHoliday registers a day on which no consumption may be recorded.
// Admin only.
func (e *Engine) AddHoliday(ctx context.Context, day time.Time, reason string, act actor.Actor) (*calendar.Holiday, error) {
	if act.Role != actor.RoleAdmin {
		return nil, ErrForbidden
	}
	if reason == "" {
		return nil, ValidationError{Field: "reason", Message: "must not be empty"}
	}

	h := &calendar.Holiday{
		Entity:    types.NewEntity(),
		ID:        id.NewHolidayID(),
		Day:       calendar.Normalize(day),
		Reason:    reason,
		CreatedBy: act.ID,
	}

	if err := e.store.CreateHoliday(ctx, h); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "holiday added",
		"day", calendar.DayKey(h.Day),
		"reason", reason,
		"actor", act.ID,
	)

	return h, nil
}

// RemoveHoliday deletes a registered holiday. Admin only. Consumption
// entries recorded on other days are unaffected.
func (e *Engine) RemoveHoliday(ctx context.Context, holidayID id.HolidayID, act actor.Actor) error {
	if act.Role != actor.RoleAdmin {
		return ErrForbidden
	}

	if err := e.store.DeleteHoliday(ctx, holidayID); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "holiday removed",
		"holiday_id", holidayID.String(),
		"actor", act.ID,
	)

	return nil
}

// ListHolidays lists registered holidays inside [from, to].
func (e *Engine) ListHolidays(ctx context.Context, from, to time.Time) ([]*calendar.Holiday, error) {
	return e.store.ListHolidays(ctx, from, to)
}
