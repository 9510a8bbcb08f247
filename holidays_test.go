package mensa_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/mensa"
)

func TestHolidayManagement(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	t.Run("RequiresAdmin", func(t *testing.T) {
		if _, err := rig.engine.AddHoliday(ctx, day(2026, time.March, 5), "holiday", staff); !errors.Is(err, mensa.ErrForbidden) {
			t.Errorf("add: got %v, want ErrForbidden", err)
		}
	})

	t.Run("RequiresReason", func(t *testing.T) {
		if _, err := rig.engine.AddHoliday(ctx, day(2026, time.March, 5), "", admin); !mensa.IsValidation(err) {
			t.Errorf("got %v, want validation error", err)
		}
	})

	t.Run("Lifecycle", func(t *testing.T) {
		h, err := rig.engine.AddHoliday(ctx, day(2026, time.March, 5), "municipal holiday", admin)
		if err != nil {
			t.Fatalf("add: %v", err)
		}

		if _, err := rig.engine.AddHoliday(ctx, day(2026, time.March, 5), "duplicate", admin); !errors.Is(err, mensa.ErrHolidayExists) {
			t.Errorf("duplicate day: got %v, want ErrHolidayExists", err)
		}

		listed, err := rig.engine.ListHolidays(ctx, day(2026, time.March, 1), day(2026, time.March, 31))
		if err != nil {
			t.Fatal(err)
		}
		if len(listed) != 1 || listed[0].Reason != "municipal holiday" {
			t.Errorf("listed: %+v", listed)
		}

		if err := rig.engine.RemoveHoliday(ctx, h.ID, staff); !errors.Is(err, mensa.ErrForbidden) {
			t.Errorf("staff remove: got %v, want ErrForbidden", err)
		}
		if err := rig.engine.RemoveHoliday(ctx, h.ID, admin); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if err := rig.engine.RemoveHoliday(ctx, h.ID, admin); !errors.Is(err, mensa.ErrHolidayNotFound) {
			t.Errorf("remove again: got %v, want ErrHolidayNotFound", err)
		}
	})
}
