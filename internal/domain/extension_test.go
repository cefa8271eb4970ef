package domain

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestDecideExtension(t *testing.T) {
	end := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	base := Auction{
		AutoExtend:       true,
		ExtensionMinutes: 5,
		EndTime:          end,
	}

	t.Run("bid inside the window extends", func(t *testing.T) {
		a := base
		now := end.Add(-time.Minute)

		d := DecideExtension(&a, now, window)

		check.True(t, d.Extend)
		check.Equal(t, now.Add(5*time.Minute), d.NewEndTime)
		// The new deadline is strictly later than the old one.
		check.True(t, d.NewEndTime.After(end))
	})

	t.Run("bid at the window edge extends", func(t *testing.T) {
		a := base
		now := end.Add(-window)

		d := DecideExtension(&a, now, window)

		check.True(t, d.Extend)
	})

	t.Run("bid before the window does not extend", func(t *testing.T) {
		a := base
		now := end.Add(-window - time.Second)

		d := DecideExtension(&a, now, window)

		check.False(t, d.Extend)
	})

	t.Run("auto-extend off never extends", func(t *testing.T) {
		a := base
		a.AutoExtend = false
		now := end.Add(-time.Second)

		d := DecideExtension(&a, now, window)

		check.False(t, d.Extend)
	})

	t.Run("no extension once the deadline passed", func(t *testing.T) {
		a := base
		now := end

		d := DecideExtension(&a, now, window)

		check.False(t, d.Extend)
	})

	t.Run("repeated late bids keep extending", func(t *testing.T) {
		a := base
		now := end.Add(-time.Minute)
		for i := 0; i < 10; i++ {
			d := DecideExtension(&a, now, window)
			check.True(t, d.Extend)
			a.EndTime = d.NewEndTime
			now = a.EndTime.Add(-time.Minute)
		}
		check.True(t, a.EndTime.After(end.Add(30*time.Minute)))
	})
}
