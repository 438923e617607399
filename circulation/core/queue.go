package core

import (
	"sort"
	"time"

	"github.com/openlibra/circulation-engine/circulation"
)

// ReservationBefore is the queue ordering: priority descending, then request
// time ascending. Both storage backends and the fulfillment logic use this
// single definition.
func ReservationBefore(a circulation.Reservation, b circulation.Reservation) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}

	return a.RequestedAt.Before(b.RequestedAt)
}

// OrderReservations sorts a queue in place by ReservationBefore.
func OrderReservations(queue []circulation.Reservation) {
	sort.SliceStable(queue, func(i, j int) bool {
		return ReservationBefore(queue[i], queue[j])
	})
}

// DropExpired filters a queue down to the reservations still eligible for
// fulfillment at the given time. A pending reservation past its expiry stays
// in the queue until the sweep marks it Expired, but it must never be
// granted a hold.
func DropExpired(queue []circulation.Reservation, now time.Time) []circulation.Reservation {
	live := make([]circulation.Reservation, 0, len(queue))

	for _, reservation := range queue {
		if reservation.ExpiresAt.Before(now) {
			continue
		}

		live = append(live, reservation)
	}

	return live
}

// QueueHead returns the first reservation of an ordered queue.
func QueueHead(queue []circulation.Reservation) (circulation.Reservation, bool) {
	if len(queue) == 0 {
		return circulation.Reservation{}, false
	}

	return queue[0], true
}
