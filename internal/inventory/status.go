package inventory

import (
	pkgerrors "github.com/ariefcatur/go-inventory-holds/internal/errors"
)

type ReservationStatus string

const (
	ReservationInProcess ReservationStatus = "IN_PROCESS"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// CONFIRMED may still move to CANCELLED through the refund path.
var reservationNext = map[ReservationStatus]map[ReservationStatus]bool{
	ReservationInProcess: {ReservationConfirmed: true, ReservationCancelled: true, ReservationExpired: true},
	ReservationConfirmed: {ReservationCancelled: true},
	ReservationCancelled: {},
	ReservationExpired:   {},
}

func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	return reservationNext[s][to]
}

// Terminal reports whether nothing can follow s.
func (s ReservationStatus) Terminal() bool {
	return len(reservationNext[s]) == 0
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderExpired   OrderStatus = "EXPIRED"
)

var orderNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderCompleted: true, OrderCancelled: true, OrderExpired: true},
	OrderCompleted: {},
	OrderCancelled: {},
	OrderExpired:   {},
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return orderNext[s][to]
}

func (s OrderStatus) Terminal() bool {
	return len(orderNext[s]) == 0
}

// transition moves r to the target status or fails with INVALID_STATE.
func (r *Reservation) transition(to ReservationStatus) error {
	if !r.Status.CanTransition(to) {
		return pkgerrors.Newf(pkgerrors.CodeInvalidState, "reservation %s cannot move from %s to %s", r.ID, r.Status, to).
			WithDetails(map[string]string{"status": string(r.Status)})
	}
	r.Status = to
	return nil
}

func (o *Order) transition(to OrderStatus) error {
	if !o.Status.CanTransition(to) {
		return pkgerrors.Newf(pkgerrors.CodeInvalidState, "order %s cannot move from %s to %s", o.ID, o.Status, to).
			WithDetails(map[string]string{"status": string(o.Status)})
	}
	o.Status = to
	return nil
}
