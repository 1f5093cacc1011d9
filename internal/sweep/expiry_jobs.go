package sweep

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	pkgerrors "github.com/ariefcatur/go-inventory-holds/internal/errors"
	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
	"github.com/ariefcatur/go-inventory-holds/internal/metrics"
)

const (
	ReservationExpiryJobName = "reservation-expiry"
	OrderExpiryJobName       = "order-expiry"
)

type reservationExpirer interface {
	StaleReservations(ctx context.Context) ([]inventory.Reservation, error)
	ExpireReservation(ctx context.Context, id string) error
}

type orderExpirer interface {
	StaleOrders(ctx context.Context) ([]inventory.Order, error)
	ExpireOrder(ctx context.Context, id string) error
}

// NewReservationExpiryJob expires IN_PROCESS reservations past their deadline.
func NewReservationExpiryJob(svc reservationExpirer, logg *logger.Logger, m *metrics.SweepMetrics) (Job, error) {
	if svc == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &expiryJob{
		name: ReservationExpiryJobName,
		logg: logg,
		m:    m,
		stale: func(ctx context.Context) ([]string, error) {
			rs, err := svc.StaleReservations(ctx)
			if err != nil {
				return nil, err
			}
			ids := make([]string, len(rs))
			for i, r := range rs {
				ids[i] = r.ID
			}
			return ids, nil
		},
		expire: svc.ExpireReservation,
	}, nil
}

// NewOrderExpiryJob expires PENDING orders past their deadline.
func NewOrderExpiryJob(svc orderExpirer, logg *logger.Logger, m *metrics.SweepMetrics) (Job, error) {
	if svc == nil {
		return nil, fmt.Errorf("order service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &expiryJob{
		name: OrderExpiryJobName,
		logg: logg,
		m:    m,
		stale: func(ctx context.Context) ([]string, error) {
			orders, err := svc.StaleOrders(ctx)
			if err != nil {
				return nil, err
			}
			ids := make([]string, len(orders))
			for i, o := range orders {
				ids[i] = o.ID
			}
			return ids, nil
		},
		expire: svc.ExpireOrder,
	}, nil
}

type expiryJob struct {
	name   string
	logg   *logger.Logger
	m      *metrics.SweepMetrics
	stale  func(ctx context.Context) ([]string, error)
	expire func(ctx context.Context, id string) error
}

func (j *expiryJob) Name() string { return j.name }

// Run expires each stale hold in its own atomic unit. Holds that moved on
// since the query (confirmed, cancelled, already expired) are skipped.
func (j *expiryJob) Run(ctx context.Context) error {
	ids, err := j.stale(ctx)
	if err != nil {
		return fmt.Errorf("query stale holds: %w", err)
	}

	var (
		errs                     []error
		expired, skipped, failed int
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := j.expire(ctx, id)
		switch {
		case err == nil:
			expired++
		case pkgerrors.IsCode(err, pkgerrors.CodeInvalidState), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			skipped++
		default:
			failed++
			j.logg.Error(j.logg.WithField(ctx, "hold_id", id), "expire hold failed", err)
			errs = append(errs, fmt.Errorf("expire %s: %w", id, err))
		}
	}

	j.m.AddItems(j.name, expired, skipped, failed)
	if expired > 0 || failed > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"expired": expired,
			"skipped": skipped,
			"failed":  failed,
		}), "stale holds processed")
	}
	return multierr.Combine(errs...)
}
