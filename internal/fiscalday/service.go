// Package fiscalday implements the fiscal-day state machine: CLOSED -> OPEN
// via Open (which issues the next day number), OPEN -> CLOSED via Close.
package fiscalday

import (
	"context"
	"errors"
	"log/slog"

	dErrors "lithipos/pkg/errors"
	"lithipos/pkg/platform/sentinel"
)

// Store is the day-state surface of the device store.
type Store interface {
	OpenDay(ctx context.Context, deviceID string) (int, error)
	CloseDay(ctx context.Context, deviceID string) error
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Open transitions CLOSED -> OPEN and returns the new day number. Opening an
// already-open day is rejected, not ignored: issuing two day numbers for one
// open would corrupt the audit trail.
func (s *Service) Open(ctx context.Context, deviceID string) (int, error) {
	dayNo, err := s.store.OpenDay(ctx, deviceID)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return 0, dErrors.Newf(dErrors.CodeNotFound, "device %s not found", deviceID)
		case errors.Is(err, sentinel.ErrInvalidState):
			return 0, dErrors.Newf(dErrors.CodeConflict, "fiscal day already open for device %s", deviceID)
		default:
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "open fiscal day")
		}
	}
	s.logger.InfoContext(ctx, "fiscal day opened", "device_id", deviceID, "fiscal_day_no", dayNo)
	return dayNo, nil
}

// Close transitions OPEN -> CLOSED. Closing an already-closed day succeeds:
// closing is the safe, idempotent direction.
func (s *Service) Close(ctx context.Context, deviceID string) error {
	if err := s.store.CloseDay(ctx, deviceID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "device %s not found", deviceID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "close fiscal day")
	}
	s.logger.InfoContext(ctx, "fiscal day closed", "device_id", deviceID)
	return nil
}
