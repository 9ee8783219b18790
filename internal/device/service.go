package device

import (
	"context"
	"errors"

	dErrors "lithipos/pkg/errors"
	"lithipos/pkg/platform/sentinel"
)

// Store is the persistence surface the registry needs. Satisfied by
// storage.DeviceStore.
type Store interface {
	Create(ctx context.Context, d *Device) error
	Find(ctx context.Context, deviceID string) (*Device, error)
	AttachCertificate(ctx context.Context, deviceID, certificate string) error
}

// Service is the device registry: identity records, certificate attachment,
// and the status projection.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register creates the identity record if absent. A device ID already claimed
// under a different serial is an identity conflict, not an upsert.
func (s *Service) Register(ctx context.Context, deviceID, serialNumber string, taxpayer TaxpayerProfile) error {
	if deviceID == "" || serialNumber == "" {
		return dErrors.New(dErrors.CodeBadRequest, "device id and serial number are required")
	}
	d := &Device{
		DeviceID:     deviceID,
		SerialNumber: serialNumber,
		ChainTip:     Genesis,
		Taxpayer:     taxpayer,
	}
	if err := s.store.Create(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Newf(dErrors.CodeConflict, "device %s already registered with a different serial", deviceID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "register device")
	}
	return nil
}

// AttachCertificate stores the authority-issued certificate; the device is
// registered from this point on.
func (s *Service) AttachCertificate(ctx context.Context, deviceID, certificate string) error {
	if certificate == "" {
		return dErrors.New(dErrors.CodeBadRequest, "certificate is required")
	}
	if err := s.store.AttachCertificate(ctx, deviceID, certificate); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "device %s not found", deviceID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "attach certificate")
	}
	return nil
}

// Get returns the full device record.
func (s *Service) Get(ctx context.Context, deviceID string) (*Device, error) {
	d, err := s.store.Find(ctx, deviceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "device %s not found", deviceID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find device")
	}
	return d, nil
}

// GetStatus is the read-only projection for external callers.
func (s *Service) GetStatus(ctx context.Context, deviceID string) (Status, error) {
	d, err := s.Get(ctx, deviceID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Registered: d.Registered,
		DayOpen:    d.IsDayOpen,
		DayNumber:  d.FiscalDayNo,
	}, nil
}
