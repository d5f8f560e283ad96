// device_status.go derives access-point liveness from the audit trail. There
// is no heartbeat channel: a device that produced an access record recently is
// online, one that has been silent past the configured threshold is offline.
// The derivation is a read over existing data, so it needs no extra writes
// from the devices themselves.
package services

import (
	"context"
	"time"
)

// DeviceState is the derived liveness of an access point
type DeviceState string

const (
	DeviceOnline  DeviceState = "online"
	DeviceOffline DeviceState = "offline"
)

// DeviceStatus is the liveness view of one access point. LastSeen is nil when
// the device has never produced an access record.
type DeviceStatus struct {
	DeviceID   string
	State      DeviceState
	LastSeen   *time.Time
	LastResult string // result of the most recent attempt, empty when none
}

// DeviceStatusService answers device liveness queries
type DeviceStatusService struct {
	records   AccessRecordStore
	threshold time.Duration
	now       func() time.Time
}

// NewDeviceStatusService creates a DeviceStatusService. threshold is the
// maximum silence before a device is reported offline.
func NewDeviceStatusService(records AccessRecordStore, threshold time.Duration) *DeviceStatusService {
	return &DeviceStatusService{
		records:   records,
		threshold: threshold,
		now:       time.Now,
	}
}

// Status reports the liveness of one device. A device with no records at all
// is offline with no LastSeen.
func (s *DeviceStatusService) Status(ctx context.Context, deviceID string) (*DeviceStatus, error) {
	latest, err := s.records.LatestByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	status := &DeviceStatus{
		DeviceID: deviceID,
		State:    DeviceOffline,
	}
	if latest == nil {
		return status, nil
	}

	seen := latest.CreatedAt
	status.LastSeen = &seen
	status.LastResult = string(latest.Result)

	if s.now().Sub(seen) <= s.threshold {
		status.State = DeviceOnline
	}

	return status, nil
}
