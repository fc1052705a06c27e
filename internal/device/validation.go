package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength        = 100
	maxAddressLength     = 253 // DNS hostname limit
	maxDeviceTypeLength  = 50
	maxDescriptionLength = 500

	// maxPollInterval caps the interval at one day; anything longer is
	// almost certainly a unit mistake in the request.
	maxPollInterval = 86400

	minPort = 1
	maxPort = 65535
)

// validStatuses is a pre-computed set for O(1) lookups.
var validStatuses map[Status]struct{}

func init() {
	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// ValidateDevice performs comprehensive validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if err := ValidateAddress(d.Address); err != nil {
		return err
	}

	if d.Port < minPort || d.Port > maxPort {
		return fmt.Errorf("%w: port must be between %d and %d", ErrInvalidAddress, minPort, maxPort)
	}

	if d.PollInterval < 1 || d.PollInterval > maxPollInterval {
		return fmt.Errorf("%w: must be between 1 and %d seconds", ErrInvalidPollInterval, maxPollInterval)
	}

	if len(d.DeviceType) > maxDeviceTypeLength {
		return fmt.Errorf("%w: device_type exceeds %d characters", ErrInvalidDevice, maxDeviceTypeLength)
	}

	if d.Status != "" {
		if err := ValidateStatus(d.Status); err != nil {
			return err
		}
	}

	if d.Description != nil && len(*d.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidDevice, maxDescriptionLength)
	}

	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateAddress checks that an address is a plausible bare host or IP.
// Scheme and path belong to the node client, not the stored address.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: address cannot be empty", ErrInvalidAddress)
	}
	if len(addr) > maxAddressLength {
		return fmt.Errorf("%w: address exceeds %d characters", ErrInvalidAddress, maxAddressLength)
	}
	if strings.ContainsAny(addr, " \t") {
		return fmt.Errorf("%w: address must not contain whitespace", ErrInvalidAddress)
	}
	if strings.Contains(addr, "://") {
		return fmt.Errorf("%w: address must be a bare host, not a URL", ErrInvalidAddress)
	}
	if strings.Contains(addr, "/") {
		return fmt.Errorf("%w: address must not contain a path", ErrInvalidAddress)
	}
	return nil
}

// ValidateStatus checks if a status is valid.
// Uses O(1) map lookup for efficiency.
func ValidateStatus(status Status) error {
	if _, ok := validStatuses[status]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
