package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations. Status and last_seen writes from
// the poller are serialised through the registry so the cache never trails
// the database.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	// Try cache first
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		// Return a deep copy to prevent external mutation of cache
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new device not yet cached)
	dev, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cache for future lookups (store a deep copy)
	r.cacheMu.Lock()
	r.cache[dev.ID] = dev.DeepCopy()
	r.cacheMu.Unlock()

	return dev, nil
}

// ListDevices retrieves all devices.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Return from cache if populated
	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			// Deep copy to prevent external mutation of cache
			devices = append(devices, *d.DeepCopy())
		}
		return devices, nil
	}

	// Fall back to repository
	return r.repo.List(ctx)
}

// ListEnabledDevices retrieves all devices with polling enabled.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListEnabledDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Filter from cache if populated
	if len(r.cache) > 0 {
		var devices []Device
		for _, d := range r.cache {
			if d.Enabled {
				devices = append(devices, *d.DeepCopy())
			}
		}
		return devices, nil
	}

	return r.repo.ListEnabled(ctx)
}

// CreateDevice creates a new device.
// It fills defaults, validates, generates an ID if needed, and persists.
func (r *Registry) CreateDevice(ctx context.Context, dev *Device) error {
	// Generate ID if not provided
	if dev.ID == "" {
		dev.ID = GenerateID()
	}

	// Apply defaults for unset fields
	if dev.DeviceType == "" {
		dev.DeviceType = DefaultDeviceType
	}
	if dev.Port == 0 {
		dev.Port = DefaultPort
	}
	if dev.PollInterval == 0 {
		dev.PollInterval = DefaultPollInterval
	}
	if dev.Status == "" {
		dev.Status = StatusUnknown
	}

	// Validate
	if err := ValidateDevice(dev); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Create(ctx, dev); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[dev.ID] = dev.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "id", dev.ID, "name", dev.Name, "address", dev.Address)
	return nil
}

// UpdateDevice updates an existing device.
// It validates the device and persists the changes.
func (r *Registry) UpdateDevice(ctx context.Context, dev *Device) error {
	// Validate
	if err := ValidateDevice(dev); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Update(ctx, dev); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[dev.ID] = dev.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "id", dev.ID, "name", dev.Name)
	return nil
}

// DeleteDevice removes a device.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	// Update cache
	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// SetDeviceStatus updates the liveness status of a device. A non-nil
// seenAt also refreshes last_seen. Returns whether the status actually
// changed, so callers can broadcast transitions only.
func (r *Registry) SetDeviceStatus(ctx context.Context, id string, status Status, seenAt *time.Time) (bool, error) {
	if err := r.repo.UpdateStatus(ctx, id, status, seenAt); err != nil {
		return false, err
	}

	changed := false

	// Update cache using deep copy to prevent race conditions
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		changed = cached.Status != status
		// Create a deep copy with updated status (atomic replacement)
		updated := cached.DeepCopy()
		updated.Status = status
		if seenAt != nil {
			t := seenAt.UTC()
			updated.LastSeen = &t
		}
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device status updated", "id", id, "status", status, "changed", changed)
	return changed, nil
}

// SetDeviceInfo updates the firmware/mac fields learned from polls.
// Nil values leave the existing fields untouched.
func (r *Registry) SetDeviceInfo(ctx context.Context, id string, firmware, mac *string) error {
	if err := r.repo.UpdateInfo(ctx, id, firmware, mac); err != nil {
		return err
	}

	// Update cache using deep copy to prevent race conditions
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		if firmware != nil {
			updated.Firmware = firmware
		}
		if mac != nil {
			updated.MAC = mac
		}
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device info updated", "id", id)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices   int
	EnabledDevices int
	ByStatus       map[Status]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByStatus:     make(map[Status]int),
	}

	for _, d := range r.cache {
		if d.Enabled {
			stats.EnabledDevices++
		}
		stats.ByStatus[d.Status]++
	}

	return stats
}
