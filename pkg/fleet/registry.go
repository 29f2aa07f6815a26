package fleet

import (
	"sort"
	"sync"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
)

// Registry owns every ManagedService record. All mutation goes through Update
// so restart counters and statuses are never written concurrently.
type Registry struct {
	logger      logging.Logger
	defaultHost string
	now         func() time.Time

	mutex    sync.RWMutex
	services map[string]*Service

	// Decision locks serialize evaluate/execute per service. They are
	// separate from mutex so a slow action does not block readers.
	locksMutex sync.Mutex
	locks      map[string]*sync.Mutex
}

type RegistryOptions struct {
	DefaultHost string
	Now         func() time.Time
}

func NewRegistry(options RegistryOptions, logger logging.Logger) *Registry {
	if options.DefaultHost == "" {
		options.DefaultHost = "localhost"
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Registry{
		logger:      logger,
		defaultHost: options.DefaultHost,
		now:         options.Now,
		services:    make(map[string]*Service),
		locks:       make(map[string]*sync.Mutex),
	}
}

// Register creates a service or refreshes the address of an existing one.
// Re-registration takes a stopped service back to unknown; restart_count is
// kept.
func (r *Registry) Register(registration Registration) (Service, error) {
	if err := validateRegistration(registration); err != nil {
		return Service{}, err
	}
	if registration.Host == "" {
		registration.Host = r.defaultHost
	}
	if registration.HealthEndpoint == "" {
		registration.HealthEndpoint = "/health"
	}
	if registration.Protocol == "" {
		registration.Protocol = ProtocolHTTP
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	service, exists := r.services[registration.Name]
	if !exists {
		service = &Service{
			Name:          registration.Name,
			Status:        StatusUnknown,
			DecisionState: DecisionStateNominal,
			RegisteredAt:  r.now(),
		}
		r.services[registration.Name] = service
	}
	service.Host = registration.Host
	service.Port = registration.Port
	service.HealthEndpoint = registration.HealthEndpoint
	service.Protocol = registration.Protocol
	if service.Status == StatusStopped {
		service.Status = StatusUnknown
		service.DecisionState = DecisionStateNominal
	}

	if exists {
		r.logger.Infof("Service re-registered, name: %s, address: %s", service.Name, service.Address())
	} else {
		r.logger.Infof("Service registered, name: %s, address: %s, health endpoint: %s, protocol: %s",
			service.Name, service.Address(), service.HealthEndpoint, service.Protocol)
	}

	return service.clone(), nil
}

func validateRegistration(registration Registration) error {
	if registration.Name == "" {
		return errors.NewValidationError("service_name is required", nil)
	}
	if registration.Port <= 0 || registration.Port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil).WithContext("service", registration.Name)
	}
	switch registration.Protocol {
	case "", ProtocolHTTP, ProtocolGRPC:
	default:
		return errors.NewValidationError("unsupported protocol: "+string(registration.Protocol), nil).
			WithContext("service", registration.Name)
	}
	return nil
}

// Get returns a copy of the named service.
func (r *Registry) Get(name string) (Service, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	service, exists := r.services[name]
	if !exists {
		return Service{}, errors.NewNotFoundError("service not found", nil).WithContext("service", name)
	}
	return service.clone(), nil
}

// List returns copies of all services ordered by name.
func (r *Registry) List() []Service {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	services := make([]Service, 0, len(r.services))
	for _, service := range r.services {
		services = append(services, service.clone())
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services
}

func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.services)
}

// Update applies fn to the stored service under the registry lock and returns
// the resulting copy. An error from fn discards nothing already written by fn,
// so fn must validate before mutating.
func (r *Registry) Update(name string, fn func(service *Service) error) (Service, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	service, exists := r.services[name]
	if !exists {
		return Service{}, errors.NewNotFoundError("service not found", nil).WithContext("service", name)
	}
	if err := fn(service); err != nil {
		return service.clone(), err
	}
	return service.clone(), nil
}

// RecordHealth folds a health result into the service: status, last result
// and merged metrics. Results for stopped or restarting services only update
// the last result so a late poll cannot undo an action in progress.
func (r *Registry) RecordHealth(result HealthCheckResult, metrics Metrics) (Service, error) {
	return r.Update(result.Service, func(service *Service) error {
		stored := result
		service.LastHealthCheck = &stored
		service.Metrics = service.Metrics.Merge(metrics)
		if service.Skipped() {
			return nil
		}
		service.Status = result.Status
		return nil
	})
}

// Reset is the operator reset: restart_count back to zero and the decision
// state back to nominal.
func (r *Registry) Reset(name string) (Service, error) {
	service, err := r.Update(name, func(service *Service) error {
		service.RestartCount = 0
		service.DecisionState = DecisionStateNominal
		return nil
	})
	if err == nil {
		r.logger.Infof("Service reset by operator, name: %s", name)
	}
	return service, err
}

// Lock returns the decision lock of a registered service. Decisions and
// actions for one service run while holding it. Unknown names get no lock.
func (r *Registry) Lock(name string) (*sync.Mutex, error) {
	r.mutex.RLock()
	_, registered := r.services[name]
	r.mutex.RUnlock()
	if !registered {
		return nil, errors.NewNotFoundError("service not found", nil).WithContext("service", name)
	}

	r.locksMutex.Lock()
	defer r.locksMutex.Unlock()

	lock, exists := r.locks[name]
	if !exists {
		lock = &sync.Mutex{}
		r.locks[name] = lock
	}
	return lock, nil
}

func (r *Registry) lockCount() int {
	r.locksMutex.Lock()
	defer r.locksMutex.Unlock()
	return len(r.locks)
}

// NetworkHealth summarizes the fleet.
func (r *Registry) NetworkHealth() NetworkHealth {
	return ComputeNetworkHealth(r.List())
}
