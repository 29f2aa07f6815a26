package monitoring

import (
	"strings"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
)

// ValidateTarget checks that a service can be probed at all.
func ValidateTarget(service fleet.Service) error {
	if service.Host == "" {
		return errors.NewValidationError("health check host is required", nil).WithContext("service", service.Name)
	}

	if service.Port <= 0 || service.Port > 65535 {
		return errors.NewValidationError("health check port must be between 1 and 65535", nil).WithContext("service", service.Name)
	}

	switch service.Protocol {
	case fleet.ProtocolHTTP, "":
		if !strings.HasPrefix(service.HealthEndpoint, "/") {
			return errors.NewValidationError("HTTP health endpoint must start with /", nil).WithContext("service", service.Name)
		}

	case fleet.ProtocolGRPC:
		// Any endpoint names a gRPC health service

	default:
		return errors.NewValidationError("unsupported health check protocol: "+string(service.Protocol), nil).
			WithContext("service", service.Name)
	}

	return nil
}
