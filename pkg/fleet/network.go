package fleet

// NetworkGrade buckets the healthy share of the fleet.
type NetworkGrade string

const (
	NetworkGradeExcellent NetworkGrade = "excellent"
	NetworkGradeGood      NetworkGrade = "good"
	NetworkGradeDegraded  NetworkGrade = "degraded"
	NetworkGradeCritical  NetworkGrade = "critical"
)

type NetworkHealth struct {
	Healthy    int          `json:"healthy_services"`
	Total      int          `json:"total_services"`
	Percentage float64      `json:"health_percentage"`
	Grade      NetworkGrade `json:"overall_status"`
}

func ComputeNetworkHealth(services []Service) NetworkHealth {
	health := NetworkHealth{Total: len(services)}
	for _, service := range services {
		if service.Status == StatusHealthy {
			health.Healthy++
		}
	}
	if health.Total > 0 {
		health.Percentage = float64(health.Healthy) / float64(health.Total) * 100
	}

	switch {
	case health.Percentage > 80:
		health.Grade = NetworkGradeExcellent
	case health.Percentage > 60:
		health.Grade = NetworkGradeGood
	case health.Percentage > 40:
		health.Grade = NetworkGradeDegraded
	default:
		health.Grade = NetworkGradeCritical
	}
	return health
}
