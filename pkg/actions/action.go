// Package actions executes corrective actions against managed services.
package actions

import (
	"github.com/core-tools/hsu-orchestrator/pkg/errors"
)

type Action string

const (
	ActionRestart   Action = "restart"
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
	ActionStop      Action = "stop"
)

// ParseAction accepts the supported action names only.
func ParseAction(name string) (Action, error) {
	switch Action(name) {
	case ActionRestart, ActionScaleUp, ActionScaleDown, ActionStop:
		return Action(name), nil
	default:
		return "", errors.NewUnknownActionError(name)
	}
}

// Result describes what an action did.
type Result struct {
	Action    Action `json:"action"`
	Status    string `json:"status"`
	Instances string `json:"instances,omitempty"`
}

// Result statuses.
const (
	ResultStatusInitiated = "initiated"
	ResultStatusScaling   = "scaling"
	ResultStatusStopped   = "stopped"
)
