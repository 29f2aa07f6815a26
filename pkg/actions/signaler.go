package actions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"

	"github.com/nats-io/nats.go"
)

// Signal is published for actions carried out by an external scheduler.
type Signal struct {
	Service   string    `json:"service"`
	Action    Action    `json:"action"`
	Instances string    `json:"instances,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Signaler hands scale and stop signals to whatever provisions compute.
type Signaler interface {
	Signal(ctx context.Context, signal Signal) error
}

// LogSignaler only logs signals. It is the default when no scheduler is
// configured.
type LogSignaler struct {
	logger logging.Logger
}

func NewLogSignaler(logger logging.Logger) *LogSignaler {
	return &LogSignaler{logger: logger}
}

func (s *LogSignaler) Signal(ctx context.Context, signal Signal) error {
	s.logger.Infof("Action signal, service: %s, action: %s, instances: %s, reason: %s",
		signal.Service, signal.Action, signal.Instances, signal.Reason)
	return nil
}

// NATSSignaler publishes signals as JSON on a NATS subject.
type NATSSignaler struct {
	conn    *nats.Conn
	subject string
	logger  logging.Logger
}

func NewNATSSignaler(url, subject string, logger logging.Logger) (*NATSSignaler, error) {
	conn, err := nats.Connect(url,
		nats.Name("hsu-orchestrator"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected, error: %v", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Infof("NATS reconnected, url: %s", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.NewIOError("failed to connect to NATS", err).WithContext("url", url)
	}
	logger.Infof("NATS signaler connected, url: %s, subject: %s", url, subject)
	return &NATSSignaler{conn: conn, subject: subject, logger: logger}, nil
}

func (s *NATSSignaler) Signal(ctx context.Context, signal Signal) error {
	data, err := json.Marshal(signal)
	if err != nil {
		return errors.NewInternalError("failed to encode action signal", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return errors.NewActionExecutionError("failed to publish action signal", err).
			WithContext("service", signal.Service).
			WithContext("action", string(signal.Action))
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (s *NATSSignaler) Close() {
	if err := s.conn.Drain(); err != nil {
		s.logger.Warnf("Failed to drain NATS connection, error: %v", err)
	}
}
