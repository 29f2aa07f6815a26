package actions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/scheduler"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mutex    sync.Mutex
	thoughts []thoughts.Thought
}

func (r *recordingEmitter) Emit(source, eventType string, priority int, payload map[string]interface{}) thoughts.Thought {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	thought := thoughts.Thought{Source: source, EventType: eventType, Priority: priority, Payload: payload}
	r.thoughts = append(r.thoughts, thought)
	return thought
}

func (r *recordingEmitter) events() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	events := make([]string, 0, len(r.thoughts))
	for _, thought := range r.thoughts {
		events = append(events, thought.EventType)
	}
	return events
}

type MockSignaler struct {
	mock.Mock
}

func (m *MockSignaler) Signal(ctx context.Context, signal Signal) error {
	args := m.Called(ctx, signal)
	return args.Error(0)
}

type executorFixture struct {
	registry *fleet.Registry
	emitter  *recordingEmitter
	signaler *MockSignaler
	clock    *scheduler.FakeClock
	executor *Executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	clock := scheduler.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	registry := fleet.NewRegistry(fleet.RegistryOptions{Now: clock.Now}, logging.Nop())
	_, err := registry.Register(fleet.Registration{Name: "svc-a", Port: 3001})
	require.NoError(t, err)

	emitter := &recordingEmitter{}
	signaler := &MockSignaler{}
	executor := NewExecutor(registry, emitter, ExecutorOptions{
		Signaler:    signaler,
		Clock:       clock,
		SettleDelay: 3 * time.Second,
	}, logging.Nop())

	return &executorFixture{registry: registry, emitter: emitter, signaler: signaler, clock: clock, executor: executor}
}

func TestParseAction(t *testing.T) {
	for _, name := range []string{"restart", "scale_up", "scale_down", "stop"} {
		action, err := ParseAction(name)
		require.NoError(t, err)
		assert.Equal(t, Action(name), action)
	}

	_, err := ParseAction("reboot")
	assert.True(t, errors.IsUnknownActionError(err))
}

func TestExecutor_RestartSettlesToHealthy(t *testing.T) {
	f := newExecutorFixture(t)

	result, err := f.executor.Execute(context.Background(), "svc-a", "restart", "unhealthy, attempting restart")
	require.NoError(t, err)
	assert.Equal(t, Result{Action: ActionRestart, Status: ResultStatusInitiated}, result)

	service, _ := f.registry.Get("svc-a")
	assert.Equal(t, fleet.StatusRestarting, service.Status)
	assert.Equal(t, 1, service.RestartCount)

	f.clock.Advance(2 * time.Second)
	service, _ = f.registry.Get("svc-a")
	assert.Equal(t, fleet.StatusRestarting, service.Status)

	f.clock.Advance(time.Second)
	service, _ = f.registry.Get("svc-a")
	assert.Equal(t, fleet.StatusHealthy, service.Status)
	assert.Equal(t, 1, service.RestartCount)

	assert.Equal(t, []string{thoughts.EventActionExecuted}, f.emitter.events())
}

func TestExecutor_RestartCountOnlyIncrementsOnRestart(t *testing.T) {
	f := newExecutorFixture(t)
	f.signaler.On("Signal", mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	for _, action := range []string{"scale_up", "scale_down", "restart", "scale_up", "restart"} {
		_, err := f.executor.Execute(ctx, "svc-a", action, "test")
		require.NoError(t, err)
		f.clock.Advance(3 * time.Second)
	}
	_, err := f.executor.Execute(ctx, "svc-a", "stop", "test")
	require.NoError(t, err)

	service, _ := f.registry.Get("svc-a")
	assert.Equal(t, 2, service.RestartCount)
	assert.Equal(t, fleet.StatusStopped, service.Status)
}

func TestExecutor_ScaleSendsSignal(t *testing.T) {
	f := newExecutorFixture(t)
	f.signaler.On("Signal", mock.Anything, mock.MatchedBy(func(signal Signal) bool {
		return signal.Service == "svc-a" && signal.Action == ActionScaleUp && signal.Instances == "+1"
	})).Return(nil).Once()

	result, err := f.executor.Execute(context.Background(), "svc-a", "scale_up", "response time high")
	require.NoError(t, err)
	assert.Equal(t, Result{Action: ActionScaleUp, Status: ResultStatusScaling, Instances: "+1"}, result)

	service, _ := f.registry.Get("svc-a")
	assert.Equal(t, fleet.StatusUnknown, service.Status)
	f.signaler.AssertExpectations(t)
}

func TestExecutor_ScaleSignalFailureEmitsActionFailed(t *testing.T) {
	f := newExecutorFixture(t)
	f.signaler.On("Signal", mock.Anything, mock.Anything).Return(assert.AnError)

	_, err := f.executor.Execute(context.Background(), "svc-a", "scale_down", "escalate")
	require.Error(t, err)
	assert.True(t, errors.IsActionExecutionError(err))
	assert.False(t, errors.IsUnknownActionError(err))
	assert.Equal(t, []string{thoughts.EventActionFailed}, f.emitter.events())
}

func TestExecutor_StopIsTerminalUntilReRegistration(t *testing.T) {
	f := newExecutorFixture(t)
	f.signaler.On("Signal", mock.Anything, mock.Anything).Return(assert.AnError)

	result, err := f.executor.Execute(context.Background(), "svc-a", "stop", "operator")
	require.NoError(t, err, "a failed stop signal does not fail the stop")
	assert.Equal(t, ResultStatusStopped, result.Status)

	service, _ := f.registry.Get("svc-a")
	assert.Equal(t, fleet.StatusStopped, service.Status)

	service, err = f.registry.Register(fleet.Registration{Name: "svc-a", Port: 3001})
	require.NoError(t, err)
	assert.Equal(t, fleet.StatusUnknown, service.Status)
}

func TestExecutor_StopDuringRestartSettleWins(t *testing.T) {
	f := newExecutorFixture(t)
	f.signaler.On("Signal", mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, "svc-a", "restart", "test")
	require.NoError(t, err)
	_, err = f.executor.Execute(ctx, "svc-a", "stop", "test")
	require.NoError(t, err)

	f.clock.Advance(3 * time.Second)
	service, _ := f.registry.Get("svc-a")
	assert.Equal(t, fleet.StatusStopped, service.Status)
}

func TestExecutor_Failures(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, "missing", "restart", "")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = f.executor.Execute(ctx, "missing", "reboot", "")
	assert.True(t, errors.IsNotFoundError(err), "unknown service is reported before unknown action")

	_, err = f.executor.Execute(ctx, "svc-a", "reboot", "")
	assert.True(t, errors.IsUnknownActionError(err))

	assert.Equal(t, []string{
		thoughts.EventActionFailed,
		thoughts.EventActionFailed,
		thoughts.EventActionFailed,
	}, f.emitter.events())
	for _, thought := range f.emitter.thoughts {
		assert.Equal(t, thoughts.SourceOrchestrator, thought.Source)
		assert.Equal(t, thoughts.PriorityActionFailed, thought.Priority)
	}
}
