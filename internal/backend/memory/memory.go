// Package memory is a small in-memory OrchestrationService used to drive
// end-to-end tests and the demo sidecar binary. It is not a production
// orchestration-service replacement: history and leases live in a
// process-local map and are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/backend"
	"github.com/cuemby/durabletask-sidecar/internal/model"
	"github.com/google/uuid"
)

// instanceState holds one instance's accumulated history and pending
// message queues.
type instanceState struct {
	instance model.Instance
	history  []model.HistoryEvent
	newQueue []model.HistoryEvent

	activityWorkItems []*model.ActivityWorkItem
	locked            bool
}

// Service is a process-local OrchestrationService.
type Service struct {
	mu sync.Mutex

	orchestratorQueue []*model.OrchestratorWorkItem
	instances         map[string]*instanceState

	maxOrchestrator int
	maxActivity     int
	fetchErrorDelay int
}

// New constructs an empty Service.
func New(maxOrchestrator, maxActivity int) *Service {
	return &Service{
		instances:       map[string]*instanceState{},
		maxOrchestrator: maxOrchestrator,
		maxActivity:     maxActivity,
		fetchErrorDelay: 5,
	}
}

// StartNewInstance seeds a brand-new instance with an ExecutionStarted
// event and enqueues its first orchestrator work item. This is the
// entrypoint a caller (a test or the demo CLI) uses to kick off work; it
// has no analogue in the dispatcher core itself.
func (s *Service) StartNewInstance(name, input string) model.InstanceID {
	s.mu.Lock()
	defer s.mu.Unlock()

	instanceID := model.InstanceID(uuid.NewString())
	executionID := model.ExecutionID(uuid.NewString())
	instance := model.Instance{InstanceID: instanceID, ExecutionID: executionID}

	started := model.HistoryEvent{
		Kind:      model.EventExecutionStarted,
		Timestamp: time.Now().UTC(),
		ExecutionStarted: &model.ExecutionStartedEvent{
			Name:  name,
			Input: input,
		},
	}

	st := &instanceState{instance: instance, history: nil, newQueue: []model.HistoryEvent{started}}
	s.instances[model.InstanceKey(instanceID)] = st
	s.enqueueOrchestratorLocked(st)
	return instanceID
}

func (s *Service) enqueueOrchestratorLocked(st *instanceState) {
	if st.locked || len(st.newQueue) == 0 {
		return
	}
	item := &model.OrchestratorWorkItem{
		Instance:   st.instance,
		PastEvents: append([]model.HistoryEvent(nil), st.history...),
		NewEvents:  st.newQueue,
	}
	st.newQueue = nil
	st.locked = true
	s.orchestratorQueue = append(s.orchestratorQueue, item)
}

// pollInterval is how often the blocking Lock* methods below recheck their
// queue. A real orchestration service would block on a condition variable
// or a backing store's native blocking-pop; this is a demo stand-in.
const pollInterval = 20 * time.Millisecond

func (s *Service) LockNextOrchestratorWorkItem(ctx context.Context) (*model.OrchestratorWorkItem, error) {
	for {
		s.mu.Lock()
		if len(s.orchestratorQueue) > 0 {
			item := s.orchestratorQueue[0]
			s.orchestratorQueue = s.orchestratorQueue[1:]
			s.mu.Unlock()
			return item, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(pollInterval):
		}
	}
}

func (s *Service) LockNextActivityWorkItem(ctx context.Context) (*model.ActivityWorkItem, error) {
	for {
		s.mu.Lock()
		for _, st := range s.instances {
			if len(st.activityWorkItems) == 0 {
				continue
			}
			item := st.activityWorkItems[0]
			st.activityWorkItems = st.activityWorkItems[1:]
			s.mu.Unlock()
			return item, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(pollInterval):
		}
	}
}

func (s *Service) RenewOrchestratorWorkItem(ctx context.Context, item *model.OrchestratorWorkItem) (*model.OrchestratorWorkItem, error) {
	return item, nil
}

func (s *Service) RenewActivityWorkItem(ctx context.Context, item *model.ActivityWorkItem) (*model.ActivityWorkItem, error) {
	return item, nil
}

func (s *Service) AbandonOrchestratorWorkItem(ctx context.Context, item *model.OrchestratorWorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.instances[model.InstanceKey(item.Instance.InstanceID)]
	if !ok {
		return nil
	}
	st.locked = false
	st.newQueue = append(item.NewEvents, st.newQueue...)
	s.enqueueOrchestratorLocked(st)
	return nil
}

func (s *Service) AbandonActivityWorkItem(ctx context.Context, item *model.ActivityWorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.instances[model.InstanceKey(item.Instance.InstanceID)]
	if !ok {
		return nil
	}
	st.activityWorkItems = append([]*model.ActivityWorkItem{item}, st.activityWorkItems...)
	return nil
}

// CompleteOrchestratorWorkItem appends the new events and, in order, turns
// each ScheduleTask outbound message into an activity work item, then
// re-enqueues the instance if it received more new events meanwhile (or a
// continue-as-new reset it). Sub-orchestration and send-event outbound
// messages and the completion's TimerMessages are not acted on; timers
// only reach the new execution as continue-as-new carryovers.
func (s *Service) CompleteOrchestratorWorkItem(ctx context.Context, item *model.OrchestratorWorkItem, completion backend.OrchestratorCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.InstanceKey(item.Instance.InstanceID)
	st, ok := s.instances[key]
	if !ok {
		return nil
	}

	st.history = append(st.history, item.NewEvents...)
	st.history = append(st.history, completion.NewEvents...)
	st.locked = false

	for _, msg := range completion.OutboundMessages {
		if msg.Kind != backend.OutboundScheduleTask {
			continue
		}
		st.activityWorkItems = append(st.activityWorkItems, &model.ActivityWorkItem{
			Instance: item.Instance,
			TaskID:   msg.TaskID,
			ScheduledEvent: model.HistoryEvent{
				Kind:          model.EventTaskScheduled,
				TaskScheduled: &model.TaskScheduledEvent{Name: msg.Name, Version: msg.Version, Input: msg.Input},
			},
		})
	}

	if completion.ContinueAsNew != nil {
		newExecutionID := model.ExecutionID(uuid.NewString())
		st.instance = model.Instance{InstanceID: item.Instance.InstanceID, ExecutionID: newExecutionID}
		st.history = nil
		started := completion.ContinueAsNew.ExecutionStarted
		events := []model.HistoryEvent{{Kind: model.EventExecutionStarted, Timestamp: time.Now().UTC(), ExecutionStarted: &started}}
		for _, ev := range completion.ContinueAsNew.CarryoverEvents {
			e := ev
			events = append(events, model.HistoryEvent{Kind: model.EventRaised, EventRaised: &e})
		}
		for _, tm := range completion.ContinueAsNew.CarryoverTimers {
			events = append(events, model.HistoryEvent{Kind: model.EventTimerCreated, TimerCreated: &model.TimerCreatedEvent{FireAt: tm.FireAt}})
		}
		st.newQueue = events
	}

	s.enqueueOrchestratorLocked(st)
	return nil
}

func (s *Service) CompleteActivityWorkItem(ctx context.Context, item *model.ActivityWorkItem, response model.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.instances[model.InstanceKey(item.Instance.InstanceID)]
	if !ok {
		return nil
	}
	st.newQueue = append(st.newQueue, response)
	s.enqueueOrchestratorLocked(st)
	return nil
}

func (s *Service) MaxConcurrentOrchestratorWorkItems() int { return s.maxOrchestrator }
func (s *Service) MaxConcurrentActivityWorkItems() int     { return s.maxActivity }

func (s *Service) DelaySecondsAfterFetchError(err error) int { return s.fetchErrorDelay }

// History returns a snapshot of an instance's committed history, for tests
// and demo inspection.
func (s *Service) History(instanceID model.InstanceID) []model.HistoryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.instances[model.InstanceKey(instanceID)]
	if !ok {
		return nil
	}
	return append([]model.HistoryEvent(nil), st.history...)
}
