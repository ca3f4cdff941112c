package pipeline

import (
	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/metrics"
)

// Task is one stored sample handed to the background consumers.
type Task struct {
	Entity domain.TrackedEntity
	Sample domain.PositionSample
}

// Dispatcher fans tasks out to bounded queues. A full queue drops the task
// instead of blocking the ingest caller.
type Dispatcher struct {
	GeofenceChan chan Task
	StateChan    chan Task
}

// NewDispatcher sizes the queues. A zero stateSize disables the state queue.
func NewDispatcher(geofenceSize, stateSize int) *Dispatcher {
	d := &Dispatcher{GeofenceChan: make(chan Task, geofenceSize)}
	if stateSize > 0 {
		d.StateChan = make(chan Task, stateSize)
	}
	return d
}

func (d *Dispatcher) Dispatch(t Task) {
	select {
	case d.GeofenceChan <- t:
	default:
		metrics.QueueDrops.WithLabelValues("geofence").Inc()
	}

	if d.StateChan == nil {
		return
	}
	select {
	case d.StateChan <- t:
	default:
		metrics.QueueDrops.WithLabelValues("state").Inc()
	}
}
