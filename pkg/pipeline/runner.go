package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/chronica-ai/platform/pkg/common/logger"
)

// Runner fans pipeline passes across a worker pool. Different patients run in
// parallel; the distributed lock keeps any single patient serialized. A
// patient already waiting in the queue is not enqueued twice.
type Runner struct {
	service *Service
	lock    *PatientLock
	queue   chan string

	mu     sync.Mutex
	queued map[string]bool

	workers int
	wg      sync.WaitGroup
}

func NewRunner(service *Service, lock *PatientLock, workers, queueDepth int) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < workers {
		queueDepth = workers * 16
	}
	return &Runner{
		service: service,
		lock:    lock,
		queue:   make(chan string, queueDepth),
		queued:  make(map[string]bool),
		workers: workers,
	}
}

// Start launches the workers. They drain until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Wait blocks until all workers have exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Enqueue schedules a pipeline pass. Returns false when the patient is
// already queued or the queue is full.
func (r *Runner) Enqueue(patientID string) bool {
	r.mu.Lock()
	if r.queued[patientID] {
		r.mu.Unlock()
		return false
	}
	r.queued[patientID] = true
	r.mu.Unlock()

	select {
	case r.queue <- patientID:
		return true
	default:
		r.mu.Lock()
		delete(r.queued, patientID)
		r.mu.Unlock()
		return false
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case patientID := <-r.queue:
			r.mu.Lock()
			delete(r.queued, patientID)
			r.mu.Unlock()
			r.process(ctx, patientID)
		}
	}
}

func (r *Runner) process(ctx context.Context, patientID string) {
	log := logger.Log.WithField("patient_id", patientID)

	release, ok, err := r.lock.Acquire(ctx, patientID)
	if err != nil {
		log.WithError(err).Error("failed to acquire patient lock")
		return
	}
	if !ok {
		// Another instance is mid-pass; requeue after a short delay so this
		// run's trigger is not lost.
		log.Debug("patient locked elsewhere, requeueing")
		go func() {
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
				r.Enqueue(patientID)
			}
		}()
		return
	}
	defer release()

	if _, err := r.service.ProcessPatient(ctx, patientID); err != nil {
		log.WithError(err).Error("pipeline pass failed")
	}
}
