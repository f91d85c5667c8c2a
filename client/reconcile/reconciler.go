package reconcile

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"transcriber/client/model"
)

// Reconciler merges authoritative registry snapshots with local optimistic
// mutations into two ordered, id-keyed collections: active and completed.
//
// Three identity sets carry reconciliation memory across repeated merges:
//   - locallyCompleted: ids optimistically moved to completed, awaiting
//     server confirmation
//   - locallyDeleted: tombstones, suppressed from every future snapshot
//   - completionGuard: ids whose one-time completion transition already fired
//
// The sets live and die with the reconciler instance; a new instance starts
// with empty memory even for jobs it has seen before.
//
// Invariant: a job id appears in at most one of {active, completed}.
type Reconciler struct {
	mu sync.Mutex

	active    []model.Job
	completed []model.Job

	locallyCompleted map[string]struct{}
	locallyDeleted   map[string]struct{}
	completionGuard  map[string]struct{}

	// cancellers tear down the push subscription for a job synchronously
	// before the job leaves the active set.
	cancellers map[string]func()

	logger *zap.Logger
}

func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{
		locallyCompleted: make(map[string]struct{}),
		locallyDeleted:   make(map[string]struct{}),
		completionGuard:  make(map[string]struct{}),
		cancellers:       make(map[string]func()),
		logger:           logger,
	}
}

// Reconcile adopts a server snapshot, preserving local optimistic state the
// server has not confirmed yet. Unknown or stale ids are silent no-ops.
func (r *Reconciler) Reconcile(serverActive, serverCompleted []model.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	serverCompletedIDs := make(map[string]struct{}, len(serverCompleted))
	for _, job := range serverCompleted {
		if r.tombstoned(job.ID) {
			continue
		}
		serverCompletedIDs[job.ID] = struct{}{}
	}

	// Active: server fields win, except a locally-known run reference is
	// preserved when the snapshot lacks it. Purely-local jobs (added ahead
	// of the snapshot) are retained at the head.
	localActive := make(map[string]model.Job, len(r.active))
	for _, job := range r.active {
		localActive[job.ID] = job
	}

	serverActiveIDs := make(map[string]struct{}, len(serverActive))
	var nextActive []model.Job
	for _, job := range r.active {
		if _, inServer := inSet(serverActive, job.ID); !inServer {
			nextActive = append(nextActive, job)
		}
	}
	for _, job := range serverActive {
		serverActiveIDs[job.ID] = struct{}{}
		if r.tombstoned(job.ID) {
			continue
		}
		if _, optimistic := r.locallyCompleted[job.ID]; optimistic {
			// Still reported active by a stale snapshot; it already
			// lives in completed.
			continue
		}
		if _, confirmed := serverCompletedIDs[job.ID]; confirmed {
			continue
		}
		merged := job
		if local, ok := localActive[job.ID]; ok {
			if merged.RunID == "" && local.RunID != "" {
				merged.RunID = local.RunID
			}
		}
		nextActive = append(nextActive, merged)
	}
	r.active = nextActive

	// Completed: a server record is authoritative when present. Records the
	// snapshot does not mention are retained: optimistic completions await
	// confirmation, and older rows paged in earlier simply fall outside the
	// snapshot's window.
	var retained []model.Job
	for _, job := range r.completed {
		if _, confirmed := serverCompletedIDs[job.ID]; !confirmed {
			retained = append(retained, job)
		}
	}

	next := retained
	for _, job := range serverCompleted {
		if r.tombstoned(job.ID) {
			continue
		}
		next = append(next, job)
		delete(r.locallyCompleted, job.ID)
	}
	r.completed = next

	// A job the server confirmed completed must not linger in active.
	r.dropActive(serverCompletedIDs)
}

// AddLocally inserts a new job at the head of active ahead of the next
// snapshot. Tombstoned ids stay dead.
func (r *Reconciler) AddLocally(job model.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tombstoned(job.ID) {
		return
	}

	for i := range r.active {
		if r.active[i].ID == job.ID {
			r.active[i] = job
			return
		}
	}
	r.active = append([]model.Job{job}, r.active...)
}

// CompleteLocally performs the one-time optimistic completion transition.
// Idempotent: a second call for the same id is a no-op.
func (r *Reconciler) CompleteLocally(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, fired := r.completionGuard[jobID]; fired {
		return
	}
	r.completionGuard[jobID] = struct{}{}

	idx := -1
	for i := range r.active {
		if r.active[i].ID == jobID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	job := r.active[idx]
	now := time.Now().UTC()
	job.Status = model.StatusCompleted
	job.Progress = 100
	job.ErrorMessage = ""
	job.CompletedAt = &now

	r.active = append(r.active[:idx], r.active[idx+1:]...)
	r.completed = append([]model.Job{job}, r.completed...)
	r.locallyCompleted[jobID] = struct{}{}
}

// DeleteLocally tombstones the id and removes it everywhere. The push
// subscription is cancelled synchronously before the job leaves active so
// no callback fires for a job that no longer exists. Cancellers run outside
// the lock and may call back into the reconciler. Idempotent.
func (r *Reconciler) DeleteLocally(jobID string) {
	r.mu.Lock()
	cancel, ok := r.cancellers[jobID]
	delete(r.cancellers, jobID)
	r.mu.Unlock()

	if ok {
		cancel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = removeByID(r.active, jobID)
	r.completed = removeByID(r.completed, jobID)
	r.locallyDeleted[jobID] = struct{}{}
	delete(r.locallyCompleted, jobID)
	delete(r.completionGuard, jobID)
}

// ApplyProgress updates a job's displayed progress, clamped non-decreasing.
// Unknown ids are ignored.
func (r *Reconciler) ApplyProgress(jobID string, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.active {
		if r.active[i].ID != jobID {
			continue
		}
		if progress > 100 {
			progress = 100
		}
		if progress > r.active[i].Progress {
			r.active[i].Progress = progress
		}
		if r.active[i].Status == model.StatusPending && progress > 0 {
			r.active[i].Status = model.StatusProcessing
		}
		return
	}
}

// ApplyFailure marks an active job failed in place. Unknown ids are ignored.
func (r *Reconciler) ApplyFailure(jobID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.active {
		if r.active[i].ID == jobID {
			r.active[i].Status = model.StatusFailed
			r.active[i].ErrorMessage = message
			return
		}
	}
}

// RegisterCanceller attaches the push-subscription teardown for a job.
// Replacing an existing canceller tears the old one down. Cancellers run
// outside the lock and may call back into the reconciler.
func (r *Reconciler) RegisterCanceller(jobID string, cancel func()) {
	r.mu.Lock()

	if r.tombstoned(jobID) {
		// The job was deleted before the subscription registered.
		r.mu.Unlock()
		cancel()
		return
	}

	old, ok := r.cancellers[jobID]
	r.cancellers[jobID] = cancel
	r.mu.Unlock()

	if ok {
		old()
	}
}

// Active returns a copy of the active collection in display order.
func (r *Reconciler) Active() []model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Job(nil), r.active...)
}

// Completed returns a copy of the completed collection in display order.
func (r *Reconciler) Completed() []model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Job(nil), r.completed...)
}

// Close cancels every registered subscription. Safe to call more than once.
func (r *Reconciler) Close() {
	r.mu.Lock()
	cancels := make([]func(), 0, len(r.cancellers))
	for id, cancel := range r.cancellers {
		cancels = append(cancels, cancel)
		delete(r.cancellers, id)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (r *Reconciler) tombstoned(id string) bool {
	_, ok := r.locallyDeleted[id]
	return ok
}

func (r *Reconciler) dropActive(ids map[string]struct{}) {
	var kept []model.Job
	for _, job := range r.active {
		if _, drop := ids[job.ID]; !drop {
			kept = append(kept, job)
		}
	}
	r.active = kept
}

func removeByID(jobs []model.Job, id string) []model.Job {
	for i := range jobs {
		if jobs[i].ID == id {
			return append(jobs[:i:i], jobs[i+1:]...)
		}
	}
	return jobs
}

func inSet(jobs []model.Job, id string) (model.Job, bool) {
	for _, j := range jobs {
		if j.ID == id {
			return j, true
		}
	}
	return model.Job{}, false
}
