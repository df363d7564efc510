package deploy

import (
	"sync"

	"github.com/zeebo/errs"
)

// ErrBusy is returned when a project already has an attempt running
// against the same environment.
var ErrBusy = errs.Class("DeployBusy")

type attemptKey struct {
	projectId     int64
	environmentId int64
}

// registry is the in-process advisory lock over (project, environment)
// pairs. Concurrent attempts against different environments of the same
// project are allowed, a second attempt on the same pair is rejected.
type registry struct {
	mux    sync.Mutex
	active map[attemptKey]struct{}
}

func newRegistry() *registry {
	return &registry{active: make(map[attemptKey]struct{})}
}

func (r *registry) acquire(projectId, environmentId int64) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	key := attemptKey{projectId: projectId, environmentId: environmentId}
	if _, ok := r.active[key]; ok {
		return ErrBusy.New("deployment already in progress for project %d environment %d", projectId, environmentId)
	}
	r.active[key] = struct{}{}
	return nil
}

func (r *registry) release(projectId, environmentId int64) {
	r.mux.Lock()
	defer r.mux.Unlock()
	delete(r.active, attemptKey{projectId: projectId, environmentId: environmentId})
}

func (r *registry) busy(projectId, environmentId int64) bool {
	r.mux.Lock()
	defer r.mux.Unlock()
	_, ok := r.active[attemptKey{projectId: projectId, environmentId: environmentId}]
	return ok
}
