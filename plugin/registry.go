package plugin

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pomelo-net/webrtc-plugin/bridge"
)

// registry tracks the bridge instances loaded in this process.
type registry struct {
	mu        sync.RWMutex
	instances map[string]*bridge.Context
}

var defaultRegistry = &registry{
	instances: make(map[string]*bridge.Context),
}

// register stores an instance and returns its id.
func (r *registry) register(ctx *bridge.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.instances[id] = ctx
	return id
}

// deregister removes an instance by identity.
func (r *registry) deregister(ctx *bridge.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, instance := range r.instances {
		if instance == ctx {
			delete(r.instances, id)
			return
		}
	}
}

// get retrieves an instance by id.
func (r *registry) get(id string) (*bridge.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctx, ok := r.instances[id]
	return ctx, ok
}

// list returns all instance ids in sorted order.
func (r *registry) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Instances returns the ids of all loaded bridge instances.
func Instances() []string {
	return defaultRegistry.list()
}

// Instance retrieves a loaded bridge instance by id.
func Instance(id string) (*bridge.Context, bool) {
	return defaultRegistry.get(id)
}
