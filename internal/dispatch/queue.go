package dispatch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultQueueDelay is the cooldown spacing applied to queues that are
// auto-registered on first use of an unknown host.
const DefaultQueueDelay = 60 * time.Second

// Queue is a rate-limited logical channel, one per canonical upstream
// host. It is immutable after creation: re-registration under the same
// name is idempotent and never changes Delay.
type Queue struct {
	Name  string
	Delay time.Duration
}

// Registry is the named-queue table described in spec §4.4. It is safe
// for concurrent use; the same *sync.Mutex also happens to be the right
// place to hang queue creation on disk, the way partitioningRoundTripper
// creates a cache partition the first time it sees a given key.
type Registry struct {
	baseDir string

	mu      sync.Mutex
	byName  map[string]*Queue
	aliases map[string]*Queue
}

// NewRegistry creates a Registry whose queues' cache directories are
// created under baseDir.
func NewRegistry(baseDir string) *Registry {
	return &Registry{
		baseDir: baseDir,
		byName:  make(map[string]*Queue),
		aliases: make(map[string]*Queue),
	}
}

// Register creates or reuses the named queue. The first registration for
// a given name wins: delay is fixed at that point and later calls may
// only add new aliases. aliases may be nil.
func (r *Registry) Register(name string, delay time.Duration, aliases []string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(name, delay, aliases)
}

func (r *Registry) registerLocked(name string, delay time.Duration, aliases []string) *Queue {
	q, ok := r.byName[name]
	if !ok {
		q = &Queue{Name: name, Delay: delay}
		r.byName[name] = q
		r.aliases[name] = q
		if err := os.MkdirAll(filepath.Join(r.baseDir, name), 0o755); err != nil {
			logrus.WithField("queue", name).WithError(err).Warn("Failed to create queue cache directory.")
		}
	}
	for _, alias := range aliases {
		if alias == "" {
			continue
		}
		if _, taken := r.aliases[alias]; !taken {
			r.aliases[alias] = q
		}
	}
	return q
}

// Resolve returns the queue registered for host, auto-registering it
// with DefaultQueueDelay and no aliases if it has never been seen.
func (r *Registry) Resolve(host string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.aliases[host]; ok {
		return q
	}
	return r.registerLocked(host, DefaultQueueDelay, nil)
}

// Get returns the queue registered under name (canonical or alias), if any.
func (r *Registry) Get(name string) (*Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.aliases[name]
	return q, ok
}
