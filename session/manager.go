package session

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/policy"
)

var (
	// ErrAlreadyRunning is returned when starting a key that has a live session.
	ErrAlreadyRunning = errors.New("session already running")
	// ErrNotRunning is returned when stopping a key without a live session.
	ErrNotRunning = errors.New("session not running")
)

// Factory builds the session for a key. It acquires the session's detector.
type Factory func(ctx context.Context, key policy.Key) (*Session, error)

// Lister returns the keys of enabled assignments.
type Lister interface {
	EnabledKeys(ctx context.Context) ([]policy.Key, error)
}

type handle struct {
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Manager runs at most one session per (camera, algorithm) key.
type Manager struct {
	factory Factory

	mu      sync.Mutex
	running map[policy.Key]*handle
	// starting holds keys whose factory is still building.
	starting map[policy.Key]struct{}
	wg       sync.WaitGroup
}

// NewManager creates a manager that builds sessions with factory.
func NewManager(factory Factory) *Manager {
	return &Manager{
		factory:  factory,
		running:  make(map[policy.Key]*handle),
		starting: make(map[policy.Key]struct{}),
	}
}

// Start builds and launches the session for key. The session lives until it
// ends on its own, Stop is called, or ctx is cancelled.
func (m *Manager) Start(ctx context.Context, key policy.Key) error {
	m.mu.Lock()
	_, running := m.running[key]
	_, starting := m.starting[key]
	if running || starting {
		m.mu.Unlock()
		return errors.Wrapf(ErrAlreadyRunning, "%s", key)
	}
	m.starting[key] = struct{}{}
	m.mu.Unlock()

	// Loading a model can take seconds; the lock is not held meanwhile.
	sess, err := m.factory(ctx, key)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.starting, key)
	if err != nil {
		return errors.Wrapf(err, "build session %s", key)
	}

	sctx, cancel := context.WithCancel(ctx)
	h := &handle{session: sess, cancel: cancel, done: make(chan struct{})}
	m.running[key] = h
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(h.done)
		defer cancel()

		h.err = sess.Run(sctx)

		m.mu.Lock()
		if m.running[key] == h {
			delete(m.running, key)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Stop cancels the session for key and waits for it to exit.
//
// Returns:
//   - error: ErrNotRunning for unknown keys, otherwise the session's own
//     terminal error.
func (m *Manager) Stop(key policy.Key) error {
	m.mu.Lock()
	h, ok := m.running[key]
	m.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrNotRunning, "%s", key)
	}
	h.cancel()
	<-h.done
	return h.err
}

// StopAll cancels every session and waits for them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for _, h := range m.running {
		h.cancel()
	}
	m.mu.Unlock()
	m.Wait()
}

// Wait blocks until every started session has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Running reports whether key has a live session.
func (m *Manager) Running(key policy.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[key]
	return ok
}

// Session returns the live session for key.
func (m *Manager) Session(key policy.Key) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.running[key]
	if !ok {
		return nil, false
	}
	return h.session, true
}

// Keys returns the keys of live sessions, ordered by camera then algorithm.
func (m *Manager) Keys() []policy.Key {
	m.mu.Lock()
	keys := make([]policy.Key, 0, len(m.running))
	for k := range m.running {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CameraID != keys[j].CameraID {
			return keys[i].CameraID < keys[j].CameraID
		}
		return keys[i].AlgorithmID < keys[j].AlgorithmID
	})
	return keys
}

// Reconcile starts a session for every enabled key that is not running. A
// session that stopped because its policy was disabled is restarted here once
// the policy is enabled again; a lone Session never resumes by itself.
//
// Returns:
//   - int: The number of sessions started.
//   - error: The listing error. Per-key start failures are logged and skipped.
func (m *Manager) Reconcile(ctx context.Context, lister Lister) (int, error) {
	keys, err := lister.EnabledKeys(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list enabled assignments")
	}
	started := 0
	for _, key := range keys {
		if m.Running(key) {
			continue
		}
		if err := m.Start(ctx, key); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				continue
			}
			klog.ErrorS(err, "Failed to start session", "camera", key.CameraID, "algorithm", key.AlgorithmID)
			continue
		}
		started++
		klog.InfoS("Session resumed", "camera", key.CameraID, "algorithm", key.AlgorithmID)
	}
	return started, nil
}
