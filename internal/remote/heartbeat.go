// Package remote: heartbeat watcher tracking reachability of remediation nodes.
package remote

import (
	"context"
	"sync"
	"time"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
)

// HeartbeatInterval is how often each node is probed.
const HeartbeatInterval = 30 * time.Second

// HeartbeatTimeout is the max time allowed for a single probe.
const HeartbeatTimeout = 10 * time.Second

// offlineAfter is the number of consecutive misses that marks a node offline.
const offlineAfter = 3

// NodeStatus is the reachability of a node as seen by the heartbeat.
type NodeStatus string

const (
	NodeUnknown  NodeStatus = "unknown"
	NodeOnline   NodeStatus = "online"
	NodeDegraded NodeStatus = "degraded"
	NodeOffline  NodeStatus = "offline"
)

// Runner executes a command on a node. *Pool satisfies it.
type Runner interface {
	Run(ctx context.Context, node v1.NodeSpec, cmd string) (string, int, error)
}

type nodeState struct {
	status NodeStatus
	misses int
	seen   time.Time
}

// Heartbeat runs one goroutine per node and keeps the latest status in memory.
type Heartbeat struct {
	runner   Runner
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	states  map[string]*nodeState
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewHeartbeat creates a watcher; interval <= 0 selects HeartbeatInterval.
func NewHeartbeat(runner Runner, interval time.Duration, log *logger.Logger) *Heartbeat {
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	return &Heartbeat{
		runner:   runner,
		interval: interval,
		log:      log,
		states:   make(map[string]*nodeState),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Watch starts a heartbeat goroutine for node (idempotent).
func (h *Heartbeat) Watch(node v1.NodeSpec) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.cancels[node.Name]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancels[node.Name] = cancel
	h.states[node.Name] = &nodeState{status: NodeUnknown}
	h.wg.Add(1)
	go h.loop(ctx, node)
	h.log.Info("heartbeat started", "node", node.Name)
}

// Status returns the last known status of a node.
func (h *Heartbeat) Status(name string) NodeStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.states[name]; ok {
		return st.status
	}
	return NodeUnknown
}

// Reachable reports false only for nodes the heartbeat has marked offline.
func (h *Heartbeat) Reachable(name string) bool {
	return h.Status(name) != NodeOffline
}

// Stop terminates all heartbeat goroutines and waits for them.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	for name, cancel := range h.cancels {
		cancel()
		delete(h.cancels, name)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Heartbeat) loop(ctx context.Context, node v1.NodeSpec) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat(ctx, node)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx, node)
		}
	}
}

// beat probes node once and records the outcome.
func (h *Heartbeat) beat(ctx context.Context, node v1.NodeSpec) {
	probeCtx, cancel := context.WithTimeout(ctx, HeartbeatTimeout)
	_, _, err := h.runner.Run(probeCtx, node, "echo __warden_hb__")
	cancel()
	if ctx.Err() != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.states[node.Name]
	if st == nil {
		return
	}
	prev := st.status
	if err != nil {
		st.misses++
		st.status = NodeDegraded
		if st.misses >= offlineAfter {
			st.status = NodeOffline
		}
		h.log.Debug("heartbeat miss", "node", node.Name, "misses", st.misses, "err", err)
	} else {
		st.misses = 0
		st.status = NodeOnline
		st.seen = time.Now()
	}
	if prev != st.status {
		h.log.Info("node status changed", "node", node.Name, "from", prev, "to", st.status)
	}
}
