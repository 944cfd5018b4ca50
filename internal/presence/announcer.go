// Package presence announces this runtime on the bus so edge devices can
// discover a synthesis node, and tracks peers seen via their heartbeats.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/parlatech/parla/internal/bus"
)

const (
	heartbeatInterval = 5 * time.Second
	heartbeatTimeout  = 15 * time.Second
)

type announceMessage struct {
	NodeID    string    `json:"node_id"`
	Role      string    `json:"role"`
	Voices    int       `json:"voices"`
	Workers   int       `json:"workers"`
	Timestamp time.Time `json:"timestamp"`
}

type heartbeatMessage struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NodeInfo is a peer runtime observed on the bus.
type NodeInfo struct {
	ID       string
	Role     string
	LastSeen time.Time
	Healthy  bool
}

// Announcer publishes this node's presence and keeps a view of peers.
type Announcer struct {
	nodeID  string
	voices  int
	workers int
	log     *slog.Logger
	bus     *bus.Client

	mu     sync.RWMutex
	nodes  map[string]*NodeInfo
	ticker *time.Ticker
	cancel context.CancelFunc
	subs   []*nats.Subscription
}

func NewAnnouncer(ctx context.Context, nodeID string, voices, workers int, busClient *bus.Client, log *slog.Logger) (*Announcer, error) {
	ctx, cancel := context.WithCancel(ctx)
	a := &Announcer{
		nodeID:  nodeID,
		voices:  voices,
		workers: workers,
		log:     log.With(slog.String("component", "presence")),
		bus:     busClient,
		nodes:   make(map[string]*NodeInfo),
		cancel:  cancel,
	}

	if err := a.initMetrics(); err != nil {
		a.log.Warn("failed to initialize presence metrics", slog.String("error", err.Error()))
	}

	if err := a.subscribe(); err != nil {
		a.cancel()
		return nil, err
	}

	a.ticker = time.NewTicker(heartbeatInterval)
	go a.runHeartbeat(ctx)
	go a.monitorHealth(ctx)

	if err := a.announce(); err != nil {
		a.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	return a, nil
}

func (a *Announcer) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.ticker != nil {
		a.ticker.Stop()
	}
	for _, sub := range a.subs {
		_ = sub.Drain()
	}
}

func (a *Announcer) subscribe() error {
	conn := a.bus.Conn()
	announceSub, err := conn.Subscribe("ctrl.node.announce", a.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	a.subs = append(a.subs, announceSub)

	heartbeatSub, err := conn.Subscribe("ctrl.node.heartbeat.*", a.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	a.subs = append(a.subs, heartbeatSub)

	return nil
}

func (a *Announcer) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.ticker.C:
			if err := a.publishHeartbeat(); err != nil {
				a.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Announcer) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.evaluateHealth()
		}
	}
}

func (a *Announcer) announce() error {
	msg := announceMessage{
		NodeID:    a.nodeID,
		Role:      "tts",
		Voices:    a.voices,
		Workers:   a.workers,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := a.bus.Conn().Publish("ctrl.node.announce", payload); err != nil {
		return err
	}
	a.updateNode(msg.NodeID, msg.Role, msg.Timestamp)
	return nil
}

func (a *Announcer) publishHeartbeat() error {
	msg := heartbeatMessage{
		NodeID:    a.nodeID,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("ctrl.node.heartbeat.%s", a.nodeID)
	return a.bus.Conn().Publish(subject, payload)
}

func (a *Announcer) handleAnnounce(msg *nats.Msg) {
	var announcement announceMessage
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		a.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = time.Now().UTC()
	}
	a.updateNode(announcement.NodeID, announcement.Role, announcement.Timestamp)
}

func (a *Announcer) handleHeartbeat(msg *nats.Msg) {
	var hb heartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		a.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	a.updateNode(hb.NodeID, "", hb.Timestamp)
}

func (a *Announcer) updateNode(nodeID, role string, timestamp time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	node, ok := a.nodes[nodeID]
	if !ok {
		node = &NodeInfo{ID: nodeID}
		a.nodes[nodeID] = node
	}
	if role != "" {
		node.Role = role
	}
	node.LastSeen = timestamp
	node.Healthy = true
}

func (a *Announcer) evaluateHealth() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for _, node := range a.nodes {
		if now.Sub(node.LastSeen) > heartbeatTimeout {
			node.Healthy = false
		}
	}
}

// Healthy reports whether this node's own presence record is current.
func (a *Announcer) Healthy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	node, ok := a.nodes[a.nodeID]
	return ok && node.Healthy
}

// Peers returns a snapshot of every node seen on the bus.
func (a *Announcer) Peers() []NodeInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var results []NodeInfo
	for _, node := range a.nodes {
		results = append(results, *node)
	}
	return results
}

func (a *Announcer) initMetrics() error {
	meter := otel.Meter("parla/presence")
	gauge, err := meter.Int64ObservableGauge("parla_presence_nodes",
		metric.WithDescription("Number of runtime nodes seen on the bus"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		a.mu.RLock()
		count := int64(len(a.nodes))
		a.mu.RUnlock()
		obs.ObserveInt64(gauge, count)
		return nil
	}, gauge)
	return err
}
