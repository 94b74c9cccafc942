// Package diag is the diagnostics facade every "a diagnostic is
// emitted" moment in the spec routes through: when a
// prometheus.Registerer is supplied, it increments a counter; it does
// no logging of its own. Nothing in
// the rest of respkit imports prometheus directly — this is the single
// seam, mirroring how the pack's packet-processing pipeline (packetd)
// keeps its metrics registration in one place rather than scattering
// MustRegister calls through business logic.
package diag

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nodis/respkit/internal/errs"
)

// shardBuckets bounds the cardinality of the "shard" label on
// shardMessages: cluster deployments can have thousands of distinct
// shard channel names, so messages are labeled by a small hashed
// bucket rather than by the raw channel name.
const shardBuckets = 16

// Diagnostics collects the counters respkit exposes. The zero value is
// usable and simply doesn't record metrics (Registerer is nil).
type Diagnostics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer

	pushesDropped      *prometheus.CounterVec
	reconnectAttempt   prometheus.Counter
	responsesDiscarded prometheus.Counter
	shardMessages      *prometheus.CounterVec
	serverErrors       *prometheus.CounterVec
}

// New creates Diagnostics. Pass nil to disable metrics entirely.
func New(reg prometheus.Registerer) *Diagnostics {
	d := &Diagnostics{registerer: reg}
	if reg == nil {
		return d
	}

	d.pushesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "respkit",
		Name:      "pushes_dropped_total",
		Help:      "Push messages dropped because their sink was missing or full.",
	}, []string{"reason"})
	d.reconnectAttempt = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "respkit",
		Name:      "reconnect_attempts_total",
		Help:      "Reconnect attempts made by the reconnect supervisor.",
	})
	d.responsesDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "respkit",
		Name:      "responses_discarded_total",
		Help:      "Responses discarded because the requester dropped or timed out.",
	})
	d.shardMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "respkit",
		Name:      "shard_messages_total",
		Help:      "Shard channel pushes delivered, bucketed by a hash of the shard channel name.",
	}, []string{"shard"})
	d.serverErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "respkit",
		Name:      "server_errors_total",
		Help:      "Server error replies received, labeled by their RESP error-kind prefix (unrecognized prefixes are bucketed as \"other\").",
	}, []string{"kind"})

	reg.MustRegister(d.pushesDropped, d.reconnectAttempt, d.responsesDiscarded, d.shardMessages, d.serverErrors)
	return d
}

// PushDropped records a dropped push message, keyed by why it was dropped.
func (d *Diagnostics) PushDropped(reason string) {
	if d == nil || d.pushesDropped == nil {
		return
	}
	d.pushesDropped.WithLabelValues(reason).Inc()
}

// ReconnectAttempt records one reconnect attempt.
func (d *Diagnostics) ReconnectAttempt() {
	if d == nil || d.reconnectAttempt == nil {
		return
	}
	d.reconnectAttempt.Inc()
}

// ResponseDiscarded records one discarded pipeline response.
func (d *Diagnostics) ResponseDiscarded() {
	if d == nil || d.responsesDiscarded == nil {
		return
	}
	d.responsesDiscarded.Inc()
}

// ShardMessageDelivered records one delivered shard channel push,
// labeled by a bucket derived from an xxhash of the shard channel name
// so the metric's cardinality stays bounded regardless of how many
// distinct shard channels a cluster deployment uses.
func (d *Diagnostics) ShardMessageDelivered(shardChannel string) {
	if d == nil || d.shardMessages == nil {
		return
	}
	bucket := xxhash.Sum64String(shardChannel) % shardBuckets
	d.shardMessages.WithLabelValues(strconv.FormatUint(bucket, 10)).Inc()
}

// ServerError records one `-ERR ...`-style reply, labeled by kind if
// kind is one of the protocol's recognized error-kind prefixes
// (errs.KnownKinds), or "other" otherwise — so an unexpected or
// server-specific error kind never creates an unbounded label set.
func (d *Diagnostics) ServerError(kind string) {
	if d == nil || d.serverErrors == nil {
		return
	}
	if !errs.KnownKinds[kind] {
		kind = "other"
	}
	d.serverErrors.WithLabelValues(kind).Inc()
}
