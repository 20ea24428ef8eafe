package conversation

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts controller activity.
type Metrics struct {
	sent          prometheus.Counter
	sendFailures  prometheus.Counter
	received      prometheus.Counter
	edits         *prometheus.CounterVec
	votes         *prometheus.CounterVec
	voteRollbacks prometheus.Counter
	pending       prometheus.Gauge
}

// NewMetrics registers controller metrics on reg. A nil reg leaves the
// collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "messages_sent_total",
			Help:      "Messages confirmed by the server after a local send.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "send_failures_total",
			Help:      "Sends that left a message in the failed state.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "messages_received_total",
			Help:      "Confirmed messages from other participants.",
		}),
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "edits_total",
			Help:      "Message edits by result.",
		}, []string{"result"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "poll_votes_total",
			Help:      "Poll votes by result.",
		}, []string{"result"}),
		voteRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "poll_vote_rollbacks_total",
			Help:      "Optimistic votes rolled back after a network failure.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huddle",
			Name:      "messages_pending",
			Help:      "Optimistic messages awaiting confirmation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sent, m.sendFailures, m.received, m.edits, m.votes, m.voteRollbacks, m.pending)
	}
	return m
}
