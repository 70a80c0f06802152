package timeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fanoutWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_fanout_writes_total",
		Help: "Follower feed writes completed during post fan-out.",
	})
	fanoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_fanout_failures_total",
		Help: "Per-follower failures during post or delete fan-out.",
	})
	faninPosts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_fanin_posts_total",
		Help: "Celebrity posts merged in at retrieve time.",
	})
)
