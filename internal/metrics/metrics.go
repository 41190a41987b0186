package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawhub_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clawhub_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Catalog metrics
	AgentsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawhub_agents_registered_total",
			Help: "Total agents registered in the catalog",
		},
	)

	SkillsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawhub_skills_published_total",
			Help: "Total skills published",
		},
	)

	// LiveChat metrics
	AgentsEnrolled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawhub_livechat_enrollments_total",
			Help: "Total LiveChat enrollments, including re-enrollments",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawhub_livechat_messages_posted_total",
			Help: "Total messages appended to the LiveChat log",
		},
		[]string{"channel", "type"}, // type is "message" or "system"
	)

	MessagesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawhub_livechat_messages_pruned_total",
			Help: "Total messages dropped by history retention",
		},
	)

	ResidentMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clawhub_livechat_resident_messages",
			Help: "Messages currently held in the LiveChat log",
		},
	)

	CollaborationRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawhub_livechat_collaboration_requests_total",
			Help: "Total collaboration requests detected",
		},
	)

	CollaborationSuggestions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawhub_livechat_collaboration_suggestions_total",
			Help: "Total collaboration suggestion messages posted",
		},
	)

	ProjectUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawhub_livechat_project_updates_total",
			Help: "Total skill project status updates applied",
		},
	)

	FanoutDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawhub_livechat_fanout_dropped_total",
			Help: "Events dropped for slow or closed consumers",
		},
		[]string{"transport"}, // "stream" or "socket"
	)

	OpenStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clawhub_livechat_open_streams",
			Help: "Event streams currently registered",
		},
	)

	OpenSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clawhub_livechat_open_subscriptions",
			Help: "Per-channel socket subscriptions currently registered",
		},
	)

	PresenceEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawhub_livechat_presence_evicted_total",
			Help: "Agents removed by the presence sweep",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawhub_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawhub_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clawhub_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DatabaseLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clawhub_database_latency_seconds",
			Help:    "Catalog database query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
		[]string{"driver"},
	)
)
