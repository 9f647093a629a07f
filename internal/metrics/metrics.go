package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meetlink_connection_state",
		Help: "Current connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
	})

	DialAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetlink_dial_attempts_total",
		Help: "Total dial attempts to the meeting backend",
	}, []string{"result"}) // "ok" | "error"

	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetlink_reconnects_total",
		Help: "Number of unexpected connection losses followed by a reconnect cycle",
	})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetlink_messages_total",
		Help: "Total wire messages",
	}, []string{"type", "direction"}) // direction: "in" | "out"

	MessagesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetlink_messages_dropped_total",
		Help: "Outbound messages dropped before reaching the wire",
	}, []string{"type", "reason"}) // reason: "disconnected" | "backpressure"

	ProtocolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetlink_protocol_errors_total",
		Help: "Inbound messages dropped as malformed or unexpected",
	}, []string{"reason"})

	PingsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetlink_pings_sent_total",
		Help: "Heartbeat pings sent",
	})

	PongsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetlink_pongs_received_total",
		Help: "Heartbeat pongs received",
	})

	RosterSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meetlink_roster_size",
		Help: "Participants currently in the roster",
	})

	PeerLinks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meetlink_peer_links",
		Help: "Peer links by signaling phase",
	}, []string{"phase"})

	ICECandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetlink_ice_candidates_total",
		Help: "Remote ICE candidates by outcome",
	}, []string{"outcome"}) // "applied" | "buffered" | "dropped"

	GlareTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetlink_glare_total",
		Help: "Simultaneous offers resolved by tie-break",
	}, []string{"outcome"}) // "kept" | "yielded"

	MediaFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetlink_media_failures_total",
		Help: "Local media acquisition failures",
	}, []string{"kind"})

	RTCPPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetlink_rtcp_packets_total",
		Help: "RTCP feedback received on outgoing tracks",
	}, []string{"type"}) // "pli" | "fir" | "nack" | "other"

	RemoteTracksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetlink_remote_tracks_total",
		Help: "Remote tracks received from peers",
	}, []string{"kind"})
)
