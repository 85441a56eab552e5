package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hagsock_sessions_active",
			Help: "Live client sessions.",
		},
	)

	FramesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hagsock_frames_received_total",
			Help: "Frames received from clients.",
		},
		[]string{"payload_type"},
	)

	FramesRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hagsock_frames_routed_total",
			Help: "Frame deliveries by routing target.",
		},
		[]string{"target"},
	)

	SendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hagsock_send_failures_total",
			Help: "Per-recipient send failures during fan-out.",
		},
	)

	DecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hagsock_decode_errors_total",
			Help: "Frame decode failures by reason.",
		},
		[]string{"reason"},
	)

	HandshakesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hagsock_handshakes_total",
			Help: "Accepted CONNECT handshakes.",
		},
	)

	HandshakeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hagsock_handshake_errors_total",
			Help: "Malformed CONNECT handshakes (identity left unchanged).",
		},
	)

	BytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hagsock_bytes_received_total",
			Help: "Payload bytes received from clients.",
		},
	)

	JournalRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hagsock_journal_records_total",
			Help: "Frames appended to the capture journal.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SessionsActive,
			FramesReceivedTotal,
			FramesRoutedTotal,
			SendFailuresTotal,
			DecodeErrorsTotal,
			HandshakesTotal,
			HandshakeErrorsTotal,
			BytesReceivedTotal,
			JournalRecordsTotal,
		)
	})
}
