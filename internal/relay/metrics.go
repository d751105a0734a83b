package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classificationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chanrelay_relay_classification_total",
		Help: "Stream classification outcomes by mode",
	}, []string{"mode"})

	classificationFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chanrelay_relay_classification_fallback_total",
		Help: "Classifications that fell back to unsupported after a probe error",
	})

	collapsingSegmentsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chanrelay_relay_collapsing_segments_emitted_total",
		Help: "Segments appended to the fan-out buffer by the HLS collapsing loop",
	})

	collapsingPlaylistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chanrelay_relay_collapsing_playlist_errors_total",
		Help: "Media playlist fetch or parse failures in the collapsing loop",
	})

	collapsingSegmentErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chanrelay_relay_collapsing_segment_errors_total",
		Help: "Segment fetch failures in the collapsing loop",
	})

	collapsingLoopIterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chanrelay_relay_collapsing_loop_iterations_total",
		Help: "Polling iterations executed by the collapsing loop",
	})

	slowConsumersDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chanrelay_relay_slow_consumers_dropped_total",
		Help: "Subscribers dropped from the fan-out buffer for falling behind the retained tail",
	})
)

func incClassification(mode Classification) {
	classificationTotal.WithLabelValues(mode.String()).Inc()
}
