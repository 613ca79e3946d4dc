// Package metrics declares the Prometheus collectors exported by the editor host.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "docsave"

const (
	NameSaves          = "saves_total"
	NameFallbackWrites = "fallback_writes_total"
	NameLoads          = "loads_total"
	NameSaveDuration   = "save_duration_seconds"
	NameAutosaveTicks  = "autosave_ticks_total"

	LabelContentID = "content_id"
	LabelOutcome   = "outcome"
	LabelResult    = "result"
	LabelSource    = "source"
)

var Saves = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      NameSaves,
		Help:      "Save attempts by outcome (saved, fallback, rejected, skipped)",
		Namespace: Namespace,
	},
	[]string{LabelContentID, LabelOutcome},
)

var FallbackWrites = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      NameFallbackWrites,
		Help:      "Local fallback writes after a failed remote save",
		Namespace: Namespace,
	},
	[]string{LabelContentID, LabelResult},
)

var Loads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      NameLoads,
		Help:      "Loads by the tier that supplied the document (local, remote, none)",
		Namespace: Namespace,
	},
	[]string{LabelContentID, LabelSource},
)

var SaveDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:      NameSaveDuration,
		Help:      "Duration of save cycles",
		Namespace: Namespace,
		Buckets:   prometheus.DefBuckets,
	},
	[]string{LabelContentID},
)

var AutosaveTicks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      NameAutosaveTicks,
		Help:      "Autosave timer ticks",
		Namespace: Namespace,
	},
	[]string{LabelContentID},
)
