// Package metrics contains the counters updated while patching classes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClassesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classpatch_classes_scanned_total",
		Help: "Total number of classes given to a patcher.",
	})

	ClassesPatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classpatch_classes_patched_total",
		Help: "Total number of classes changed by at least one script.",
	})

	ScriptsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classpatch_scripts_applied_total",
		Help: "Total number of script applications which changed a class.",
	}, []string{"kind"})

	ScriptErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classpatch_script_errors_total",
		Help: "Total number of script applications which failed.",
	}, []string{"kind"})

	MethodsRewritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classpatch_methods_rewritten_total",
		Help: "Total number of method bodies rewritten.",
	}, []string{"kind"})

	HooksMaterialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classpatch_hooks_materialized_total",
		Help: "Total number of hook invocations added to patched code.",
	}, []string{"strategy"})

	PatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "classpatch_patch_seconds",
		Help:    "Time spent applying a script to a class.",
		Buckets: prometheus.DefBuckets,
	})
)

// WriteToTextfile writes the current values of every registered metric in
// the text exposition format, for the node exporter's textfile collector.
func WriteToTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, prometheus.DefaultGatherer)
}
