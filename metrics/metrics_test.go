package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(MethodsRewritten.WithLabelValues("test"))
	MethodsRewritten.WithLabelValues("test").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MethodsRewritten.WithLabelValues("test")))
}

func TestWriteToTextfile(t *testing.T) {
	ClassesScanned.Inc()

	fn := filepath.Join(t.TempDir(), "classpatch.prom")
	require.NoError(t, WriteToTextfile(fn))

	buf, err := os.ReadFile(fn)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "classpatch_classes_scanned_total")
}
