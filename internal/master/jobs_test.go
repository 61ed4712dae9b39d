package master

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestJobsDrainsResultsThenReportsDone(t *testing.T) {
	j := NewJobs()
	j.Start("serial-1", []string{"a.example.com", "b.example.com"})

	j.AddResult("serial-1", "a.example.com", Result{Host: "a.example.com", RC: 0, Output: "ok"})

	r, ok, pending, known := j.PopResult("serial-1")
	require.True(t, known)
	require.True(t, ok)
	require.True(t, pending, "b.example.com has not answered yet")
	if diff := cmp.Diff(Result{Host: "a.example.com", RC: 0, Output: "ok"}, r); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}

	_, ok, pending, known = j.PopResult("serial-1")
	require.True(t, known)
	require.False(t, ok, "no buffered result left")
	require.True(t, pending, "b.example.com still outstanding")

	j.AddResult("serial-1", "b.example.com", Result{Host: "b.example.com", Optout: true})
	r, ok, pending, known = j.PopResult("serial-1")
	require.True(t, known)
	require.True(t, ok)
	require.True(t, r.Optout)
	require.False(t, pending)

	_, ok, pending, known = j.PopResult("serial-1")
	require.False(t, ok)
	require.False(t, pending)
	require.True(t, known, "job stays known until the final drain observes it's done")

	_, _, _, known = j.PopResult("serial-1")
	require.False(t, known, "job is dropped once fully drained")
}

func TestJobsIgnoresResultForUnexpectedHost(t *testing.T) {
	j := NewJobs()
	j.Start("serial-2", []string{"a.example.com"})
	j.AddResult("serial-2", "stray.example.com", Result{Host: "stray.example.com"})

	_, ok, pending, known := j.PopResult("serial-2")
	require.True(t, known)
	require.False(t, ok)
	require.True(t, pending)
}

func TestJobsUnknownSerial(t *testing.T) {
	j := NewJobs()
	_, ok, pending, known := j.PopResult("missing")
	require.False(t, ok)
	require.False(t, pending)
	require.False(t, known)
}
