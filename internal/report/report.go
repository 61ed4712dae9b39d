// Package report implements the per-run job report: a start/end/
// duration timer plus an ordered per-resource action log, packed in
// the fixed wire form the master and agent exchange over REPORT PDUs.
package report

import (
	"time"

	"warden/pkg/pack"
)

// Outcome is the result of one attempted action against a resource.
type Outcome string

const (
	Succeeded Outcome = "ok"
	Failed    Outcome = "fail"
	Skipped   Outcome = "skip"
	Fixed     Outcome = "fixed"
)

// Action is one (description, outcome) entry in a resource's log.
type Action struct {
	Description string
	Outcome     Outcome
}

// ResourceReport is one resource's action log for a single run.
type ResourceReport struct {
	Type    string
	Key     string
	Actions []Action
}

// HasFailure reports whether any action in this resource's log failed.
func (r ResourceReport) HasFailure() bool {
	for _, a := range r.Actions {
		if a.Outcome == Failed {
			return true
		}
	}
	return false
}

// Report is a full job run: the wall-clock window it covered and the
// per-resource logs accumulated along the way.
type Report struct {
	Start     time.Time
	End       time.Time
	Resources []ResourceReport
}

// Timer tracks a single run's start/stop wall-clock window, grounded
// on a start/stop pair rather than a single elapsed-duration call so
// a report can record wall times independently of monotonic duration.
type Timer struct {
	running bool
	start   time.Time
}

// Start begins timing.
func (t *Timer) Start() {
	t.running = true
	t.start = time.Now()
}

// Stop ends timing and returns the completed Report with Resources
// left empty for the caller to populate via AddResource.
func (t *Timer) Stop() Report {
	t.running = false
	return Report{Start: t.start, End: time.Now()}
}

// Duration is the wall-clock span between Start and End.
func (r Report) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// AddResource appends one resource's action log to the report.
func (r *Report) AddResource(rr ResourceReport) {
	r.Resources = append(r.Resources, rr)
}

// Pack renders the report in the fixed wire form: start-sec,
// start-usec, end-sec, end-usec, duration-usec (all 32-bit hex),
// then a count and the ordered per-resource reports.
func (r Report) Pack() string {
	w := pack.NewWriter("report::")
	startSec, startUsec := splitTime(r.Start)
	endSec, endUsec := splitTime(r.End)
	durUsec := uint32(r.Duration().Microseconds())
	w.Uint32(startSec).Uint32(startUsec).Uint32(endSec).Uint32(endUsec).Uint32(durUsec)
	w.Uint32(uint32(len(r.Resources)))
	for _, rr := range r.Resources {
		w.String(rr.Type).String(rr.Key).Uint32(uint32(len(rr.Actions)))
		for _, a := range rr.Actions {
			w.String(a.Description).String(string(a.Outcome))
		}
	}
	return w.Done()
}

func splitTime(t time.Time) (sec, usec uint32) {
	return uint32(t.Unix()), uint32(t.Nanosecond() / 1000)
}

// Unpack parses a report previously produced by Pack.
func Unpack(packed string) (Report, error) {
	r := pack.NewReader(packed, "report::")
	startSec := r.Uint32()
	startUsec := r.Uint32()
	endSec := r.Uint32()
	endUsec := r.Uint32()
	_ = r.Uint32() // duration-usec is derivable from start/end; kept for wire fidelity, not reused
	count := r.Uint32()

	rep := Report{
		Start: joinTime(startSec, startUsec),
		End:   joinTime(endSec, endUsec),
	}
	for i := uint32(0); i < count; i++ {
		rr := ResourceReport{Type: r.String(), Key: r.String()}
		actionCount := r.Uint32()
		for j := uint32(0); j < actionCount; j++ {
			rr.Actions = append(rr.Actions, Action{Description: r.String(), Outcome: Outcome(r.String())})
		}
		rep.Resources = append(rep.Resources, rr)
	}
	if err := r.Err(); err != nil {
		return Report{}, err
	}
	return rep, nil
}

func joinTime(sec, usec uint32) time.Time {
	return time.Unix(int64(sec), int64(usec)*1000).UTC()
}
