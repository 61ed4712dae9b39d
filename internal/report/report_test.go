package report

import "testing"

func TestReportPackRoundTrip(t *testing.T) {
	var timer Timer
	timer.Start()
	rep := timer.Stop()
	rep.AddResource(ResourceReport{
		Type: "file", Key: "/etc/motd",
		Actions: []Action{
			{Description: "set mode 0640", Outcome: Fixed},
			{Description: "chown 0:0", Outcome: Succeeded},
		},
	})
	rep.AddResource(ResourceReport{
		Type: "package", Key: "nginx",
		Actions: []Action{
			{Description: "install nginx", Outcome: Failed},
		},
	})

	packed := rep.Pack()
	got, err := Unpack(packed)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if len(got.Resources) != 2 {
		t.Fatalf("expected 2 resource reports, got %d", len(got.Resources))
	}
	if got.Resources[0].Type != "file" || got.Resources[0].Key != "/etc/motd" {
		t.Fatalf("unexpected first resource: %+v", got.Resources[0])
	}
	if got.Resources[1].Actions[0].Outcome != Failed {
		t.Fatalf("expected failed outcome to survive pack/unpack, got %q", got.Resources[1].Actions[0].Outcome)
	}
	if !got.Resources[1].HasFailure() {
		t.Fatalf("expected failing resource to be surfaced via HasFailure")
	}
	if got.Resources[0].HasFailure() {
		t.Fatalf("did not expect the fixed/ok resource to report a failure")
	}
}

func TestReportDurationMatchesStartEnd(t *testing.T) {
	var timer Timer
	timer.Start()
	rep := timer.Stop()
	if rep.Duration() < 0 {
		t.Fatalf("duration should not be negative, got %v", rep.Duration())
	}
}
