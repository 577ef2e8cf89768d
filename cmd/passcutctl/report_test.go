package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/release"
)

func TestRenderReadiness(t *testing.T) {
	color.NoColor = true
	cut := 242.5
	res := release.Result{
		NextReleaseNumber: 1, EligibleRegionCount: 2, ReadyRegionCount: 1, ReadyRegionRatio: 50, RequiredRatio: 60,
		Reason: release.ReasonThresholdNotReached,
		Evaluations: []release.Evaluation{
			{RegionName: "Seoul", Track: exam.TrackPublic, Status: release.StatusReady, ParticipantCount: 12, SureCut: &cut},
			{RegionName: "Busan", Track: exam.TrackPublic, Status: release.StatusInsufficientSample, ParticipantCount: 4},
		},
	}
	var buf bytes.Buffer
	renderReadiness(&buf, res)
	printReason(&buf, res)
	out := buf.String()
	for _, want := range []string{"1/2 ready", "SEOUL", "242.50", "COLLECTING_INSUFFICIENT_SAMPLE", "not published: threshold-not-reached"} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
