package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/mind-engage/mindengage-passcut/internal/release"
)

var statusColor = map[release.Status]*color.Color{
	release.StatusReady:                 color.New(color.FgGreen),
	release.StatusUnstable:              color.New(color.FgYellow),
	release.StatusLowParticipation:      color.New(color.FgYellow),
	release.StatusInsufficientSample:    color.New(color.FgRed),
	release.StatusMissingApplicantCount: color.New(color.FgRed),
}

func renderReadiness(w io.Writer, res release.Result) {
	if len(res.Evaluations) == 0 {
		return
	}
	fmt.Fprintln(w, color.CyanString("Release #%d readiness: %d/%d ready (%.2f%%, need %.2f%%)",
		res.NextReleaseNumber, res.ReadyRegionCount, res.EligibleRegionCount, res.ReadyRegionRatio, res.RequiredRatio))

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Region", "Track", "Status", "Participants", "Coverage", "Stability", "Sure", "Likely", "Possible"})
	for _, ev := range res.Evaluations {
		status := string(ev.Status)
		if c, ok := statusColor[ev.Status]; ok {
			status = c.Sprint(status)
		}
		table.Append([]string{
			ev.RegionName,
			string(ev.Track),
			status,
			strconv.Itoa(ev.ParticipantCount),
			fmt.Sprintf("%.2f/%.0f%%", ev.CoverageRate, ev.CoverageThreshold),
			fmt.Sprintf("%.0f/%.0f", ev.Stability.Score, ev.StabilityRequired),
			fmtCut(ev.SureCut),
			fmtCut(ev.LikelyCut),
			fmtCut(ev.PossibleCut),
		})
	}
	table.Render()
}

func printReason(w io.Writer, res release.Result) {
	switch res.Reason {
	case release.ReasonCreated:
		fmt.Fprintln(w, color.GreenString("published release #%d (%s)", res.NextReleaseNumber, res.ReleaseID))
	case release.ReasonDuplicated:
		fmt.Fprintln(w, color.YellowString("release #%d was already published", res.NextReleaseNumber))
	default:
		fmt.Fprintln(w, color.RedString("not published: %s", res.Reason))
	}
}

func fmtCut(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
