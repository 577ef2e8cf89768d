package release

import (
	"fmt"
	"strings"
)

// Profile shifts every readiness threshold up or down.
type Profile string

const (
	ProfileAggressive   Profile = "AGGRESSIVE"
	ProfileBalanced     Profile = "BALANCED"
	ProfileConservative Profile = "CONSERVATIVE"
)

// Mode restricts which trigger kinds may run an evaluation.
type Mode string

const (
	ModeHybrid      Mode = "HYBRID"
	ModeTrafficOnly Mode = "TRAFFIC_ONLY"
	ModeCronOnly    Mode = "CRON_ONLY"
)

type TriggerKind string

const (
	TriggerTraffic TriggerKind = "traffic"
	TriggerCron    TriggerKind = "cron"
)

// MaxReleases is the number of releases an exam can have.
const MaxReleases = 4

type thresholds struct {
	minSample  int
	coverage   [MaxReleases]float64
	stability  [MaxReleases]float64
	readyRatio [MaxReleases]float64
}

var profileTable = map[Profile]thresholds{
	ProfileAggressive: {
		minSample:  5,
		coverage:   [MaxReleases]float64{20, 35, 50, 65},
		stability:  [MaxReleases]float64{40, 50, 60, 70},
		readyRatio: [MaxReleases]float64{50, 60, 70, 80},
	},
	ProfileBalanced: {
		minSample:  8,
		coverage:   [MaxReleases]float64{30, 45, 60, 75},
		stability:  [MaxReleases]float64{50, 60, 70, 80},
		readyRatio: [MaxReleases]float64{60, 70, 80, 90},
	},
	ProfileConservative: {
		minSample:  12,
		coverage:   [MaxReleases]float64{40, 55, 70, 85},
		stability:  [MaxReleases]float64{60, 70, 80, 90},
		readyRatio: [MaxReleases]float64{70, 80, 90, 95},
	},
}

func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := profileTable[p]; !ok {
		return "", fmt.Errorf("unknown profile %q", s)
	}
	return p, nil
}

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeHybrid, ModeTrafficOnly, ModeCronOnly:
		return m, nil
	}
	return "", fmt.Errorf("unknown trigger mode %q", s)
}

func ParseTriggerKind(s string) (TriggerKind, error) {
	switch k := TriggerKind(strings.ToLower(strings.TrimSpace(s))); k {
	case TriggerTraffic, TriggerCron:
		return k, nil
	}
	return "", fmt.Errorf("unknown trigger %q", s)
}

// Allows reports whether the mode lets a trigger of kind k evaluate.
func (m Mode) Allows(k TriggerKind) bool {
	switch m {
	case ModeTrafficOnly:
		return k == TriggerTraffic
	case ModeCronOnly:
		return k == TriggerCron
	}
	return true
}

func (p Profile) table() thresholds {
	if t, ok := profileTable[p]; ok {
		return t
	}
	return profileTable[ProfileBalanced]
}

// index maps release numbers 1..4 onto table slots; out of range values
// use the nearest slot.
func index(release int) int {
	switch {
	case release < 1:
		return 0
	case release > MaxReleases:
		return MaxReleases - 1
	}
	return release - 1
}

func (p Profile) MinSample() int { return p.table().minSample }

func (p Profile) CoverageThreshold(release int) float64 { return p.table().coverage[index(release)] }

func (p Profile) StabilityThreshold(release int) float64 { return p.table().stability[index(release)] }

func (p Profile) ReadyRatioThreshold(release int) float64 {
	return p.table().readyRatio[index(release)]
}
