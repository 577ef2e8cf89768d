package release

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-passcut/internal/config"
)

// MinCheckInterval is the shortest allowed throttle interval.
const MinCheckInterval = 30 * time.Second

// Keys of the persisted site settings.
const (
	KeyEnabled           = "release.enabled"
	KeyThresholdProfile  = "release.threshold_profile"
	KeyReadyRatioProfile = "release.ready_ratio_profile"
	KeyTriggerMode       = "release.trigger_mode"
	KeyCheckInterval     = "release.check_interval_seconds"
	KeyAutoNotice        = "release.auto_notice"
)

// Settings is loaded once per run and passed down explicitly.
type Settings struct {
	Enabled           bool          `json:"enabled"`
	ThresholdProfile  Profile       `json:"threshold_profile"`
	ReadyRatioProfile Profile       `json:"ready_ratio_profile"`
	Mode              Mode          `json:"trigger_mode"`
	CheckInterval     time.Duration `json:"check_interval"`
	AutoNotice        bool          `json:"auto_notice"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:           true,
		ThresholdProfile:  ProfileBalanced,
		ReadyRatioProfile: ProfileBalanced,
		Mode:              ModeHybrid,
		CheckInterval:     5 * time.Minute,
		AutoNotice:        true,
	}
}

// FromConfig layers the environment's release values over the built-in
// defaults. Stored site settings are merged on top of the result.
func FromConfig(cfg config.Config) Settings {
	return Merge(DefaultSettings(), map[string]string{
		KeyEnabled:           strconv.FormatBool(cfg.ReleaseEnabled),
		KeyThresholdProfile:  cfg.ReleaseThresholdProfile,
		KeyReadyRatioProfile: cfg.ReleaseReadyRatioProfile,
		KeyTriggerMode:       cfg.ReleaseTriggerMode,
		KeyCheckInterval:     strconv.Itoa(int(cfg.ReleaseCheckInterval / time.Second)),
		KeyAutoNotice:        strconv.FormatBool(cfg.ReleaseAutoNotice),
	})
}

// Normalize fills unknown enum values with defaults and enforces the
// minimum check interval.
func (s Settings) Normalize() Settings {
	d := DefaultSettings()
	if _, err := ParseProfile(string(s.ThresholdProfile)); err != nil {
		s.ThresholdProfile = d.ThresholdProfile
	}
	if _, err := ParseProfile(string(s.ReadyRatioProfile)); err != nil {
		s.ReadyRatioProfile = d.ReadyRatioProfile
	}
	if _, err := ParseMode(string(s.Mode)); err != nil {
		s.Mode = d.Mode
	}
	if s.CheckInterval < MinCheckInterval {
		s.CheckInterval = MinCheckInterval
	}
	return s
}

// Merge overlays stored key/value settings onto base. Malformed values are
// logged and ignored.
func Merge(base Settings, kv map[string]string) Settings {
	s := base
	for k, v := range kv {
		v = strings.TrimSpace(v)
		var err error
		switch k {
		case KeyEnabled:
			s.Enabled, err = strconv.ParseBool(v)
		case KeyThresholdProfile:
			s.ThresholdProfile, err = ParseProfile(v)
		case KeyReadyRatioProfile:
			s.ReadyRatioProfile, err = ParseProfile(v)
		case KeyTriggerMode:
			s.Mode, err = ParseMode(v)
		case KeyCheckInterval:
			var n int
			n, err = strconv.Atoi(v)
			s.CheckInterval = time.Duration(n) * time.Second
		case KeyAutoNotice:
			s.AutoNotice, err = strconv.ParseBool(v)
		default:
			continue
		}
		if err != nil {
			log.Printf("[release] setting %s=%q ignored: %v", k, v, err)
			s = restore(s, base, k)
		}
	}
	return s.Normalize()
}

func restore(s, base Settings, key string) Settings {
	switch key {
	case KeyEnabled:
		s.Enabled = base.Enabled
	case KeyThresholdProfile:
		s.ThresholdProfile = base.ThresholdProfile
	case KeyReadyRatioProfile:
		s.ReadyRatioProfile = base.ReadyRatioProfile
	case KeyTriggerMode:
		s.Mode = base.Mode
	case KeyCheckInterval:
		s.CheckInterval = base.CheckInterval
	case KeyAutoNotice:
		s.AutoNotice = base.AutoNotice
	}
	return s
}

// Map renders s as stored key/value settings.
func (s Settings) Map() map[string]string {
	return map[string]string{
		KeyEnabled:           strconv.FormatBool(s.Enabled),
		KeyThresholdProfile:  string(s.ThresholdProfile),
		KeyReadyRatioProfile: string(s.ReadyRatioProfile),
		KeyTriggerMode:       string(s.Mode),
		KeyCheckInterval:     strconv.Itoa(int(s.CheckInterval / time.Second)),
		KeyAutoNotice:        strconv.FormatBool(s.AutoNotice),
	}
}
