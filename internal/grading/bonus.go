package grading

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxBonusRate caps any directly supplied bonus rate.
const MaxBonusRate = 0.10

// BonusType enumerates the extra-point categories. Veteran and hero
// categories are mutually exclusive.
type BonusType string

const (
	BonusNone      BonusType = "NONE"
	BonusVeteran5  BonusType = "VETERAN_5"
	BonusVeteran10 BonusType = "VETERAN_10"
	BonusHero3     BonusType = "HERO_3"
	BonusHero5     BonusType = "HERO_5"
)

var bonusRates = map[BonusType]float64{
	BonusNone:      0,
	BonusVeteran5:  0.05,
	BonusVeteran10: 0.10,
	BonusHero3:     0.03,
	BonusHero5:     0.05,
}

var ErrBonus = errors.New("invalid bonus")

func ParseBonusType(s string) (BonusType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return BonusNone, nil
	}
	bt := BonusType(s)
	if _, ok := bonusRates[bt]; !ok {
		return "", fmt.Errorf("%w: unknown bonus type %q", ErrBonus, s)
	}
	return bt, nil
}

func (b BonusType) Rate() float64 { return bonusRates[b] }

// BonusSelection holds the percent chosen in each category.
type BonusSelection struct {
	VeteranPct int `json:"veteran_pct"` // 0, 5 or 10
	HeroPct    int `json:"hero_pct"`    // 0, 3 or 5
}

// WithVeteran selects a veteran percent; a nonzero value clears the hero category.
func (s BonusSelection) WithVeteran(pct int) BonusSelection {
	s.VeteranPct = pct
	if pct != 0 {
		s.HeroPct = 0
	}
	return s
}

// WithHero selects a hero percent; a nonzero value clears the veteran category.
func (s BonusSelection) WithHero(pct int) BonusSelection {
	s.HeroPct = pct
	if pct != 0 {
		s.VeteranPct = 0
	}
	return s
}

// Type maps the selection onto the bonus enumeration.
func (s BonusSelection) Type() (BonusType, error) {
	if s.VeteranPct != 0 && s.HeroPct != 0 {
		return "", fmt.Errorf("%w: veteran and hero bonuses are exclusive", ErrBonus)
	}
	switch {
	case s.VeteranPct == 5:
		return BonusVeteran5, nil
	case s.VeteranPct == 10:
		return BonusVeteran10, nil
	case s.HeroPct == 3:
		return BonusHero3, nil
	case s.HeroPct == 5:
		return BonusHero5, nil
	case s.VeteranPct == 0 && s.HeroPct == 0:
		return BonusNone, nil
	}
	return "", fmt.Errorf("%w: unsupported selection veteran=%d%% hero=%d%%", ErrBonus, s.VeteranPct, s.HeroPct)
}

// ClampBonusRate forces a directly supplied rate into [0, MaxBonusRate].
func ClampBonusRate(rate float64) (float64, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("%w: rate is not a number", ErrBonus)
	}
	return math.Min(math.Max(rate, 0), MaxBonusRate), nil
}

// ResolveBonus picks the effective rate: an explicit rate wins (clamped),
// otherwise the rate is derived from the bonus type.
func ResolveBonus(bonusType string, rate *float64) (BonusType, float64, error) {
	bt, err := ParseBonusType(bonusType)
	if err != nil {
		return "", 0, err
	}
	if rate != nil {
		r, err := ClampBonusRate(*rate)
		if err != nil {
			return "", 0, err
		}
		return bt, r, nil
	}
	return bt, bt.Rate(), nil
}
