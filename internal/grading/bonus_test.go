package grading

import (
	"errors"
	"testing"
)

func TestBonusSelection_Exclusive(t *testing.T) {
	s := BonusSelection{}.WithVeteran(10)
	s = s.WithHero(3)
	if s.VeteranPct != 0 || s.HeroPct != 3 {
		t.Fatalf("hero selection should clear veteran, got %+v", s)
	}
	s = s.WithVeteran(5)
	if s.HeroPct != 0 || s.VeteranPct != 5 {
		t.Fatalf("veteran selection should clear hero, got %+v", s)
	}
	bt, err := s.Type()
	if err != nil || bt != BonusVeteran5 {
		t.Fatalf("want VETERAN_5, got %v %v", bt, err)
	}

	// zeroing one category leaves the other alone
	s = BonusSelection{HeroPct: 5}.WithVeteran(0)
	if s.HeroPct != 5 {
		t.Fatalf("zero veteran must not clear hero, got %+v", s)
	}

	if _, err := (BonusSelection{VeteranPct: 5, HeroPct: 3}).Type(); !errors.Is(err, ErrBonus) {
		t.Fatalf("both categories set: want ErrBonus, got %v", err)
	}
	if _, err := (BonusSelection{HeroPct: 10}).Type(); !errors.Is(err, ErrBonus) {
		t.Fatalf("hero 10%%: want ErrBonus, got %v", err)
	}
}

func TestResolveBonus(t *testing.T) {
	tests := []struct {
		typ  string
		rate *float64
		want float64
	}{
		{"", nil, 0},
		{"veteran_10", nil, 0.10},
		{"HERO_3", nil, 0.03},
		{"NONE", ptr(0.25), 0.10},
		{"NONE", ptr(-1), 0},
		{"HERO_5", ptr(0.07), 0.07},
	}
	for _, tc := range tests {
		_, got, err := ResolveBonus(tc.typ, tc.rate)
		if err != nil {
			t.Fatalf("%q: %v", tc.typ, err)
		}
		if got != tc.want {
			t.Fatalf("%q: want %v, got %v", tc.typ, tc.want, got)
		}
	}
	if _, _, err := ResolveBonus("GOLD", nil); !errors.Is(err, ErrBonus) {
		t.Fatalf("unknown type: want ErrBonus, got %v", err)
	}
}

func ptr(f float64) *float64 { return &f }
