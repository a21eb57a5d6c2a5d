package model

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusPending, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusCancelled, StatusCompleted} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusConfirmed} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestDetailFieldCoversAllColumns(t *testing.T) {
	o := &Order{
		BattleTag:          "Player#1234",
		PilotType:          "Pilot",
		ExpressType:        "Express",
		FromLevel:          "1",
		ToLevel:            "70",
		KillsAmount:        "10",
		MatsAmount:         "200",
		CustomOrderDetails: "details",
		HoursAmount:        "3",
	}
	for _, col := range DetailColumns() {
		if o.DetailField(col) == "" {
			t.Errorf("DetailField(%q) empty for fully populated order", col)
		}
	}
	if o.DetailField("no_such_column") != "" {
		t.Errorf("DetailField on unknown column should return empty")
	}
}
