package engine

import "testing"

func TestIsViolation(t *testing.T) {
	cases := []struct {
		name      string
		dx, dt    uint32
		limit     uint16
		violation bool
	}{
		{"exactly at limit", 1, 60, 60, false},
		{"just under half margin", 121, 7201, 60, false},
		{"exactly at half margin", 121, 7200, 60, true},
		{"well over limit", 1, 45, 60, true},
		{"zero elapsed time", 5, 0, 60, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isViolation(c.dx, c.dt, c.limit); got != c.violation {
				t.Errorf("isViolation(%d, %d, %d) = %v, want %v", c.dx, c.dt, c.limit, got, c.violation)
			}
		})
	}
}

func TestSpeedX100(t *testing.T) {
	cases := []struct {
		name   string
		dx, dt uint32
		want   uint16
	}{
		{"canonical example", 1, 45, 8000},
		{"exactly limit plus half", 121, 7200, 6050},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := speedX100(c.dx, c.dt); got != c.want {
				t.Errorf("speedX100(%d, %d) = %d, want %d", c.dx, c.dt, got, c.want)
			}
		})
	}
}

func TestDayOf(t *testing.T) {
	if got := dayOf(0); got != 0 {
		t.Errorf("dayOf(0) = %d, want 0", got)
	}
	if got := dayOf(86399); got != 0 {
		t.Errorf("dayOf(86399) = %d, want 0", got)
	}
	if got := dayOf(86400); got != 1 {
		t.Errorf("dayOf(86400) = %d, want 1", got)
	}
}
