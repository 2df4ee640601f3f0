package storage

import "testing"

func TestMinuteClock(t *testing.T) {
	cases := []struct {
		min  int
		want string
	}{
		{0, "00:00"},
		{540, "09:00"},
		{1439, "23:59"},
		{1440, "23:59"}, // midnight-ending window clamps instead of "24:00"
		{2000, "23:59"},
		{-5, "00:00"},
	}
	for _, c := range cases {
		if got := minuteClock(c.min); got != c.want {
			t.Fatalf("minuteClock(%d) = %q, want %q", c.min, got, c.want)
		}
	}
}
