package money

import "testing"

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"43.74", 4374, false},
		{"100", 10000, false},
		{"0.5", 50, false},
		{" 20.00 ", 2000, false},
		{"-10.25", -1025, false},
		{"1.999", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDecimal(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDecimal(%q): expected error, got %d", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDecimal(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDecimal(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFormatCents(t *testing.T) {
	if got := FormatCents(4374); got != "43.74" {
		t.Fatalf("FormatCents(4374) = %q", got)
	}
	if got := FormatCents(0); got != "0.00" {
		t.Fatalf("FormatCents(0) = %q", got)
	}
	if got := FormatCents(-1025); got != "-10.25" {
		t.Fatalf("FormatCents(-1025) = %q", got)
	}
}

func TestProRata(t *testing.T) {
	// 45.00 of a 200.00 subtotal carrying a 20.00 discount -> 4.50.
	if got := ProRata(4500, 20000, 2000); got != 450 {
		t.Fatalf("ProRata(4500, 20000, 2000) = %d, want 450", got)
	}
	if got := ProRata(100, 0, 2000); got != 0 {
		t.Fatalf("ProRata with zero whole = %d, want 0", got)
	}
	// Thirds round to the nearest cent instead of truncating.
	if got := ProRata(1, 3, 100); got != 33 {
		t.Fatalf("ProRata(1, 3, 100) = %d, want 33", got)
	}
}

func TestPercent(t *testing.T) {
	// 8% tax on 40.50 -> 3.24.
	if got := Percent(4050, 8); got != 324 {
		t.Fatalf("Percent(4050, 8) = %d, want 324", got)
	}
	if got := Percent(4050, 0); got != 0 {
		t.Fatalf("Percent(4050, 0) = %d, want 0", got)
	}
	// Half cents round up.
	if got := Percent(50, 11); got != 6 {
		t.Fatalf("Percent(50, 11) = %d, want 6", got)
	}
}
