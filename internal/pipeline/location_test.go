package pipeline

import "testing"

func TestParseLocation(t *testing.T) {
	cases := []struct {
		raw      string
		lat, lon string
	}{
		{"40.7128,-74.0060", "40.7128", "-74.0060"},
		{" 40.7128 , -74.0060 ", "40.7128", "-74.0060"},
		{"40.7128", "0.0", "0.0"},
		{"", "0.0", "0.0"},
		{",", "0.0", "0.0"},
		{"40.7128,", "40.7128", "0.0"},
		{",-74.0060", "0.0", "-74.0060"},
		{"a,b,c", "a", "b,c"},
	}
	for _, tc := range cases {
		lat, lon := ParseLocation(tc.raw)
		if lat != tc.lat || lon != tc.lon {
			t.Errorf("ParseLocation(%q) = (%q, %q), want (%q, %q)", tc.raw, lat, lon, tc.lat, tc.lon)
		}
	}
}

func TestMapLink(t *testing.T) {
	got := MapLink("40.7", "-74.0")
	want := "https://www.google.com/maps/search/?api=1&query=40.7,-74.0"
	if got != want {
		t.Fatalf("MapLink = %q, want %q", got, want)
	}
}
