package notify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepairURLWellFormedUnchanged(t *testing.T) {
	cases := []string{
		"https://www.ticketmaster.com/event/Z7r9jZ1AdFUoO",
		"https://lepointdevente.com/billets/ff1250703001",
		"http://example.com/path?x=1&y=2",
	}
	for _, in := range cases {
		require.Equal(t, in, RepairURL(in))
	}
}

func TestRepairURLSchemes(t *testing.T) {
	cases := map[string]string{
		"Https://lepointdevente.com/billets/ff1250703001": "https://lepointdevente.com/billets/ff1250703001",
		"ttps://example.com/a":                            "https://example.com/a",
		"hhttps://example.com/a":                          "https://example.com/a",
		"http:/www.example.com/a":                         "http://www.example.com/a",
		"https:/www.example.com/a":                        "https://www.example.com/a",
		"www.example.com/a":                               "https://www.example.com/a",
		"example.com/a":                                   "https://example.com/a",
	}
	for in, want := range cases {
		require.Equal(t, want, RepairURL(in), "input %q", in)
	}
}

func TestRepairURLCollapsesDuplicateSlashes(t *testing.T) {
	require.Equal(t,
		"https://example.com/a/b",
		RepairURL("https://example.com//a///b"))
}

func TestRepairURLStripsWhitespaceAndControlChars(t *testing.T) {
	require.Equal(t,
		"https://example.com/a",
		RepairURL("  https://example.com/a\n"))
}

func TestRepairURLIdempotent(t *testing.T) {
	inputs := []string{
		"Https://lepointdevente.com/billets/ff1250703001",
		"www.example.com/path?q=hello world",
		"https://example.com//double//slash",
		"",
		"not a url at all \x01",
	}
	for _, in := range inputs {
		once := RepairURL(in)
		twice := RepairURL(once)
		require.Equal(t, once, twice, "repair of %q is not idempotent", in)
	}
}

func TestRepairURLUnsalvageable(t *testing.T) {
	for _, in := range []string{"", "https://", "https://%zz"} {
		require.Equal(t, GenericFallbackURL, RepairURL(in), "input %q", in)
	}
}

func TestFallbackEventURL(t *testing.T) {
	require.Equal(t, "https://www.ticketmaster.com/event/abc123", FallbackEventURL("abc123"))
}
