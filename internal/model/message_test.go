package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTimestampLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2025-03-14T10:00:00Z":        time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC),
		"2025-03-14T10:00:00.123456Z": time.Date(2025, time.March, 14, 10, 0, 0, 123456000, time.UTC),
		"2025-03-14T10:00:00.123456":  time.Date(2025, time.March, 14, 10, 0, 0, 123456000, time.UTC),
		"2025-03-14 10:00:00":         time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC),
		"2025-03-14T10:00:00+02:00":   time.Date(2025, time.March, 14, 10, 0, 0, 0, time.FixedZone("", 2*60*60)),
		"  2025-03-14T10:00:00Z  ":    time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got := ParseTimestamp(raw)
		require.True(t, got.Equal(want), "parse %q: got %v", raw, got)
	}
}

func TestParseTimestampUnparseableYieldsZero(t *testing.T) {
	for _, raw := range []string{"", "   ", "yesterday", "14/03/2025", "1741946400"} {
		require.True(t, ParseTimestamp(raw).IsZero(), "raw %q", raw)
	}
}
