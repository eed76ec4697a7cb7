package selector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectPicksNewestPerCall(t *testing.T) {
	res := Select([]string{
		"232_2026012609353768.xml",
		"232_2026012609595563.xml",
	})
	require.Equal(t, []string{"232_2026012609595563.xml"}, res.Latest)
	require.Equal(t, []string{"232_2026012609353768.xml"}, res.Skip)
	require.Empty(t, res.Undecodable)
}

func TestSelectMixedDirectory(t *testing.T) {
	var names []string
	// 18 older snapshots plus one newest for call 232.
	for i := 0; i < 18; i++ {
		names = append(names, fmt.Sprintf("232_20260126093%03d00.xml", i))
	}
	names = append(names, "232_2026012610000000.xml")
	names = append(names, "591_2026012611300000.xml")
	names = append(names, "240_2026012611450000.xml")
	names = append(names, "notes.txt", "240_badtimestamp.xml")

	res := Select(names)
	require.Len(t, res.Latest, 3)
	require.Contains(t, res.Latest, "232_2026012610000000.xml")
	require.Contains(t, res.Latest, "591_2026012611300000.xml")
	require.Contains(t, res.Latest, "240_2026012611450000.xml")
	require.Len(t, res.Skip, 18)
	require.ElementsMatch(t, []string{"notes.txt", "240_badtimestamp.xml"}, res.Undecodable)
}

func TestSelectPartitionsInput(t *testing.T) {
	names := []string{
		"7_2026010108000000.xml",
		"7_2026010109000000.xml",
		"7_2026010107000000.xml",
		"8_2026010101000000.xml",
		"garbage.bin",
	}
	res := Select(names)

	require.Len(t, res.Latest, len(res.Groups))
	var all []string
	all = append(all, res.Latest...)
	all = append(all, res.Skip...)
	all = append(all, res.Undecodable...)
	require.ElementsMatch(t, names, all)
}

func TestSelectTieBreaksLexically(t *testing.T) {
	// Identical 16-digit timestamps: the lexically greater name wins.
	res := Select([]string{
		"55_2026020213000000~a.xml",
		"55_2026020213000000~b.xml",
	})
	require.Equal(t, []string{"55_2026020213000000~b.xml"}, res.Latest)
	require.Equal(t, []string{"55_2026020213000000~a.xml"}, res.Skip)
}

func TestSelectMonotonicUnderGrowth(t *testing.T) {
	base := []string{"9_2026010110000000.xml"}
	first := Select(base)
	require.Equal(t, base, first.Latest)

	grown := append(base, "9_2026010111000000.xml")
	second := Select(grown)
	require.Equal(t, []string{"9_2026010111000000.xml"}, second.Latest)
	require.Equal(t, base, second.Skip)
}
