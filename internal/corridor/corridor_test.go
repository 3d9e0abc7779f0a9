package corridor

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultTimeline(t *testing.T) {
	c := Default()
	require.Len(t, c.Stops, 7)
	tl := c.Timeline()
	require.Equal(t, "Aluva", tl.Stops[0].Name)
	require.Equal(t, 1, tl.Stops[0].ArrivalDelay)
	require.Equal(t, 2, tl.Stops[0].DepartureDelay)
	// Edappally arrives three minutes late
	require.Equal(t, 3, tl.Stops[3].ArrivalDelay)
	require.Equal(t, 3, tl.MaxDelay)
	require.Equal(t, 1, tl.EndDelay)
	require.InDelta(t, 24, tl.TotalKm, 1e-9)
}

func TestParseRejectsBadTimes(t *testing.T) {
	_, err := Parse([]byte("name: x\nstops:\n  - {name: A, arrival: \"25:99\"}\n"))
	require.Error(t, err)
	_, err = Parse([]byte("name: empty\n"))
	require.Error(t, err)

	c, err := Parse([]byte("name: x\nstops:\n  - {name: A, arrival: \"07:00\", arrival_actual: \"06:58\"}\n"))
	require.NoError(t, err)
	require.Equal(t, 12, c.Zoom)
	require.Equal(t, -2, c.Timeline().Stops[0].ArrivalDelay)
}

func TestMapURL(t *testing.T) {
	raw := Default().MapURL("", "k123", "")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "https://maps.googleapis.com/maps/api/staticmap?"))
	q := u.Query()
	require.Equal(t, "Edappally,Kochi", q.Get("center"))
	require.Equal(t, "700x450", q.Get("size"))
	require.Equal(t, "k123", q.Get("key"))
	require.Len(t, q["markers"], 5)
	require.Contains(t, q["markers"], "color:red|label:E|Edappally")

	require.NotContains(t, Default().MapURL("", "", ""), "key=")
}
