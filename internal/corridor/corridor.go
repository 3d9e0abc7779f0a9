// Package corridor describes a line's stops and builds the route timeline
// and static map shown on the dashboard.
package corridor

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Stop is one station call with scheduled and actual times ("7:05 AM" or "07:05").
type Stop struct {
	Name            string  `yaml:"name" json:"name"`
	Arrival         string  `yaml:"arrival" json:"arrival"`
	ArrivalActual   string  `yaml:"arrival_actual" json:"arrival_actual"`
	Departure       string  `yaml:"departure" json:"departure"`
	DepartureActual string  `yaml:"departure_actual" json:"departure_actual"`
	Km              float64 `yaml:"km" json:"km"`
	Platform        int     `yaml:"platform" json:"platform"`
	Marker          string  `yaml:"marker,omitempty" json:"marker,omitempty"`
	Color           string  `yaml:"color,omitempty" json:"color,omitempty"`
}

type Corridor struct {
	Name   string `yaml:"name" json:"name"`
	Center string `yaml:"center" json:"center"`
	Zoom   int    `yaml:"zoom" json:"zoom"`
	Stops  []Stop `yaml:"stops" json:"stops"`
}

// TimelineStop is a Stop with computed delays in minutes (negative when early).
type TimelineStop struct {
	Stop
	ArrivalDelay   int `json:"arrival_delay_min"`
	DepartureDelay int `json:"departure_delay_min"`
}

type Timeline struct {
	Corridor string         `json:"corridor"`
	Stops    []TimelineStop `json:"stops"`
	TotalKm  float64        `json:"total_km"`
	MaxDelay int            `json:"max_delay_min"`
	EndDelay int            `json:"end_delay_min"`
}

// Default returns the built-in corridor.
func Default() Corridor {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("corridor: bad embedded default: %v", err))
	}
	return c
}

// Load reads a corridor file; an empty path returns Default.
func Load(path string) (Corridor, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Corridor{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Corridor, error) {
	var c Corridor
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Corridor{}, fmt.Errorf("parse corridor: %w", err)
	}
	if len(c.Stops) == 0 {
		return Corridor{}, fmt.Errorf("corridor %q has no stops", c.Name)
	}
	for _, s := range c.Stops {
		for _, v := range []string{s.Arrival, s.ArrivalActual, s.Departure, s.DepartureActual} {
			if v == "" {
				continue
			}
			if _, err := parseClock(v); err != nil {
				return Corridor{}, fmt.Errorf("stop %s: %w", s.Name, err)
			}
		}
	}
	if c.Zoom == 0 {
		c.Zoom = 12
	}
	return c, nil
}

// Timeline computes per-stop delays.
func (c Corridor) Timeline() Timeline {
	t := Timeline{Corridor: c.Name, Stops: make([]TimelineStop, 0, len(c.Stops))}
	for _, s := range c.Stops {
		ts := TimelineStop{Stop: s}
		ts.ArrivalDelay = delay(s.Arrival, s.ArrivalActual)
		ts.DepartureDelay = delay(s.Departure, s.DepartureActual)
		t.MaxDelay = max(t.MaxDelay, ts.ArrivalDelay, ts.DepartureDelay)
		if s.Km > t.TotalKm {
			t.TotalKm = s.Km
		}
		t.Stops = append(t.Stops, ts)
	}
	if n := len(t.Stops); n > 0 {
		last := t.Stops[n-1]
		t.EndDelay = last.DepartureDelay
		if last.DepartureActual == "" {
			t.EndDelay = last.ArrivalDelay
		}
	}
	return t
}

// MapURL builds a Google Static Maps URL with one marker per labelled stop.
func (c Corridor) MapURL(base, key, size string) string {
	if base == "" {
		base = "https://maps.googleapis.com/maps/api/staticmap"
	}
	if size == "" {
		size = "700x450"
	}
	q := url.Values{}
	q.Set("center", c.Center)
	q.Set("zoom", fmt.Sprint(c.Zoom))
	q.Set("size", size)
	q.Set("maptype", "roadmap")
	for _, s := range c.Stops {
		if s.Marker == "" {
			continue
		}
		color := s.Color
		if color == "" {
			color = "blue"
		}
		q.Add("markers", fmt.Sprintf("color:%s|label:%s|%s", color, s.Marker, s.Name))
	}
	if key != "" {
		q.Set("key", key)
	}
	return base + "?" + q.Encode()
}

var clockLayouts = []string{"3:04 PM", "03:04 PM", "3:04PM", "15:04"}

func parseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range clockLayouts {
		if t, err := time.Parse(l, strings.ToUpper(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// delay returns actual-scheduled in minutes; 0 when either side is missing.
func delay(scheduled, actual string) int {
	if scheduled == "" || actual == "" {
		return 0
	}
	s, err1 := parseClock(scheduled)
	a, err2 := parseClock(actual)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(a.Sub(s).Minutes())
}
