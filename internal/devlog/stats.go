package devlog

import (
	"time"
)

// Stats is the overview aggregate for a set of entries.
type Stats struct {
	TotalEntries  int               `json:"totalEntries"`
	OpenEntries   int               `json:"openEntries"`
	ClosedEntries int               `json:"closedEntries"`
	ByStatus      map[Status]int    `json:"byStatus"`
	ByType        map[EntryType]int `json:"byType"`
	ByPriority    map[Priority]int  `json:"byPriority"`

	// AverageCompletionTime is in hours; nil when nothing has closed.
	AverageCompletionTime *float64 `json:"averageCompletionTime,omitempty"`
}

// NewStats returns a Stats with every enum key present at zero, so
// consumers can rely on the map shape.
func NewStats() *Stats {
	s := &Stats{
		ByStatus:   make(map[Status]int, len(AllStatuses)),
		ByType:     make(map[EntryType]int, len(AllTypes)),
		ByPriority: make(map[Priority]int, len(AllPriorities)),
	}
	for _, v := range AllStatuses {
		s.ByStatus[v] = 0
	}
	for _, v := range AllTypes {
		s.ByType[v] = 0
	}
	for _, v := range AllPriorities {
		s.ByPriority[v] = 0
	}
	return s
}

// Finalize derives the open/closed totals from ByStatus.
func (s *Stats) Finalize() {
	s.OpenEntries, s.ClosedEntries = 0, 0
	for status, n := range s.ByStatus {
		if IsClosed(status) {
			s.ClosedEntries += n
		} else {
			s.OpenEntries += n
		}
	}
}

// ComputeStats aggregates entries in memory.
func ComputeStats(entries []*Entry) *Stats {
	s := NewStats()
	var completionHours float64
	var completed int

	for _, e := range entries {
		s.TotalEntries++
		s.ByStatus[e.Status]++
		s.ByType[e.Type]++
		s.ByPriority[e.Priority]++
		if e.ClosedAt != nil {
			completionHours += e.ClosedAt.Sub(e.CreatedAt).Hours()
			completed++
		}
	}
	if completed > 0 {
		avg := completionHours / float64(completed)
		s.AverageCompletionTime = &avg
	}
	s.Finalize()
	return s
}

// TimeSeriesPoint is one day of the time series.
type TimeSeriesPoint struct {
	Date         string `json:"date"` // YYYY-MM-DD (UTC)
	TotalCreated int    `json:"totalCreated"`
	TotalClosed  int    `json:"totalClosed"`
	Open         int    `json:"open"`
	DailyCreated int    `json:"dailyCreated"`
	DailyClosed  int    `json:"dailyClosed"`
}

// DateRange is an inclusive day range.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TimeSeriesStats is a per-day history of created and closed entries.
type TimeSeriesStats struct {
	DateRange  DateRange         `json:"dateRange"`
	DataPoints []TimeSeriesPoint `json:"dataPoints"`
}

// DayFormat is the layout of TimeSeriesPoint.Date.
const DayFormat = "2006-01-02"

// DailyCounts is the raw material SQL providers hand to BuildTimeSeries:
// how many entries existed/closed before the range and per-day counts
// inside it, keyed by DayFormat.
type DailyCounts struct {
	CreatedBefore int
	ClosedBefore  int
	Created       map[string]int
	Closed        map[string]int
}

// BuildTimeSeries turns daily counts into cumulative data points covering
// every day from..to inclusive (UTC), including days with no activity.
func BuildTimeSeries(counts DailyCounts, from, to time.Time) *TimeSeriesStats {
	from = startOfDay(from)
	to = startOfDay(to)

	ts := &TimeSeriesStats{
		DateRange:  DateRange{From: from.Format(DayFormat), To: to.Format(DayFormat)},
		DataPoints: []TimeSeriesPoint{},
	}

	totalCreated := counts.CreatedBefore
	totalClosed := counts.ClosedBefore
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := day.Format(DayFormat)
		created := counts.Created[key]
		closed := counts.Closed[key]
		totalCreated += created
		totalClosed += closed
		ts.DataPoints = append(ts.DataPoints, TimeSeriesPoint{
			Date:         key,
			TotalCreated: totalCreated,
			TotalClosed:  totalClosed,
			Open:         totalCreated - totalClosed,
			DailyCreated: created,
			DailyClosed:  closed,
		})
	}
	return ts
}

// ComputeTimeSeries builds the series from entries held in memory.
func ComputeTimeSeries(entries []*Entry, from, to time.Time) *TimeSeriesStats {
	from = startOfDay(from)
	end := startOfDay(to).AddDate(0, 0, 1)

	counts := DailyCounts{Created: map[string]int{}, Closed: map[string]int{}}
	for _, e := range entries {
		created := e.CreatedAt.UTC()
		switch {
		case created.Before(from):
			counts.CreatedBefore++
		case created.Before(end):
			counts.Created[created.Format(DayFormat)]++
		}
		if e.ClosedAt == nil {
			continue
		}
		closed := e.ClosedAt.UTC()
		switch {
		case closed.Before(from):
			counts.ClosedBefore++
		case closed.Before(end):
			counts.Closed[closed.Format(DayFormat)]++
		}
	}
	return BuildTimeSeries(counts, from, to)
}

// TimeSeriesRange returns the from/to days for a "last N days" query
// ending today (UTC). days is clamped to 1..365.
func TimeSeriesRange(days int) (time.Time, time.Time) {
	if days <= 0 {
		days = 30
	}
	if days > 365 {
		days = 365
	}
	to := startOfDay(Now())
	from := to.AddDate(0, 0, -(days - 1))
	return from, to
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
