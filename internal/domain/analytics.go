package domain

import (
	"fmt"
	"sort"
	"time"
)

// Visit is one recorded page view.
type Visit struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Referrer  string    `json:"referrer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sale is a paid order as seen by the analytics dashboard.
type Sale struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	CommerceOrder string    `json:"commerce_order"`
	Amount        int64     `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

// TimeRange is the bucket width of a dashboard chart.
type TimeRange string

const (
	RangeDaily   TimeRange = "daily"
	RangeWeekly  TimeRange = "weekly"
	RangeMonthly TimeRange = "monthly"
)

// ParseTimeRange accepts daily, weekly or monthly. Empty means daily.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case "", RangeDaily:
		return RangeDaily, nil
	case RangeWeekly, RangeMonthly:
		return TimeRange(s), nil
	}
	return "", fmt.Errorf("unknown time range %q", s)
}

// BucketStart truncates t (in UTC) to the start of its bucket. Weeks start
// on Monday.
func (r TimeRange) BucketStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch r {
	case RangeWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case RangeMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Label formats a bucket start for chart axes.
func (r TimeRange) Label(start time.Time) string {
	switch r {
	case RangeWeekly:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case RangeMonthly:
		return start.Format("2006-01")
	default:
		return start.Format("2006-01-02")
	}
}

// Bucket is one point of a dashboard chart.
type Bucket struct {
	Start  time.Time `json:"start"`
	Label  string    `json:"label"`
	Count  int       `json:"count"`
	Amount int64     `json:"amount,omitempty"`
}

type bucketAcc map[time.Time]*Bucket

func (acc bucketAcc) add(r TimeRange, at time.Time, amount int64) {
	start := r.BucketStart(at)
	b, ok := acc[start]
	if !ok {
		b = &Bucket{Start: start, Label: r.Label(start)}
		acc[start] = b
	}
	b.Count++
	b.Amount += amount
}

func (acc bucketAcc) sorted() []Bucket {
	out := make([]Bucket, 0, len(acc))
	for _, b := range acc {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// GroupVisits counts visits per bucket, oldest first.
func GroupVisits(visits []Visit, r TimeRange) []Bucket {
	acc := bucketAcc{}
	for _, v := range visits {
		acc.add(r, v.CreatedAt, 0)
	}
	return acc.sorted()
}

// GroupSales counts orders and sums amounts per bucket, oldest first.
func GroupSales(sales []Sale, r TimeRange) []Bucket {
	acc := bucketAcc{}
	for _, s := range sales {
		acc.add(r, s.CreatedAt, s.Amount)
	}
	return acc.sorted()
}

// Dashboard is the admin analytics payload.
type Dashboard struct {
	Range       TimeRange `json:"range"`
	Visits      []Bucket  `json:"visits"`
	Sales       []Bucket  `json:"sales"`
	TotalVisits int       `json:"total_visits"`
	TotalSales  int64     `json:"total_sales"`
	TotalOrders int       `json:"total_orders"`
}
