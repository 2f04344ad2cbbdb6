package models

import (
	"fmt"
	"time"
)

// BlockLength is the fixed span of an academic block.
const BlockLength = 28 * 24 * time.Hour

// BlocksPerYear is how many blocks a standard academic year is divided into.
const BlocksPerYear = 13

// Block is a fixed-length academic period. Blocks are generated
// deterministically from the calendar anchor and immutable once created.
type Block struct {
	ID           string    `db:"id" json:"id"`
	AcademicYear int       `db:"academic_year" json:"academic_year"`
	Sequence     int       `db:"sequence" json:"sequence"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Contains reports whether the date falls inside the block.
func (b Block) Contains(date time.Time) bool {
	d := truncateToDay(date)
	return !d.Before(truncateToDay(b.StartDate)) && !d.After(truncateToDay(b.EndDate))
}

// AcademicYearAnchor returns the first Thursday on or after July 1 of the
// given year, the start of block 1.
func AcademicYearAnchor(year int) time.Time {
	d := time.Date(year, time.July, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// GenerateBlocks produces the full block calendar for an academic year.
// Sequence numbers start at 1 and periods abut without gaps.
func GenerateBlocks(academicYear int) []Block {
	blocks := make([]Block, 0, BlocksPerYear)
	start := AcademicYearAnchor(academicYear)
	for seq := 1; seq <= BlocksPerYear; seq++ {
		end := start.AddDate(0, 0, 27)
		blocks = append(blocks, Block{
			AcademicYear: academicYear,
			Sequence:     seq,
			StartDate:    start,
			EndDate:      end,
		})
		start = end.AddDate(0, 0, 1)
	}
	return blocks
}

// SlotPeriod is the half-day granularity of schedulable time.
type SlotPeriod string

const (
	SlotPeriodAM SlotPeriod = "AM"
	SlotPeriodPM SlotPeriod = "PM"
)

// SlotPeriods lists the periods in chronological order.
var SlotPeriods = []SlotPeriod{SlotPeriodAM, SlotPeriodPM}

// SlotRef addresses one half-day slot. Slots are computed from blocks rather
// than stored as rows.
type SlotRef struct {
	Date   time.Time  `json:"date"`
	Period SlotPeriod `json:"period"`
}

// Key returns a stable string identity for map usage and logging.
func (s SlotRef) Key() string {
	return fmt.Sprintf("%s/%s", s.Date.Format("2006-01-02"), s.Period)
}

// Equal reports whether two refs address the same half-day.
func (s SlotRef) Equal(o SlotRef) bool {
	return truncateToDay(s.Date).Equal(truncateToDay(o.Date)) && s.Period == o.Period
}

// Before orders slot refs chronologically, AM before PM.
func (s SlotRef) Before(o SlotRef) bool {
	sd, od := truncateToDay(s.Date), truncateToDay(o.Date)
	if !sd.Equal(od) {
		return sd.Before(od)
	}
	return s.Period == SlotPeriodAM && o.Period == SlotPeriodPM
}

// IsWeekend reports whether the slot falls on Saturday or Sunday.
func (s SlotRef) IsWeekend() bool {
	wd := s.Date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DateRange is an inclusive day interval.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days iterates the range in calendar-day steps.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := truncateToDay(r.Start); !d.After(truncateToDay(r.End)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Contains reports whether the date lies within the range.
func (r DateRange) Contains(date time.Time) bool {
	d := truncateToDay(date)
	return !d.Before(truncateToDay(r.Start)) && !d.After(truncateToDay(r.End))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
