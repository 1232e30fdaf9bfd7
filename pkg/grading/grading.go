// Package grading derives letter grades, grade points and attendance
// percentages. Every view that shows a grade goes through Letter.
package grading

import (
	"math"
	"strconv"
	"strings"
)

// MaxMarks is the implicit maximum of every assessment.
const MaxMarks = 100

// Trend values reported per course.
const (
	TrendUp     = "up"
	TrendSteady = "steady"
	TrendDown   = "down"
)

// AlertGPA is the GPA below which a student gets an academic alert.
const AlertGPA = 2.0

// LowAttendance is the percentage below which course attendance is flagged.
const LowAttendance = 75

var points = map[string]float64{"A": 4, "B": 3, "C": 2, "D": 1, "F": 0}

// Letter maps a percentage to A..F. It is total and monotonic.
func Letter(percent float64) string {
	switch {
	case percent >= 90:
		return "A"
	case percent >= 80:
		return "B"
	case percent >= 70:
		return "C"
	case percent >= 60:
		return "D"
	default:
		return "F"
	}
}

// Points returns the grade points of a letter.
func Points(letter string) (float64, bool) {
	p, ok := points[strings.ToUpper(strings.TrimSpace(letter))]
	return p, ok
}

// ParseMarks reads stored marks. Empty or non-numeric values are ignored.
func ParseMarks(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Percent converts marks to a percentage of MaxMarks.
func Percent(marks float64) float64 {
	return marks / MaxMarks * 100
}

// AverageLetter averages the given percentages, rounds to the nearest
// integer and maps the result. ok is false when there is nothing to grade.
func AverageLetter(percents []float64) (avg int, letter string, ok bool) {
	if len(percents) == 0 {
		return 0, "", false
	}
	var sum float64
	for _, p := range percents {
		sum += p
	}
	avg = int(math.Round(sum / float64(len(percents))))
	return avg, Letter(float64(avg)), true
}

// GPA averages the grade points of every recognised letter and rounds to
// two decimals.
func GPA(letters []string) (float64, bool) {
	var total float64
	var n int
	for _, l := range letters {
		if p, ok := Points(l); ok {
			total += p
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return math.Round(total/float64(n)*100) / 100, true
}

// AttendancePercent returns round(present/total*100), or nil when total is 0.
func AttendancePercent(present, total int) *int {
	if total <= 0 {
		return nil
	}
	pct := int(math.Round(float64(present) / float64(total) * 100))
	return &pct
}

// Trend classifies an attendance percentage. No attendance counts as down.
func Trend(attendance *int) string {
	switch {
	case attendance == nil:
		return TrendDown
	case *attendance >= 90:
		return TrendUp
	case *attendance >= LowAttendance:
		return TrendSteady
	default:
		return TrendDown
	}
}
