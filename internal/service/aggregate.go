package service

import (
	"sort"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/grading"
)

// countAttendance tallies a student's records among records.
func countAttendance(records []models.AttendanceRecord, studentID string) (present, total int) {
	for _, rec := range records {
		if rec.StudentID != studentID {
			continue
		}
		total++
		if rec.Status == models.AttendancePresent {
			present++
		}
	}
	return present, total
}

// countAll tallies every record regardless of student.
func countAll(records []models.AttendanceRecord) (present, total int) {
	for _, rec := range records {
		total++
		if rec.Status == models.AttendancePresent {
			present++
		}
	}
	return present, total
}

// studentMarks returns a student's raw marks per assessment and the
// percentages of the ones that parse.
func studentMarks(byAssessment map[string][]models.ResultEntry, studentID string) (map[string]string, []float64) {
	raw := make(map[string]string)
	var percents []float64
	for _, key := range sortedKeys(byAssessment) {
		for _, entry := range byAssessment[key] {
			if entry.ID != studentID {
				continue
			}
			raw[key] = entry.Marks
			if marks, ok := grading.ParseMarks(entry.Marks); ok {
				percents = append(percents, grading.Percent(marks))
			}
		}
	}
	return raw, percents
}

// gradedCount reports how many assessments of a course hold at least one
// parseable mark.
func gradedCount(byAssessment map[string][]models.ResultEntry) int {
	var n int
	for _, entries := range byAssessment {
		for _, entry := range entries {
			if _, ok := grading.ParseMarks(entry.Marks); ok {
				n++
				break
			}
		}
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func meanPercent(values []int) *int {
	if len(values) == 0 {
		return nil
	}
	var sum int
	for _, v := range values {
		sum += v
	}
	return grading.AttendancePercent(sum, len(values)*100)
}
