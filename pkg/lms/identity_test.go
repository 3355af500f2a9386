package lms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivityIDDeterministic(t *testing.T) {
	a := ActivityID("ousl_142", "Assignment 1", "assign")
	b := ActivityID("ousl_142", "Assignment 1", "assign")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestActivityIDVariesWithInputs(t *testing.T) {
	base := ActivityID("ousl_142", "Assignment 1", "assign")
	assert.NotEqual(t, base, ActivityID("ousl_143", "Assignment 1", "assign"))
	assert.NotEqual(t, base, ActivityID("ousl_142", "Assignment 2", "assign"))
	assert.NotEqual(t, base, ActivityID("ousl_142", "Assignment 1", "quiz"))
}

func TestDeadlineIDsDisjoint(t *testing.T) {
	// Same underlying text must never collide across id spaces.
	cal := CalendarDeadlineID("ousl", "2025-10-15T00:00:00Z", "Assignment 1")
	scraped := ScrapedDeadlineID("ousl", "2025-10-15T00:00:00Z")

	assert.NotEqual(t, cal, scraped)
	assert.Contains(t, cal, "cal_")
	assert.Contains(t, scraped, "scraped_")
}
