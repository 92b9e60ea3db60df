package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aqzsshi/esser-bot/internal/models"
)

func TestAutoNameSequencesPerCalendarDay(t *testing.T) {
	loc := time.UTC
	state := models.NewGuildState()
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, loc)

	assert.Equal(t, "02.01.2026 №1", autoName(state, now, loc))

	state.Contracts["a"] = &models.Contract{CreatedAt: now}
	state.Contracts["b"] = &models.Contract{CreatedAt: now.Add(2 * time.Hour)}
	// Yesterday's contract must not advance today's counter.
	state.Contracts["c"] = &models.Contract{CreatedAt: now.Add(-24 * time.Hour)}

	assert.Equal(t, "02.01.2026 №3", autoName(state, now, loc))
}

func TestAutoNameUsesConfiguredZone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	state := models.NewGuildState()

	// 23:30 UTC is already the next day in UTC+3.
	now := time.Date(2026, 1, 2, 23, 30, 0, 0, time.UTC)
	state.Contracts["a"] = &models.Contract{CreatedAt: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}

	assert.Equal(t, "03.01.2026 №1", autoName(state, now, loc))
}
