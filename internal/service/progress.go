package service

import (
	"time"

	"haruup-service/internal/models"
)

// CivilDate truncates t to its calendar date in t's own location, expressed as midnight UTC.
// Mission dates are stored and compared in this form.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ApplyMissionCompletion records one completed mission on progress. Level and exp values
// come from the level resolver; today must already be a CivilDate.
//
// Streak rules: last mission yesterday extends the streak, last mission today leaves it as is,
// anything else restarts it at 1.
func ApplyMissionCompletion(progress *models.MemberCharacter, newLevelID, totalExp, currentExp int64, today time.Time) *models.MemberCharacter {
	progress.LevelID = newLevelID
	progress.TotalExp = totalExp
	progress.CurrentExp = currentExp
	progress.TotalMissions++
	progress.CompletedMissions++

	yesterday := today.AddDate(0, 0, -1)
	switch {
	case progress.LastMissionDate != nil && progress.LastMissionDate.Equal(today):
		// second completion today
		if progress.CurrentStreakDays < 1 {
			progress.CurrentStreakDays = 1
		}
	case progress.LastMissionDate != nil && progress.LastMissionDate.Equal(yesterday):
		progress.CurrentStreakDays++
	default:
		progress.CurrentStreakDays = 1
	}

	if progress.CurrentStreakDays > progress.LongestStreakDays {
		progress.LongestStreakDays = progress.CurrentStreakDays
	}

	last := today
	progress.LastMissionDate = &last
	return progress
}

// ApplyMissionFailure counts a failed mission. Streak and exp are untouched.
func ApplyMissionFailure(progress *models.MemberCharacter) *models.MemberCharacter {
	progress.TotalMissions++
	progress.FailedMissions++
	return progress
}

// ResolveLevel picks the highest level whose threshold is reached by totalExp and returns it
// with the exp earned inside that level. levels must be sorted by RequiredExp ascending.
func ResolveLevel(levels []models.Level, totalExp int64) (models.Level, int64, error) {
	var (
		found  bool
		picked models.Level
	)
	for _, lvl := range levels {
		if lvl.RequiredExp > totalExp {
			break
		}
		picked = lvl
		found = true
	}
	if !found {
		return models.Level{}, 0, ErrLevelNotFound
	}
	return picked, totalExp - picked.RequiredExp, nil
}
