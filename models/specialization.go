package models

import "math"

// Specialization is a progression track with its own level ladder.
type Specialization string

const (
	SpecializationPlayer Specialization = "PLAYER"
	SpecializationCoach  Specialization = "COACH"
	SpecializationIntern Specialization = "INTERN"
)

// MaxLevel returns 0 for unknown specializations.
func (s Specialization) MaxLevel() int {
	switch s {
	case SpecializationPlayer, SpecializationCoach:
		return 8
	case SpecializationIntern:
		return 5
	}
	return 0
}

func (s Specialization) Valid() bool {
	return s.MaxLevel() > 0
}

// ExperienceForLevel returns the cumulative experience required to reach level.
// Level 1 requires nothing; each step k costs floor(100 * k^1.2).
func ExperienceForLevel(level int) int64 {
	var total int64
	for k := 1; k < level; k++ {
		total += int64(math.Floor(100 * math.Pow(float64(k), 1.2)))
	}
	return total
}

// LevelForExperience returns the highest level reachable with xp, capped at the
// specialization's max level.
func (s Specialization) LevelForExperience(xp int64) int {
	maxLevel := s.MaxLevel()
	if maxLevel == 0 {
		return 0
	}
	level := 1
	for level < maxLevel && ExperienceForLevel(level+1) <= xp {
		level++
	}
	return level
}
