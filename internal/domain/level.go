package domain

import (
	"math"
	"strings"
)

const (
	// FirstLevelThreshold is the XP needed to reach level 2.
	FirstLevelThreshold int64 = 50
	// LevelGrowth scales each threshold from the previous one.
	LevelGrowth = 1.5

	progressBarCells = 10
)

// Level is derived from XP and never stored.
type Level struct {
	Level       int    `json:"level"`
	Progress    int    `json:"progress"`
	ProgressBar string `json:"progressBar"`
	// NextLevelXP is the threshold that unlocks the next level.
	NextLevelXP int64 `json:"nextLevelXp"`
}

// LevelFor walks the threshold curve upward while xp reaches the current
// threshold. Progress is the position between the previous and the current
// threshold, clamped to [0,100] and rounded. Thresholds saturate at
// math.MaxInt64, which is the last level.
func LevelFor(xp int64) Level {
	level := 1
	prev := int64(0)
	threshold := FirstLevelThreshold
	for xp >= threshold {
		level++
		prev = threshold
		if threshold == math.MaxInt64 {
			break
		}
		threshold = nextThreshold(threshold)
	}

	progress := 100
	if threshold > prev {
		pct := float64(xp-prev) / float64(threshold-prev) * 100
		progress = int(math.Round(math.Max(0, math.Min(100, pct))))
	}

	return Level{
		Level:       level,
		Progress:    progress,
		ProgressBar: progressBar(progress),
		NextLevelXP: threshold,
	}
}

func nextThreshold(current int64) int64 {
	f := math.Floor(float64(current) * LevelGrowth)
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	next := int64(f)
	if next <= current {
		next = current + 1
	}
	return next
}

func progressBar(progress int) string {
	filled := int(math.Round(float64(progress) / 100 * progressBarCells))
	return strings.Repeat("█", filled) + strings.Repeat("-", progressBarCells-filled)
}
