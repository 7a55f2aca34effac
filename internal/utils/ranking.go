package utils

import (
	"math"
	"time"
)

type RankConfig struct {
	Gravity        float64 // time gravity (1.5)
	WeightUpvote   float64 // 1.0
	WeightDownvote float64 // 1.5
	ScaleFactor    float64 // 100
}

var DefaultConfig = RankConfig{
	Gravity:        1.5,
	WeightUpvote:   1.0,
	WeightDownvote: 1.5,
	ScaleFactor:    100.0,
}

// TrendingScore decays a remark's weighted votes by its age in hours.
func TrendingScore(createdAt time.Time, up, down int, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours < 0 {
		hours = 0
	}

	weightedSum := float64(up)*DefaultConfig.WeightUpvote - float64(down)*DefaultConfig.WeightDownvote
	if weightedSum < 0 {
		weightedSum = 0 // keep log10 defined
	}

	numerator := math.Log10(weightedSum+1) * DefaultConfig.ScaleFactor
	decay := math.Pow(hours+2, DefaultConfig.Gravity)

	return numerator / decay
}
