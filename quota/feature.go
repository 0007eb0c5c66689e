package quota

import (
	"time"

	"github.com/creastat/assistant"
)

// Feature is a metered capability.
type Feature string

const (
	FeatureImage     Feature = "image"
	FeatureVideo     Feature = "video"
	FeaturePPT       Feature = "ppt"
	FeaturePPTSlides Feature = "ppt_slides"
)

// Unlimited is the allowance used for tiers without a practical cap.
const Unlimited int64 = 999999

// Allowances maps tier and feature to a daily allowance.
type Allowances map[assistant.Tier]map[Feature]int64

// DefaultAllowances is the built-in allowance table.
var DefaultAllowances = Allowances{
	assistant.TierFree:    {FeatureImage: 5, FeatureVideo: 0, FeaturePPT: 1, FeaturePPTSlides: 10},
	assistant.TierStudent: {FeatureImage: 20, FeatureVideo: 2, FeaturePPT: 5, FeaturePPTSlides: 60},
	assistant.TierCreator: {FeatureImage: 100, FeatureVideo: 10, FeaturePPT: 20, FeaturePPTSlides: 300},
	assistant.TierPro:     {FeatureImage: Unlimited, FeatureVideo: Unlimited, FeaturePPT: Unlimited, FeaturePPTSlides: Unlimited},
	assistant.TierStudio:  {FeatureImage: Unlimited, FeatureVideo: Unlimited, FeaturePPT: Unlimited, FeaturePPTSlides: Unlimited},
}

// Allowed returns the allowance for the pair. Unknown pairs resolve to 0.
func (a Allowances) Allowed(tier assistant.Tier, feature Feature) int64 {
	return a[tier][feature]
}

// Features lists the metered features in a stable order.
func Features() []Feature {
	return []Feature{FeatureImage, FeatureVideo, FeaturePPT, FeaturePPTSlides}
}

// DayKey returns the UTC calendar date of t.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Ledger holds per-day usage counters. Absent days and features count as zero.
type Ledger map[string]map[Feature]int64

// Used returns the counter for day and feature.
func (l Ledger) Used(day string, feature Feature) int64 {
	return l[day][feature]
}

// Add increments the counter for day and feature.
func (l Ledger) Add(day string, feature Feature, amount int64) {
	counters, ok := l[day]
	if !ok {
		counters = make(map[Feature]int64)
		l[day] = counters
	}
	counters[feature] += amount
}
