// Package recommend ranks organizational choices from upstream step answers.
// It is a pure, stateless computation over the static rule tables and is safe
// to call concurrently.
package recommend

import (
	"sort"

	"orgforge/internal/rules"
)

// Input carries the known upstream answers. Empty fields simply exclude that
// dimension's contribution; nothing here is required.
type Input struct {
	GrowthStage       rules.GrowthStage
	PhilosophyTrait   rules.PhilosophyTrait
	StructureType     rules.StructureType
	PerformanceMethod rules.PerformanceMethod
}

// Recommendation is one ranked option with its summed weight and the reasons
// behind every contributing rule, in contribution order.
type Recommendation struct {
	Option  string   `json:"option"`
	Weight  int      `json:"weight"`
	Reasons []string `json:"reasons,omitempty"`
}

// Structures ranks organization structure types from the growth stage and the
// CEO philosophy trait.
func Structures(in Input) []Recommendation {
	growth := rules.GrowthStageRules(in.GrowthStage)
	philosophy := rules.PhilosophyRules(in.PhilosophyTrait)
	recs := make([]Recommendation, 0, len(rules.StructureTypes))
	for _, opt := range rules.StructureTypes {
		rec := Recommendation{Option: string(opt)}
		if r, ok := growth[opt]; ok {
			rec.Weight += r.Weight
			rec.Reasons = append(rec.Reasons, r.Reason)
		}
		if r, ok := philosophy[opt]; ok {
			rec.Weight += r.Weight
			rec.Reasons = append(rec.Reasons, r.Reason)
		}
		recs = append(recs, rec)
	}
	rank(recs)
	return recs
}

// PerformanceMethods ranks performance methods from the chosen structure.
func PerformanceMethods(in Input) []Recommendation {
	table := rules.PerformanceRules(in.StructureType)
	recs := make([]Recommendation, 0, len(rules.PerformanceMethods))
	for _, opt := range rules.PerformanceMethods {
		rec := Recommendation{Option: string(opt)}
		if r, ok := table[opt]; ok {
			rec.Weight = r.Weight
			rec.Reasons = append(rec.Reasons, r.Reason)
		}
		recs = append(recs, rec)
	}
	rank(recs)
	return recs
}

// CompensationStructures ranks compensation structures from the chosen
// performance method.
func CompensationStructures(in Input) []Recommendation {
	table := rules.CompensationRules(in.PerformanceMethod)
	recs := make([]Recommendation, 0, len(rules.CompensationStructures))
	for _, opt := range rules.CompensationStructures {
		rec := Recommendation{Option: string(opt)}
		if r, ok := table[opt]; ok {
			rec.Weight = r.Weight
			rec.Reasons = append(rec.Reasons, r.Reason)
		}
		recs = append(recs, rec)
	}
	rank(recs)
	return recs
}

// rank sorts by weight descending. SliceStable keeps the option declaration
// order for equal weights, which ties the ranking down deterministically.
func rank(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Weight > recs[j].Weight
	})
}
