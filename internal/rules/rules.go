// Package rules holds the static weighted rule tables behind the
// recommendation engine. The tables are built once as package data and are
// never mutated; given identical inputs every lookup returns identical
// weights, which the audit trail and the tests rely on.
package rules

// GrowthStage comes from the diagnosis step.
type GrowthStage string

const (
	GrowthEarly      GrowthStage = "early"
	GrowthExpansion  GrowthStage = "expansion"
	GrowthMaturity   GrowthStage = "maturity"
	GrowthTransition GrowthStage = "transition"
)

// PhilosophyTrait comes from the CEO philosophy step.
type PhilosophyTrait string

const (
	TraitDemocratic    PhilosophyTrait = "democratic"
	TraitAuthoritative PhilosophyTrait = "authoritative"
	TraitInnovative    PhilosophyTrait = "innovative"
	TraitConservative  PhilosophyTrait = "conservative"
)

// StructureType is an organization design choice.
type StructureType string

const (
	StructureFunctional StructureType = "functional"
	StructureTeam       StructureType = "team"
	StructureDivisional StructureType = "divisional"
	StructureMatrix     StructureType = "matrix"
	StructureNetwork    StructureType = "network"
)

// PerformanceMethod is a performance system choice.
type PerformanceMethod string

const (
	MethodMBO       PerformanceMethod = "mbo"
	MethodOKR       PerformanceMethod = "okr"
	MethodKPI       PerformanceMethod = "kpi"
	MethodBSC       PerformanceMethod = "bsc"
	MethodMultiview PerformanceMethod = "multiview" // 360-degree review
)

// CompensationStructure is a compensation system choice.
type CompensationStructure string

const (
	CompJobBased         CompensationStructure = "job_based"
	CompSkillBased       CompensationStructure = "skill_based"
	CompPerformanceBased CompensationStructure = "performance_based"
	CompSeniorityBased   CompensationStructure = "seniority_based"
)

// StructureTypes lists options in declaration order; the recommendation
// ranking breaks weight ties by this order.
var StructureTypes = []StructureType{
	StructureFunctional,
	StructureTeam,
	StructureDivisional,
	StructureMatrix,
	StructureNetwork,
}

var PerformanceMethods = []PerformanceMethod{
	MethodMBO,
	MethodOKR,
	MethodKPI,
	MethodBSC,
	MethodMultiview,
}

var CompensationStructures = []CompensationStructure{
	CompJobBased,
	CompSkillBased,
	CompPerformanceBased,
	CompSeniorityBased,
}

// Rule is one weighted suggestion with its human-readable rationale.
type Rule struct {
	Weight int
	Reason string
}

var growthStageRules = map[GrowthStage]map[StructureType]Rule{
	GrowthEarly: {
		StructureTeam:       {Weight: 4, Reason: "early-stage headcount stays small; fluid teams avoid premature hierarchy"},
		StructureFunctional: {Weight: 3, Reason: "a light functional split keeps early specialists focused"},
		StructureNetwork:    {Weight: 2, Reason: "outsourcing non-core work suits an early-stage cost base"},
	},
	GrowthExpansion: {
		StructureFunctional: {Weight: 4, Reason: "rapid hiring needs clear functional reporting lines"},
		StructureDivisional: {Weight: 3, Reason: "new products or regions can carry their own divisions"},
		StructureTeam:       {Weight: 2, Reason: "cross-functional teams keep expansion work moving between functions"},
	},
	GrowthMaturity: {
		StructureDivisional: {Weight: 4, Reason: "mature multi-line businesses run best as accountable divisions"},
		StructureMatrix:     {Weight: 3, Reason: "shared functions across stable divisions justify a matrix"},
		StructureFunctional: {Weight: 2, Reason: "a single-line mature business can stay functional"},
	},
	GrowthTransition: {
		StructureNetwork: {Weight: 4, Reason: "a company in transition keeps only core capabilities in-house"},
		StructureTeam:    {Weight: 3, Reason: "turnaround work is project-shaped; teams reconfigure fastest"},
		StructureMatrix:  {Weight: 2, Reason: "dual reporting lets transition programs borrow line capacity"},
	},
}

var philosophyRules = map[PhilosophyTrait]map[StructureType]Rule{
	TraitDemocratic: {
		StructureTeam:    {Weight: 4, Reason: "a democratic leadership style thrives on self-organizing teams"},
		StructureMatrix:  {Weight: 2, Reason: "shared decision rights fit matrix dual authority"},
		StructureNetwork: {Weight: 2, Reason: "distributed partners match distributed decision-making"},
	},
	TraitAuthoritative: {
		StructureFunctional: {Weight: 4, Reason: "single chains of command match a directive leadership style"},
		StructureDivisional: {Weight: 3, Reason: "division heads give a directive CEO clear single points of accountability"},
	},
	TraitInnovative: {
		StructureNetwork: {Weight: 4, Reason: "an innovation-first philosophy favors porous external boundaries"},
		StructureTeam:    {Weight: 3, Reason: "small autonomous teams iterate fastest on new ideas"},
		StructureMatrix:  {Weight: 2, Reason: "matrix staffing moves specialists onto new bets quickly"},
	},
	TraitConservative: {
		StructureFunctional: {Weight: 3, Reason: "a stability-first philosophy keeps proven functional lines"},
		StructureDivisional: {Weight: 3, Reason: "divisions contain risk within predictable units"},
	},
}

var performanceRules = map[StructureType]map[PerformanceMethod]Rule{
	StructureFunctional: {
		MethodKPI: {Weight: 4, Reason: "functional silos measure well against per-function KPIs"},
		MethodMBO: {Weight: 3, Reason: "cascaded objectives follow the functional reporting line"},
	},
	StructureTeam: {
		MethodOKR:       {Weight: 4, Reason: "team structures align through shared transparent OKRs"},
		MethodMultiview: {Weight: 3, Reason: "flat teams need peer input, not just manager reviews"},
	},
	StructureDivisional: {
		MethodBSC: {Weight: 4, Reason: "divisions balance finance, customer and process via scorecards"},
		MethodKPI: {Weight: 3, Reason: "per-division KPIs make unit performance comparable"},
	},
	StructureMatrix: {
		MethodMBO:       {Weight: 4, Reason: "negotiated objectives reconcile matrix dual reporting"},
		MethodMultiview: {Weight: 3, Reason: "multiple reporting lines need multi-rater feedback"},
	},
	StructureNetwork: {
		MethodOKR: {Weight: 4, Reason: "outcome-based OKRs coordinate loosely coupled network nodes"},
		MethodKPI: {Weight: 2, Reason: "partner contracts reduce to a few hard KPIs"},
	},
}

var compensationRules = map[PerformanceMethod]map[CompensationStructure]Rule{
	MethodMBO: {
		CompJobBased:         {Weight: 3, Reason: "MBO targets attach naturally to defined jobs"},
		CompPerformanceBased: {Weight: 3, Reason: "objective attainment converts directly into variable pay"},
	},
	MethodOKR: {
		CompPerformanceBased: {Weight: 4, Reason: "OKR scoring gives performance pay a measurable basis"},
		CompSkillBased:       {Weight: 2, Reason: "stretch OKRs reward capability growth as much as output"},
	},
	MethodKPI: {
		CompPerformanceBased: {Weight: 4, Reason: "KPI attainment is the cleanest driver for incentive pay"},
		CompJobBased:         {Weight: 2, Reason: "KPI ownership maps onto job definitions"},
	},
	MethodBSC: {
		CompJobBased:   {Weight: 4, Reason: "scorecard perspectives assume stable, graded job structures"},
		CompSkillBased: {Weight: 2, Reason: "learning-and-growth perspective rewards skill acquisition"},
	},
	MethodMultiview: {
		CompSkillBased:     {Weight: 4, Reason: "multi-rater feedback evaluates competencies, which skill pay rewards"},
		CompSeniorityBased: {Weight: 2, Reason: "peer review softens rank pressure in tenure-based pay"},
	},
}

// GrowthStageRules returns the structure suggestions for a growth stage.
// The map is shared package data; callers must not mutate it.
func GrowthStageRules(stage GrowthStage) map[StructureType]Rule {
	return growthStageRules[stage]
}

// PhilosophyRules returns the structure suggestions for a philosophy trait.
func PhilosophyRules(trait PhilosophyTrait) map[StructureType]Rule {
	return philosophyRules[trait]
}

// PerformanceRules returns the performance-method suggestions for a chosen
// structure type.
func PerformanceRules(structure StructureType) map[PerformanceMethod]Rule {
	return performanceRules[structure]
}

// CompensationRules returns the compensation suggestions for a chosen
// performance method.
func CompensationRules(method PerformanceMethod) map[CompensationStructure]Rule {
	return compensationRules[method]
}

func ValidGrowthStage(s GrowthStage) bool {
	_, ok := growthStageRules[s]
	return ok
}

func ValidPhilosophyTrait(t PhilosophyTrait) bool {
	_, ok := philosophyRules[t]
	return ok
}

func ValidStructureType(s StructureType) bool {
	for _, v := range StructureTypes {
		if v == s {
			return true
		}
	}
	return false
}

func ValidPerformanceMethod(m PerformanceMethod) bool {
	for _, v := range PerformanceMethods {
		if v == m {
			return true
		}
	}
	return false
}

func ValidCompensationStructure(c CompensationStructure) bool {
	for _, v := range CompensationStructures {
		if v == c {
			return true
		}
	}
	return false
}
