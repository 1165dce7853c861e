package rules

import "fmt"

// CompatibilityResult is the outcome of a pure compatibility check. An
// invalid result blocks submission of the dependent step with Message.
type CompatibilityResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

func ok() CompatibilityResult { return CompatibilityResult{Valid: true} }

func fail(format string, args ...any) CompatibilityResult {
	return CompatibilityResult{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// ValidateOrganization checks a chosen structure type against the diagnosed
// growth stage. Stage may be empty when diagnosis answers are incomplete; the
// structure choice itself must be known.
func ValidateOrganization(structure StructureType, stage GrowthStage) CompatibilityResult {
	if structure == "" {
		return fail("organization design requires a structure_type")
	}
	if !ValidStructureType(structure) {
		return fail("unknown structure_type %q", structure)
	}
	if stage == GrowthEarly && structure == StructureDivisional {
		return fail("a divisional structure needs multiple product lines; an early-stage company has not reached that scale")
	}
	if stage == GrowthEarly && structure == StructureMatrix {
		return fail("matrix dual reporting adds overhead an early-stage headcount cannot absorb")
	}
	return ok()
}

// ValidatePerformance checks a chosen performance method against the chosen
// organization structure.
func ValidatePerformance(method PerformanceMethod, structure StructureType) CompatibilityResult {
	if method == "" {
		return fail("performance system requires a performance_method")
	}
	if !ValidPerformanceMethod(method) {
		return fail("unknown performance_method %q", method)
	}
	if structure == "" {
		return fail("performance method depends on an organization design; complete the organization step first")
	}
	if method == MethodBSC && (structure == StructureTeam || structure == StructureNetwork) {
		return fail("balanced scorecards assume stable accountable units; %s structures do not provide them", structure)
	}
	return ok()
}

// ValidateCompensation checks a chosen compensation structure against the
// upstream performance system record. Performance-based pay is meaningless
// without a defined performance method, and job-based pay needs the job
// analysis from the organization step.
func ValidateCompensation(comp CompensationStructure, method PerformanceMethod, organizationDone bool) CompatibilityResult {
	if comp == "" {
		return fail("compensation system requires a compensation_structure")
	}
	if !ValidCompensationStructure(comp) {
		return fail("unknown compensation_structure %q", comp)
	}
	if comp == CompPerformanceBased && method == "" {
		return fail("performance-based compensation requires a defined performance_method")
	}
	if comp == CompJobBased && !organizationDone {
		return fail("job-based compensation requires the job analysis from the organization step")
	}
	return ok()
}
