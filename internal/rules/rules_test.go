package rules

import "testing"

func TestEveryStageHasStructureRules(t *testing.T) {
	for _, stage := range []GrowthStage{GrowthEarly, GrowthExpansion, GrowthMaturity, GrowthTransition} {
		table := GrowthStageRules(stage)
		if len(table) == 0 {
			t.Fatalf("no structure rules for stage %s", stage)
		}
		for opt, r := range table {
			if r.Weight <= 0 || r.Reason == "" {
				t.Fatalf("stage %s option %s: weight=%d reason=%q", stage, opt, r.Weight, r.Reason)
			}
			if !ValidStructureType(opt) {
				t.Fatalf("stage %s suggests unknown structure %s", stage, opt)
			}
		}
	}
}

func TestEveryStructureHasPerformanceRules(t *testing.T) {
	for _, s := range StructureTypes {
		if len(PerformanceRules(s)) == 0 {
			t.Fatalf("no performance rules for structure %s", s)
		}
	}
	for _, m := range PerformanceMethods {
		if len(CompensationRules(m)) == 0 {
			t.Fatalf("no compensation rules for method %s", m)
		}
	}
}

func TestValidateOrganization(t *testing.T) {
	cases := []struct {
		structure StructureType
		stage     GrowthStage
		valid     bool
	}{
		{StructureTeam, GrowthEarly, true},
		{StructureDivisional, GrowthEarly, false},
		{StructureMatrix, GrowthEarly, false},
		{StructureDivisional, GrowthMaturity, true},
		{StructureTeam, "", true}, // diagnosis answer may be absent
		{"", GrowthEarly, false},
		{"pyramid", GrowthEarly, false},
	}
	for _, c := range cases {
		res := ValidateOrganization(c.structure, c.stage)
		if res.Valid != c.valid {
			t.Errorf("ValidateOrganization(%q,%q) = %v (%s), want %v", c.structure, c.stage, res.Valid, res.Message, c.valid)
		}
		if !res.Valid && res.Message == "" {
			t.Errorf("ValidateOrganization(%q,%q): invalid result without message", c.structure, c.stage)
		}
	}
}

func TestValidatePerformance(t *testing.T) {
	cases := []struct {
		method    PerformanceMethod
		structure StructureType
		valid     bool
	}{
		{MethodOKR, StructureTeam, true},
		{MethodBSC, StructureTeam, false},
		{MethodBSC, StructureNetwork, false},
		{MethodBSC, StructureDivisional, true},
		{MethodOKR, "", false}, // organization design has to come first
		{"", StructureTeam, false},
	}
	for _, c := range cases {
		if res := ValidatePerformance(c.method, c.structure); res.Valid != c.valid {
			t.Errorf("ValidatePerformance(%q,%q) = %v (%s), want %v", c.method, c.structure, res.Valid, res.Message, c.valid)
		}
	}
}

func TestValidateCompensation(t *testing.T) {
	cases := []struct {
		comp    CompensationStructure
		method  PerformanceMethod
		orgDone bool
		valid   bool
	}{
		{CompPerformanceBased, MethodOKR, true, true},
		{CompPerformanceBased, "", true, false},
		{CompJobBased, MethodKPI, true, true},
		{CompJobBased, MethodKPI, false, false},
		{CompSeniorityBased, "", false, true},
		{"", MethodOKR, true, false},
	}
	for _, c := range cases {
		if res := ValidateCompensation(c.comp, c.method, c.orgDone); res.Valid != c.valid {
			t.Errorf("ValidateCompensation(%q,%q,%v) = %v (%s), want %v", c.comp, c.method, c.orgDone, res.Valid, res.Message, c.valid)
		}
	}
}
