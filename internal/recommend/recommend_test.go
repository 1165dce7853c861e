package recommend

import (
	"reflect"
	"testing"

	"orgforge/internal/rules"
)

func TestStructuresSumAcrossDimensions(t *testing.T) {
	in := Input{GrowthStage: rules.GrowthEarly, PhilosophyTrait: rules.TraitDemocratic}
	recs := Structures(in)
	if recs[0].Option != "team" {
		t.Fatalf("top option = %s, want team", recs[0].Option)
	}
	// early contributes 4 and democratic contributes 4
	if recs[0].Weight != 8 {
		t.Fatalf("team weight = %d, want 8", recs[0].Weight)
	}
	if len(recs[0].Reasons) != 2 {
		t.Fatalf("team reasons = %d, want one per contributing rule", len(recs[0].Reasons))
	}
	if len(recs) != len(rules.StructureTypes) {
		t.Fatalf("got %d options, want all %d", len(recs), len(rules.StructureTypes))
	}
}

func TestStructuresDeterministic(t *testing.T) {
	in := Input{GrowthStage: rules.GrowthMaturity, PhilosophyTrait: rules.TraitConservative}
	first := Structures(in)
	for i := 0; i < 10; i++ {
		if got := Structures(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs:\n%v\n%v", i, got, first)
		}
	}
}

func TestTieBreakFollowsDeclarationOrder(t *testing.T) {
	// with no inputs every option scores zero; the ranking must fall back to
	// declaration order rather than map iteration order
	recs := Structures(Input{})
	for i, opt := range rules.StructureTypes {
		if recs[i].Option != string(opt) {
			t.Fatalf("rank %d = %s, want %s", i, recs[i].Option, opt)
		}
		if recs[i].Weight != 0 {
			t.Fatalf("empty input produced weight %d for %s", recs[i].Weight, recs[i].Option)
		}
	}
}

func TestPerformanceMethodsFromStructure(t *testing.T) {
	recs := PerformanceMethods(Input{StructureType: rules.StructureTeam})
	if recs[0].Option != "okr" || recs[0].Weight != 4 {
		t.Fatalf("top method = %s (%d), want okr (4)", recs[0].Option, recs[0].Weight)
	}
}

func TestCompensationStructuresFromMethod(t *testing.T) {
	recs := CompensationStructures(Input{PerformanceMethod: rules.MethodOKR})
	if recs[0].Option != "performance_based" || recs[0].Weight != 4 {
		t.Fatalf("top compensation = %s (%d), want performance_based (4)", recs[0].Option, recs[0].Weight)
	}
}
