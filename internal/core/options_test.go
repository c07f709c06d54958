package core

import (
	"reflect"
	"testing"

	"github.com/pgedge/rowdiff/pkg/types"
)

func TestResolveOptionsFillsDefaults(t *testing.T) {
	resolved := ResolveOptions(types.Options{})
	defaults := types.DefaultOptions()

	if resolved.Factor != defaults.Factor {
		t.Errorf("Factor = %d, want %d", resolved.Factor, defaults.Factor)
	}
	if resolved.MaxReport != defaults.MaxReport {
		t.Errorf("MaxReport = %d, want %d", resolved.MaxReport, defaults.MaxReport)
	}
	if resolved.Sep != defaults.Sep {
		t.Errorf("Sep = %q, want %q", resolved.Sep, defaults.Sep)
	}
	if resolved.Null != defaults.Null || resolved.Concat != defaults.Concat {
		t.Errorf("null/concat templates not defaulted: %+v", resolved)
	}
	if resolved.Checksum != defaults.Checksum || resolved.Aggregate != defaults.Aggregate {
		t.Errorf("checksum/aggregate not defaulted: %+v", resolved)
	}
	if !resolved.Temporary || resolved.Cleanup {
		t.Errorf("Temporary/Cleanup = %v/%v, want true/false", resolved.Temporary, resolved.Cleanup)
	}
}

func TestResolveOptionsHonorsExplicitTemporaryAndCleanup(t *testing.T) {
	persistent, cleanup := false, true
	resolved := ResolveOptions(types.Options{Temporary: &persistent, Cleanup: &cleanup})
	if resolved.Temporary {
		t.Errorf("Temporary = %v, want false (explicit override)", resolved.Temporary)
	}
	if !resolved.Cleanup {
		t.Errorf("Cleanup = %v, want true (explicit override)", resolved.Cleanup)
	}
}

func TestResolveOptionsSepChangesConcatTemplate(t *testing.T) {
	resolved := ResolveOptions(types.Options{Sep: ";"})
	if resolved.Sep != ";" {
		t.Fatalf("Sep = %q, want %q", resolved.Sep, ";")
	}
	want := types.ConcatTemplate(";")
	if resolved.Concat != want {
		t.Errorf("Concat = %q, want %q (sep must reach the concat template)", resolved.Concat, want)
	}
}

func TestResolveOptionsExplicitConcatOverridesSep(t *testing.T) {
	custom := "CONCAT(%s)"
	resolved := ResolveOptions(types.Options{Sep: ";", Concat: custom})
	if resolved.Concat != custom {
		t.Errorf("Concat = %q, want caller-supplied template %q unchanged", resolved.Concat, custom)
	}
}

func TestResolveOptionsOverridesWin(t *testing.T) {
	resolved := ResolveOptions(types.Options{Factor: 3, MaxReport: 8, Where: "active=1"})
	if resolved.Factor != 3 || resolved.MaxReport != 8 || resolved.Where != "active=1" {
		t.Errorf("explicit overrides not honored: %+v", resolved)
	}
}

func TestResolveOptionsClampsFactor(t *testing.T) {
	if got := ResolveOptions(types.Options{Factor: 99}).Factor; got != 30 {
		t.Errorf("Factor = %d, want clamped to 30", got)
	}
}

func TestResolveSideOptionsDefaultsKeys(t *testing.T) {
	resolved := resolveSideOptions(types.SideOptions{Table: "students"}, types.SideOptions{})
	if !reflect.DeepEqual(resolved.Keys, []string{"id"}) {
		t.Errorf("Keys = %v, want [id]", resolved.Keys)
	}
	if resolved.KeyLen != 255 {
		t.Errorf("KeyLen = %d, want 255", resolved.KeyLen)
	}
}

func TestResolveSideOptionsFallsBackToFirstSide(t *testing.T) {
	left := resolveSideOptions(types.SideOptions{Table: "students", Keys: []string{"student_id"}, Cols: []string{"name", "grade"}, KeyLen: 64}, types.SideOptions{})
	right := resolveSideOptions(types.SideOptions{Table: "students_replica"}, left)

	if !reflect.DeepEqual(right.Keys, left.Keys) {
		t.Errorf("right.Keys = %v, want fallback to left.Keys = %v", right.Keys, left.Keys)
	}
	if !reflect.DeepEqual(right.Cols, left.Cols) {
		t.Errorf("right.Cols = %v, want fallback to left.Cols = %v", right.Cols, left.Cols)
	}
	if right.KeyLen != left.KeyLen {
		t.Errorf("right.KeyLen = %d, want fallback to left.KeyLen = %d", right.KeyLen, left.KeyLen)
	}
	if right.Table != "students_replica" {
		t.Errorf("right.Table should never fall back, got %q", right.Table)
	}
}
