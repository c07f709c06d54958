package server

import (
	"testing"

	"github.com/pgedge/rowdiff/pkg/types"
)

func TestOptionsRequestDefaultsMatchEngineDefaults(t *testing.T) {
	got := optionsRequest{}.toOptions()
	want := types.DefaultOptions()
	if got.Factor != want.Factor || got.Prefix != want.Prefix || got.Checksum != want.Checksum {
		t.Fatalf("defaults diverged: got %+v, want %+v", got, want)
	}
	if !*got.Temporary || *got.Cleanup {
		t.Fatalf("expected temporary=true, cleanup=false by default, got %+v", got)
	}
}

func TestOptionsRequestOverridesPersistentAndNoCleanup(t *testing.T) {
	yes := true
	got := optionsRequest{Persistent: &yes, NoCleanup: &yes, Factor: 11}.toOptions()
	if *got.Temporary {
		t.Fatal("Persistent: true should disable Temporary")
	}
	if *got.Cleanup {
		t.Fatal("NoCleanup: true should disable Cleanup")
	}
	if got.Factor != 11 {
		t.Fatalf("Factor = %d, want 11", got.Factor)
	}
}

func TestOptionsRequestZeroFactorFallsBackToDefault(t *testing.T) {
	got := optionsRequest{}.toOptions()
	if got.Factor != types.DefaultOptions().Factor {
		t.Fatalf("Factor = %d, want default %d", got.Factor, types.DefaultOptions().Factor)
	}
}
