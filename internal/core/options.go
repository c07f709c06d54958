package core

import (
	"github.com/pgedge/rowdiff/pkg/config"
	"github.com/pgedge/rowdiff/pkg/types"
)

// ResolvedOptions is the fully-merged, validated comparison options for
// one comparator run. Unlike the source pattern this replaces (a
// side-specific option hash that falls back to the other side's value
// at use time), resolution happens once, explicitly, right after
// construction: every side holds its own complete, final Options.
type ResolvedOptions struct {
	Factor     int
	MaxLevels  int
	MaxReport  int
	Sep        string
	Where      string
	Prefix     string
	Temporary  bool
	Cleanup    bool
	Parallel   bool
	NumRecords int64

	Null      string
	Concat    string
	Checksum  string
	Aggregate string
}

// ResolveOptions merges user-supplied options over the documented
// defaults and clamps factor to [1,30]. Callers normally start from
// types.DefaultOptions() and override only what they need; any field
// still at its zero value here is filled from the defaults table, so
// passing a bare types.Options{} is equivalent to the documented
// defaults.
func ResolveOptions(opts types.Options) ResolvedOptions {
	defaults := types.DefaultOptions()

	sep := orString(opts.Sep, defaults.Sep)

	// concat composes the multi-column key, so it must reflect sep
	// whenever the caller leaves concat itself unset: otherwise setting
	// sep alone (the documented knob) would never change anything, since
	// the default concat template would still hard-code the default
	// separator. types.DefaultOptions() fills Concat with that default
	// template, so it counts as unset here too. A caller who supplies any
	// other concat template takes full control of it and opts out of this
	// derivation.
	concat := opts.Concat
	if concat == "" || concat == defaults.Concat {
		concat = types.ConcatTemplate(sep)
	}
	temporary := config.BoolOr(opts.Temporary, *defaults.Temporary)

	return ResolvedOptions{
		Factor:     ClampFactor(orInt(opts.Factor, defaults.Factor)),
		MaxLevels:  opts.MaxLevels,
		MaxReport:  orInt(opts.MaxReport, defaults.MaxReport),
		Sep:        sep,
		Where:      opts.Where,
		Prefix:     orString(opts.Prefix, defaults.Prefix),
		Null:       orString(opts.Null, defaults.Null),
		Concat:     concat,
		Checksum:   orString(opts.Checksum, defaults.Checksum),
		Aggregate:  orString(opts.Aggregate, defaults.Aggregate),
		Temporary:  temporary,
		Cleanup:    config.BoolOr(opts.Cleanup, !temporary),
		Parallel:   opts.Parallel,
		NumRecords: opts.NumRecords,
	}
}

// resolveSideOptions merges a side's inputs against the invariant
// defaults (keys=["id"], keylen=255) and, for the second side, against
// the first side's values for any field left unset. The merge happens
// once here; nothing later falls back to the other side.
func resolveSideOptions(primary, fallback types.SideOptions) types.SideOptions {
	defaults := types.DefaultSideOptions()

	resolved := primary
	if len(resolved.Keys) == 0 {
		if len(fallback.Keys) > 0 {
			resolved.Keys = fallback.Keys
		} else {
			resolved.Keys = defaults.Keys
		}
	}
	if resolved.KeyLen == 0 {
		if fallback.KeyLen != 0 {
			resolved.KeyLen = fallback.KeyLen
		} else {
			resolved.KeyLen = defaults.KeyLen
		}
	}
	if len(resolved.Cols) == 0 && len(fallback.Cols) > 0 {
		resolved.Cols = fallback.Cols
	}
	return resolved
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

