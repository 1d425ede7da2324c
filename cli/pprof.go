//go:build pprof

package cli

import (
	"context"
	"log/slog"

	"github.com/alecthomas/kong"
	"github.com/pkg/profile"

	"github.com/berkus/linker-script/log"
)

type pprofConfig struct {
	Mode string `default:""      enum:",${pprofModeEnum}" help:"Enable profiling" placeholder:"${enum}" short:"p"`
	Dir  string `default:"pprof"                          help:"Profile output directory" type:"path"`
}

// profileModes maps flag values to pkg/profile mode options.
var profileModes = map[string]func(*profile.Profile){
	"cpu":       profile.CPUProfile,
	"mem":       profile.MemProfile,
	"mutex":     profile.MutexProfile,
	"block":     profile.BlockProfile,
	"trace":     profile.TraceProfile,
	"goroutine": profile.GoroutineProfile,
	"clock":     profile.ClockProfile,
}

func (pprofConfig) vars() kong.Vars {
	return kong.Vars{
		"pprofModeEnum": "cpu,mem,mutex,block,trace,goroutine,clock",
	}
}

func (pprofConfig) group() kong.Group {
	return kong.Group{Key: "pprof", Title: "Profiling (pprof)"}
}

// start starts profiling if a mode is selected.
func (f pprofConfig) start(ctx context.Context) (stop func()) {
	mode, ok := profileModes[f.Mode]
	if !ok {
		return func() {}
	}

	log.DebugContext(ctx, "pprof start",
		slog.String("mode", f.Mode),
		slog.String("dir", f.Dir),
	)

	p := profile.Start(mode, profile.ProfilePath(f.Dir), profile.Quiet)

	return func() {
		log.DebugContext(ctx, "pprof stop", slog.String("mode", f.Mode))
		p.Stop()
	}
}
