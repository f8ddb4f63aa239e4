package state

import (
	"context"
	"os"
	"testing"

	"github.com/temoto/thermorelay/log2"
	tele_api "github.com/temoto/thermorelay/tele"
)

// NewTestContext reads inline config and inits Global.
// Hardware sensor bus may be replaced via preInit before Init.
func NewTestContext(t testing.TB, confString string, preInit func(*Global)) (context.Context, *Global) {
	fs := NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("thermorelay_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log, tele_api.Noop{})
	g.BuildVersion = "test"
	if preInit != nil {
		preInit(g)
	}
	g.MustInit(ctx, MustReadConfig(log, fs, "test-inline"))
	return ctx, g
}
