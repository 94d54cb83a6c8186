//go:build !unix

package main

import (
	"context"
	"log/slog"

	"github.com/tomopfuku/gobeast/analysis"
)

func pauseOnSignal(context.Context, *analysis.Sampler, *slog.Logger) func() {
	return func() {}
}
