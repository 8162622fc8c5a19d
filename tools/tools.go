//go:build tools

// Package tools pins development tool dependencies so `go mod tidy` keeps
// them in go.mod. The build tag is never enabled.
package tools

import (
	_ "github.com/DarthSim/hivemind"
	_ "github.com/air-verse/air"
	_ "github.com/gzuidhof/tygo"
)
