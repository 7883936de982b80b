package data

import (
	"embed"
)

// Samples holds small datasets used by the seed tool and tests.
//
//go:embed samples/*
var Samples embed.FS

// Sample returns the named file from samples/.
func Sample(name string) ([]byte, error) {
	return Samples.ReadFile("samples/" + name)
}
