//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var binDir = "bin"

// binaries built by Build, keyed by output name
var commands = map[string]string{
	"server":        "./cmd/server",
	"worker":        "./cmd/worker",
	"schedule_task": "./cmd/schedule_task",
	"mockwebhook":   "./cmd/mockwebhook",
	"test_waha":     "./cmd/test_waha",
}

var Default = Build

// Build compiles every command into bin/
func Build() error {
	mg.Deps(Tidy)

	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	env := map[string]string{"CGO_ENABLED": "0"}
	for name, pkg := range commands {
		out := filepath.Join(binDir, name)
		fmt.Println("Building:", out)
		if err := sh.RunWithV(env, "go", "build", "-trimpath", "-o", out, pkg); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the API server
func Run() error {
	return sh.RunV("go", "run", "./cmd/server")
}

// Worker starts the scheduled task worker
func Worker() error {
	return sh.RunV("go", "run", "./cmd/worker")
}

// Test runs the suite; the sqlite test driver needs cgo
func Test() error {
	fmt.Println("Testing...")
	return sh.RunWithV(map[string]string{"CGO_ENABLED": "1"}, "go", "test", "./...", "-count=1")
}

func TestRace() error {
	fmt.Println("Testing with -race...")
	return sh.RunWithV(map[string]string{"CGO_ENABLED": "1"}, "go", "test", "./...", "-race", "-count=1")
}

func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

func Fmt() error {
	return sh.RunV("gofmt", "-w", "./cmd", "./internal", "./magefile.go")
}

// Check formats, vets and tests
func Check() error {
	mg.SerialDeps(Fmt, Vet, Test)
	fmt.Println("Check OK.")
	return nil
}

func Tidy() error {
	fmt.Println("Tidying go.mod/go.sum...")
	return sh.RunV("go", "mod", "tidy")
}

func Clean() error {
	return os.RemoveAll(binDir)
}
