//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Build compiles the server binary.
func Build() error {
	fmt.Println("Building server...")
	return sh.RunV("go", "build", "-o", "bin/server", "./cmd/server")
}

// Test runs all tests with race detection.
func Test() error {
	fmt.Println("Running tests...")
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Cover runs tests with coverage output.
func Cover() error {
	if err := sh.RunV("go", "test", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func=coverage.out")
}

// Lint runs go vet.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Swagger regenerates the API documentation.
func Swagger() error {
	fmt.Println("Generating swagger docs...")
	return sh.RunV("swag", "init",
		"-g", "cmd/server/main.go",
		"-o", "cmd/server/docs",
		"--outputTypes", "go")
}

// All runs lint, tests and build.
func All() {
	mg.SerialDeps(Lint, Test, Build)
}
