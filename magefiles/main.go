package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const buildPackage = "github.com/tidelineproject/tideline/internal/tidectl/build"

var localBin = filepath.Join(os.Getenv("PWD"), "bin")

// Build compiles the scaler and tidectl binaries into bin/, stamping version
// metadata from git.
func Build() error {
	mg.Deps(makeLocalBin)
	flags, err := ldflags()
	if err != nil {
		return err
	}
	for _, name := range []string{"scaler", "tidectl"} {
		output := filepath.Join(localBin, binaryWithExt(name))
		fmt.Printf("Building %s\n", output)
		if err := sh.Run("go", "build", "-ldflags", flags, "-o", output, "./cmd/"+name); err != nil {
			return err
		}
	}
	return nil
}

// Tests runs the unit tests.
func Tests() error {
	return sh.RunV("go", "test", "-v", "./internal/...")
}

// Lint runs golangci-lint over the whole module.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "--timeout", "10m")
}

// LocalRedis starts a redis container for local development. The scaler's
// default config expects it on localhost:6379.
func LocalRedis() error {
	return sh.RunV("docker", "run", "-d", "--name", "tideline-redis", "-p", "6379:6379", "redis:6")
}

// Clean removes build output.
func Clean() error {
	fmt.Println("Cleaning...")
	return os.RemoveAll(localBin)
}

func makeLocalBin() error {
	return os.MkdirAll(localBin, os.ModePerm)
}

func ldflags() (string, error) {
	version, err := gitOutput("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return "", err
	}
	commit, err := gitOutput("rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("-X %[1]s.ReleaseVersion=%[2]s -X %[1]s.GitCommit=%[3]s -X %[1]s.BuildTime=%[4]s",
		buildPackage, version, commit, time.Now().UTC().Format(time.RFC3339)), nil
}

func gitOutput(args ...string) (string, error) {
	return sh.Output("git", args...)
}

func binaryWithExt(name string) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("%s.exe", name)
	}
	return name
}
