// Package cli_test drives the ravelctl binary end to end through
// rsc.io/script: each testdata/*.txt file is a small transcript of
// commands and expected stdout/stderr against a throwaway database.
package cli_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

var ravelctlPath string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	dir, err := os.MkdirTemp("", "ravelctl-bin")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	ravelctlPath = filepath.Join(dir, "ravelctl")
	build := exec.Command("go", "build", "-o", ravelctlPath, "github.com/ravelhq/ravel/cmd/ravelctl")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		panic(err)
	}

	return m.Run()
}

func TestScripts(t *testing.T) {
	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
	}
	engine.Cmds["ravelctl"] = script.Program(ravelctlPath, nil, 30*time.Second)

	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
	}
	scripttest.Test(t, context.Background(), engine, env, "testdata/*.txt")
}
