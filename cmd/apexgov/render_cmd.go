package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/apexgov/core/pkg/contracts"
)

const exitSealedAndCooled = 100

// runRenderCmd judges a single request and prints the response as JSON.
// The exit code encodes the verdict so shell pipelines can gate on it.
func runRenderCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("render", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "constitution YAML path (optional)")
	task := cmd.String("task", "", "proposed action to judge")
	paramsJSON := cmd.String("params", "", "request params as a JSON object")
	contextJSON := cmd.String("context", "", "request context as a JSON object")
	waitCooling := cmd.Bool("wait-cooling", false, "block until the cooling window resolves")
	pollInterval := cmd.Duration("poll", time.Second, "cooling poll interval with --wait-cooling")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *task == "" {
		return usageError(stderr, "render: --task is required")
	}

	req := &contracts.Request{Task: *task}
	if *paramsJSON != "" {
		if err := json.Unmarshal([]byte(*paramsJSON), &req.Params); err != nil {
			return usageError(stderr, "render: --params is not a JSON object: %v", err)
		}
	}
	if *contextJSON != "" {
		if err := json.Unmarshal([]byte(*contextJSON), &req.Context); err != nil {
			return usageError(stderr, "render: --context is not a JSON object: %v", err)
		}
	}

	k, err := buildKernel(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "render: %v\n", err)
		return 1
	}
	defer k.close()

	resp := k.engine.RenderVerdict(context.Background(), req)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		fmt.Fprintf(stderr, "render: encode response: %v\n", err)
		return 1
	}

	if *waitCooling && resp.Verdict == contracts.VerdictSeal {
		if resp.CoolingLedgerID == "" {
			return exitSealedAndCooled
		}
		if err := k.cooling.WaitUntilCooled(context.Background(), resp.CoolingLedgerID, *pollInterval); err != nil {
			fmt.Fprintf(stderr, "render: cooling wait: %v\n", err)
			return resp.Verdict.ExitCode()
		}
		return exitSealedAndCooled
	}
	return resp.Verdict.ExitCode()
}
