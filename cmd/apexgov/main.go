// apexgov is the constitutional governance kernel CLI. It judges
// proposed actions, serves the judgment API, and operates the verdict
// and cooling ledgers.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "render":
		return runRenderCmd(args[2:], stdout, stderr)
	case "serve", "server":
		return runServeCmd(args[2:], stdout, stderr)
	case "stdio":
		return runStdioCmd(args[2:], stdout, stderr)
	case "verify-ledger":
		return runVerifyLedgerCmd(args[2:], stdout, stderr)
	case "cool-status":
		return runCoolStatusCmd(args[2:], stdout, stderr)
	case "cool-bypass":
		return runCoolBypassCmd(args[2:], stdout, stderr)
	case "issue-token":
		return runIssueTokenCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "apexgov - constitutional governance kernel")
	fmt.Fprintln(w, "Agents propose. The kernel disposes.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  apexgov <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "JUDGMENT:")
	fmt.Fprintln(w, "  render         Judge one request (--task, --params, --context, --wait-cooling)")
	fmt.Fprintln(w, "  serve          Run the HTTP judgment API")
	fmt.Fprintln(w, "  stdio          Judge line-delimited JSON requests on stdin")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "LEDGERS:")
	fmt.Fprintln(w, "  verify-ledger  Verify the verdict ledger hash chain")
	fmt.Fprintln(w, "  cool-status    Show cooling windows for a session: cool-status <session>")
	fmt.Fprintln(w, "  cool-bypass    Close a cooling window early: cool-bypass <entry_id> --authority=<token> --reason=<text>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "OPERATOR:")
	fmt.Fprintln(w, "  issue-token    Mint a sovereign authority token (--authority, --ttl)")
	fmt.Fprintln(w, "  help           Show this help")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Exit codes for render: 0 SEAL, 20 PARTIAL, 30 SABAR, 40 VOID,")
	fmt.Fprintln(w, "88 HOLD_888, 100 sealed and cooling completed, 2 usage error.")
	fmt.Fprintln(w, "")
}
