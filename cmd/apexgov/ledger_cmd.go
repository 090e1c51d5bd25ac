package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/apexgov/core/pkg/audit"
)

// runVerifyLedgerCmd walks the verdict ledger chain and reports the
// result. Exit 0 means intact, 1 means broken or unreadable.
func runVerifyLedgerCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify-ledger", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "constitution YAML path (optional)")
	asJSON := cmd.Bool("json", false, "emit the result as JSON")
	since := cmd.String("since", "", "also export entries at or after this RFC 3339 timestamp, one JSON object per line")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	var exportFrom time.Time
	if *since != "" {
		var err error
		exportFrom, err = time.Parse(time.RFC3339, *since)
		if err != nil {
			return usageError(stderr, "verify-ledger: --since: %v", err)
		}
	}

	k, err := buildKernel(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "verify-ledger: %v\n", err)
		return 1
	}
	defer k.close()

	seq, head := k.ledger.Head()
	verifyErr := k.ledger.VerifyChain(context.Background())

	if *since != "" && verifyErr == nil {
		entries, err := k.ledger.IterSince(context.Background(), exportFrom)
		if err != nil {
			fmt.Fprintf(stderr, "verify-ledger: export: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				fmt.Fprintf(stderr, "verify-ledger: export: %v\n", err)
				return 1
			}
		}
	}

	if *asJSON {
		result := map[string]any{"intact": verifyErr == nil, "sequence": seq, "head": head}
		if verifyErr != nil {
			result["error"] = verifyErr.Error()
		}
		_ = json.NewEncoder(stdout).Encode(result)
	} else if verifyErr == nil {
		fmt.Fprintf(stdout, "ledger intact: %d entries, head %s\n", seq, head)
	} else {
		fmt.Fprintf(stdout, "ledger BROKEN: %v\n", verifyErr)
	}

	if verifyErr != nil {
		_ = k.audit.Record(context.Background(), audit.EventFailStop, "", "ledger.broken", k.cfg.Ledger.Path, map[string]any{
			"error": verifyErr.Error(),
		})
		return 1
	}
	return 0
}

// popPositional splits a leading non-flag argument off args so that
// "cool-status <session>" and "cool-bypass <entry_id>" work alongside
// the flag forms.
func popPositional(args []string) (string, []string) {
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		return args[0], args[1:]
	}
	return "", args
}

// runCoolStatusCmd prints the cooling windows of a session.
func runCoolStatusCmd(args []string, stdout, stderr io.Writer) int {
	positional, args := popPositional(args)
	cmd := flag.NewFlagSet("cool-status", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "constitution YAML path (optional)")
	session := cmd.String("session", positional, "session id")
	sweep := cmd.Bool("sweep", false, "resolve elapsed windows before reporting")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *session == "" {
		return usageError(stderr, "cool-status: a session id is required")
	}

	k, err := buildKernel(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "cool-status: %v\n", err)
		return 1
	}
	defer k.close()

	if *sweep {
		if _, err := k.cooling.Sweep(context.Background()); err != nil {
			fmt.Fprintf(stderr, "cool-status: sweep: %v\n", err)
			return 1
		}
	}

	entries := k.cooling.BySession(*session)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"session_id":   *session,
		"all_complete": k.cooling.AllComplete(*session),
		"entries":      entries,
	})
	return 0
}

// runCoolBypassCmd closes a cooling window early with sovereign
// authority. The bypass is recorded in both ledgers.
func runCoolBypassCmd(args []string, stdout, stderr io.Writer) int {
	positional, args := popPositional(args)
	cmd := flag.NewFlagSet("cool-bypass", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "constitution YAML path (optional)")
	entry := cmd.String("entry", positional, "cooling entry id")
	token := cmd.String("authority", "", "sovereign authority token")
	reason := cmd.String("reason", "", "why the window is being bypassed")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *entry == "" || *token == "" || *reason == "" {
		return usageError(stderr, "cool-bypass: an entry id, --authority, and --reason are required")
	}

	k, err := buildKernel(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "cool-bypass: %v\n", err)
		return 1
	}
	defer k.close()

	bypassed, err := k.cooling.EmergencyBypass(*entry, *token, *reason)
	if err != nil {
		fmt.Fprintf(stderr, "cool-bypass: %v\n", err)
		return 1
	}
	_ = k.audit.Record(context.Background(), audit.EventBypass, bypassed.Authority, "cooling.bypass", *entry, map[string]any{
		"reason": *reason,
	})
	fmt.Fprintf(stdout, "bypassed %s by %s\n", bypassed.EntryID, bypassed.Authority)
	return 0
}

// runIssueTokenCmd mints a sovereign authority token for operator use.
func runIssueTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "constitution YAML path (optional)")
	authority := cmd.String("authority", "", "name of the human sovereign")
	ttl := cmd.Duration("ttl", time.Hour, "token lifetime")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *authority == "" {
		return usageError(stderr, "issue-token: --authority is required")
	}

	k, err := buildKernel(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "issue-token: %v\n", err)
		return 1
	}
	defer k.close()

	token, err := k.tokens.IssueAuthorityToken(*authority, *ttl)
	if err != nil {
		fmt.Fprintf(stderr, "issue-token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
