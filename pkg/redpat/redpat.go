// Package redpat implements the red-pattern reflex: a fast pre-semantic
// scan for syntactically unambiguous destructive intent. A match forces
// VOID before any floor evaluation runs.
//
// All patterns compile into a single case-insensitive RE2 automaton, so a
// scan is linear in the input length regardless of pattern count.
package redpat

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrPatternCompile indicates the pattern table could not be compiled.
var ErrPatternCompile = errors.New("redpat: pattern compile failure")

// Pattern is one named red pattern. Code becomes the reason code suffix
// (reported as "RED::<code>"). Anthropomorphic patterns are negation-aware:
// a negation word within the window before the match suppresses it.
type Pattern struct {
	Code            string `yaml:"code" json:"code"`
	Expr            string `yaml:"expr" json:"expr"`
	Anthropomorphic bool   `yaml:"anthropomorphic,omitempty" json:"anthropomorphic,omitempty"`
}

// DefaultPatterns is the built-in table: mass deletion, disk destruction,
// SQL table destruction, template/token injection, prompt-injection and
// jailbreak markers, privilege escalation, and anthropomorphic claims.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Code: "rm_rf", Expr: `\brm\s+-[a-z]*r[a-z]*f[a-z]*\b|\brm\s+-[a-z]*f[a-z]*r[a-z]*\b`},
		{Code: "mkfs", Expr: `\bmkfs(\.[a-z0-9]+)?\b`},
		{Code: "dd_disk", Expr: `\bdd\s+if=\S+\s+of=/dev/`},
		{Code: "format_disk", Expr: `\bformat\s+[a-z]:`},
		{Code: "drop_table", Expr: `\bdrop\s+(table|database|schema)\b`},
		{Code: "truncate_table", Expr: `\btruncate\s+table\b`},
		{Code: "fork_bomb", Expr: `:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*&\s*\}`},
		{Code: "template_injection", Expr: `\{\{.*\}\}`},
		{Code: "inst_token", Expr: `\[/?INST\]`},
		{Code: "sys_token", Expr: `<</?SYS>>|<\|[^|]*\|>`},
		{Code: "instruction_override", Expr: `(ignore|disregard|forget)\s+(all\s+)?(previous\s+|above\s+)?(instructions?|rules?)`},
		{Code: "guardrail_bypass", Expr: `(override|bypass)\s+(your\s+)?(safety|filters?|guardrails?)`},
		{Code: "prompt_extraction", Expr: `(reveal|show|print|repeat)\s+(me\s+)?(your\s+)?(system\s+)?(prompt|instructions?)`},
		{Code: "role_play_injection", Expr: `(pretend|act|roleplay)\s+(you\s+are|to\s+be|as)\s+(a\s+)?(different|new|unrestricted|unfiltered|malicious|evil)`},
		{Code: "jailbreak", Expr: `\bjailbreak\b|\bdan\s+mode\b|\bdeveloper\s+mode\b|\bdo\s+anything\s+now\b`},
		{Code: "privilege_escalation", Expr: `\bsudo\s+rm\b|\bchmod\s+777\s+/\b|\bcat\s+/etc/shadow\b`},
		{Code: "sentience_claim", Expr: `i\s+am\s+sentient|i\s+am\s+conscious`, Anthropomorphic: true},
		{Code: "soul_claim", Expr: `i\s+have\s+a\s+soul|i\s+have\s+feelings`, Anthropomorphic: true},
	}
}

// negationLexicon suppresses anthropomorphic matches when one of these
// appears within the scan window before the match.
var negationLexicon = []string{"not", "n't", "never", "no ", "cannot", "don't", "do not"}

// negationWindow is the number of bytes scanned before a match.
const negationWindow = 50

// Table is a compiled red-pattern automaton. Read-only after Compile.
type Table struct {
	combined *regexp.Regexp
	// groupCode maps capture group index to pattern code.
	groupCode map[int]string
	anthro    map[string]bool
	order     map[string]int
}

// Compile builds the single combined automaton from the pattern list.
func Compile(patterns []Pattern) (*Table, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: empty pattern table", ErrPatternCompile)
	}

	var sb strings.Builder
	sb.WriteString("(?is)")
	anthro := make(map[string]bool, len(patterns))
	order := make(map[string]int, len(patterns))
	for i, p := range patterns {
		if p.Code == "" || p.Expr == "" {
			return nil, fmt.Errorf("%w: pattern %d missing code or expr", ErrPatternCompile, i)
		}
		if _, err := regexp.Compile(p.Expr); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrPatternCompile, p.Code, err)
		}
		if i > 0 {
			sb.WriteByte('|')
		}
		fmt.Fprintf(&sb, "(?P<%s>%s)", p.Code, p.Expr)
		anthro[p.Code] = p.Anthropomorphic
		order[p.Code] = i
	}

	combined, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: combined table: %v", ErrPatternCompile, err)
	}

	groupCode := make(map[int]string)
	for i, name := range combined.SubexpNames() {
		if name != "" {
			groupCode[i] = name
		}
	}

	return &Table{combined: combined, groupCode: groupCode, anthro: anthro, order: order}, nil
}

// MustCompile compiles the default table; panics on failure. The defaults
// are covered by tests, so a panic here means a broken build.
func MustCompile() *Table {
	t, err := Compile(DefaultPatterns())
	if err != nil {
		panic(err)
	}
	return t
}

// LoadFile reads a YAML pattern list and compiles it.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("redpat: read %s: %w", path, err)
	}
	var patterns []Pattern
	if err := yaml.Unmarshal(raw, &patterns); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPatternCompile, path, err)
	}
	return Compile(patterns)
}

// Check scans the concatenation of task and stringified params and returns
// the matched pattern codes, deduplicated, in table order. An empty result
// means no red pattern fired.
func (t *Table) Check(task string, params map[string]any) []string {
	input := task
	if len(params) > 0 {
		input += " " + stringifyParams(params)
	}
	return t.Scan(input)
}

// Scan runs the automaton over one input string.
func (t *Table) Scan(input string) []string {
	matches := t.combined.FindAllStringSubmatchIndex(input, -1)
	if matches == nil {
		return nil
	}

	seen := make(map[string]bool)
	var codes []string
	for _, m := range matches {
		for group, code := range t.groupCode {
			lo := 2 * group
			if lo+1 >= len(m) || m[lo] < 0 {
				continue
			}
			if t.anthro[code] && NegatedBefore(input, m[lo]) {
				continue
			}
			if !seen[code] {
				seen[code] = true
				codes = append(codes, code)
			}
		}
	}
	sort.Slice(codes, func(i, j int) bool { return t.order[codes[i]] < t.order[codes[j]] })
	return codes
}

// NegatedBefore reports whether a negation word appears within the fixed
// window before index idx. Used for anthropomorphic patterns so that
// explicit denials ("I am not sentient") do not trigger.
func NegatedBefore(s string, idx int) bool {
	lo := idx - negationWindow
	if lo < 0 {
		lo = 0
	}
	window := strings.ToLower(s[lo:idx])
	for _, neg := range negationLexicon {
		if strings.Contains(window, neg) {
			return true
		}
	}
	return false
}

func stringifyParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%v ", k, params[k])
	}
	return sb.String()
}
