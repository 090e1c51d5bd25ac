// Package classify maps a proposed action to one of five risk classes.
// Classification is a pure function of (task, params, context): the same
// inputs always yield the same class.
package classify

import (
	"regexp"
	"strings"

	"github.com/apexgov/core/pkg/contracts"
)

// KeywordTable holds the classifier keyword sets. Order of evaluation is
// fixed: delete, write, pay, self-modify, then read-only as the default.
// First match wins.
type KeywordTable struct {
	Delete     []string `yaml:"delete" json:"delete"`
	Write      []string `yaml:"write" json:"write"`
	Pay        []string `yaml:"pay" json:"pay"`
	SelfModify []string `yaml:"self_modify" json:"self_modify"`
}

// DefaultKeywords returns the built-in keyword table.
func DefaultKeywords() KeywordTable {
	return KeywordTable{
		Delete:     []string{"delete", "remove", "drop", "truncate", "terminate", "wipe"},
		Write:      []string{"create", "update", "write", "patch", "modify"},
		Pay:        []string{"pay", "transfer", "charge", "issue_credential"},
		SelfModify: []string{"floor threshold", "constitution", "policy engine", "self-modify", "self_modify", "own configuration"},
	}
}

// Classifier classifies actions against a keyword table.
type Classifier struct {
	table KeywordTable
	word  *regexp.Regexp
}

// New builds a Classifier. An empty table falls back to the defaults.
func New(table KeywordTable) *Classifier {
	if len(table.Delete) == 0 && len(table.Write) == 0 && len(table.Pay) == 0 && len(table.SelfModify) == 0 {
		table = DefaultKeywords()
	}
	return &Classifier{
		table: table,
		word:  regexp.MustCompile(`[a-z0-9_][a-z0-9_-]*`),
	}
}

// Classify returns the risk class for the proposed action. It scans the
// task text and parameter keys, lowercased. Classes are tried top-down:
// delete, write, pay, self-modify.
func (c *Classifier) Classify(task string, params map[string]any, context map[string]any) contracts.ActionClass {
	corpus := strings.ToLower(task)
	for k := range params {
		corpus += " " + strings.ToLower(k)
	}
	if target, ok := context["target"].(string); ok {
		corpus += " " + strings.ToLower(target)
	}

	// Phrase keywords (with spaces) match as substrings; single words
	// match token prefixes so inflections ("deletes", "deleting") count.
	switch {
	case c.matchAny(corpus, c.table.Delete):
		return contracts.ClassDelete
	case c.matchAny(corpus, c.table.Write):
		return contracts.ClassWriteReversible
	case c.matchAny(corpus, c.table.Pay):
		return contracts.ClassPay
	case c.matchAny(corpus, c.table.SelfModify):
		return contracts.ClassSelfModify
	}
	return contracts.ClassReadOnly
}

func (c *Classifier) matchAny(corpus string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			if strings.Contains(corpus, kw) {
				return true
			}
			continue
		}
		for _, tok := range c.word.FindAllString(corpus, -1) {
			if strings.HasPrefix(tok, kw) {
				return true
			}
		}
	}
	return false
}
