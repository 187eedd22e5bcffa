// internal/command/command.go
package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/locus/internal/executor"
	"github.com/xkilldash9x/locus/internal/recovery"
)

// ErrUnparsable is returned when neither the command nor any paraphrase of it matches the grammar.
var ErrUnparsable = errors.New("command could not be parsed")

// DefaultScrollAmount is used by "scroll up|down" without a distance.
const DefaultScrollAmount = 600

// Step is one unit of a parsed command. A copy step reads the value of From and fills Action's
// target with it.
type Step struct {
	Action executor.Descriptor  `json:"action"`
	From   *executor.Descriptor `json:"from,omitempty"`
}

// Command is a parsed natural-language instruction.
type Command struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	// Paraphrase is set when the command only parsed after rewriting.
	Paraphrase string `json:"paraphrase,omitempty"`
	Steps      []Step `json:"steps"`
}

type rule struct {
	re    *regexp.Regexp
	build func(m []string) (Step, error)
}

var grammar = []rule{
	{regexp.MustCompile(`(?i)^copy (.+?) (?:into|to) (.+)$`), func(m []string) (Step, error) {
		from := locate("extract", m[1])
		from.Mode = string(executor.ExtractValue)
		return Step{Action: locate("fill", m[2]), From: &from}, nil
	}},
	{regexp.MustCompile(`(?i)^click(?: on)? (.+)$`), func(m []string) (Step, error) {
		return Step{Action: locate("click", m[1])}, nil
	}},
	{regexp.MustCompile(`(?i)^fill(?: in)? (.+?) with (.+)$`), func(m []string) (Step, error) {
		return fill(m[1], m[2]), nil
	}},
	{regexp.MustCompile(`(?i)^type (.+?) into (.+)$`), func(m []string) (Step, error) {
		return fill(m[2], m[1]), nil
	}},
	{regexp.MustCompile(`(?i)^set (.+?) to (.+)$`), func(m []string) (Step, error) {
		return fill(m[1], m[2]), nil
	}},
	{regexp.MustCompile(`(?i)^scroll (up|down)(?: by)?(?: (\d+)(?: ?px| pixels)?)?$`), func(m []string) (Step, error) {
		amount := float64(DefaultScrollAmount)
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				return Step{}, err
			}
			amount = float64(n)
		}
		return Step{Action: executor.Descriptor{Type: "scroll", Direction: strings.ToLower(m[1]), Amount: amount}}, nil
	}},
	{regexp.MustCompile(`(?i)^scroll to (?:the )?(top|bottom)(?: of the page)?$`), func(m []string) (Step, error) {
		d := executor.Descriptor{Type: "scroll", Direction: "down", Amount: 1e7}
		if strings.EqualFold(m[1], "top") {
			d.Direction = "up"
		}
		return Step{Action: d}, nil
	}},
	{regexp.MustCompile(`(?i)^scroll to (.+)$`), func(m []string) (Step, error) {
		return Step{Action: locate("scroll", m[1])}, nil
	}},
	{regexp.MustCompile(`(?i)^wait(?: for)? (\d+(?:\.\d+)?) ?(ms|milliseconds?|s|secs?|seconds?)?$`), func(m []string) (Step, error) {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Step{}, err
		}
		if !strings.HasPrefix(strings.ToLower(m[2]), "m") {
			n *= 1000
		}
		return Step{Action: executor.Descriptor{Type: "wait", Ms: int(n)}}, nil
	}},
	{regexp.MustCompile(`(?i)^extract(?: the)?(?: (text|value|html) (?:of|from))? (.+)$`), func(m []string) (Step, error) {
		d := locate("extract", m[2])
		d.Mode = strings.ToLower(m[1])
		return Step{Action: d}, nil
	}},
}

// paraphrases rewrite phrasings outside the grammar into one of its forms.
var paraphrases = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)^fill (.+?) (?:copy|copied|copying) from (.+)$`), "copy $2 into $1"},
	{regexp.MustCompile(`(?i)^(?:fill|set) (.+?) (?:from|using) (.+)$`), "copy $2 into $1"},
	{regexp.MustCompile(`(?i)^(?:enter|put|write|input) (.+?) (?:in|into|onto) (.+)$`), "type $1 into $2"},
	{regexp.MustCompile(`(?i)^(?:fill|type|enter) (.+?) (?:as|=) (.+)$`), "fill $1 with $2"},
	{regexp.MustCompile(`(?i)^(?:press|tap|hit|choose|submit) (.+)$`), "click $1"},
	{regexp.MustCompile(`(?i)^(?:go|move|page) (up|down)(.*)$`), "scroll $1$2"},
	{regexp.MustCompile(`(?i)^(?:pause|sleep|delay)(?: for)? (.+)$`), "wait $1"},
	{regexp.MustCompile(`(?i)^(?:read|get|grab|show) (.+)$`), "extract $1"},
	{regexp.MustCompile(`(?i)^(?:please |now |then )+(.+)$`), "$1"},
}

var separators = regexp.MustCompile(`(?i)\s*(?:;|,? and then |,? then )\s*`)

// Parse turns a command into steps. Clauses joined by ";" or "then" become successive steps.
func Parse(raw string) (Command, error) {
	cmd := Command{Raw: raw, Normalized: Normalize(raw)}
	text := collapse(raw)
	if text == "" {
		return cmd, fmt.Errorf("%w: empty command", ErrUnparsable)
	}
	var rewritten []string
	for _, clause := range separators.Split(text, -1) {
		if clause = strings.TrimSpace(clause); clause == "" {
			continue
		}
		step, used, err := parseCorrected(clause)
		if err != nil {
			return cmd, err
		}
		if used != "" {
			rewritten = append(rewritten, used)
		}
		cmd.Steps = append(cmd.Steps, step)
	}
	cmd.Paraphrase = strings.Join(rewritten, "; ")
	return cmd, nil
}

// parseCorrected parses clause with its verb corrected. Misspelled connectors are only fixed when
// the clause does not parse otherwise, since a value may be such a word.
func parseCorrected(clause string) (Step, string, error) {
	clause = correctVerb(clause)
	step, used, err := parseClause(clause)
	if err == nil {
		return step, used, nil
	}
	if fixed := correctConnectors(clause); fixed != clause {
		if step, used, again := parseClause(fixed); again == nil {
			return step, used, nil
		}
	}
	return Step{}, "", err
}

// parseClause tries the grammar, then every paraphrase candidate. It returns the paraphrase used.
func parseClause(clause string) (Step, string, error) {
	if step, ok, err := match(clause); ok || err != nil {
		return step, "", err
	}
	for _, p := range paraphrases {
		if !p.re.MatchString(clause) {
			continue
		}
		candidate := p.re.ReplaceAllString(clause, p.repl)
		if step, ok, err := match(candidate); ok && err == nil {
			return step, candidate, nil
		}
		// A paraphrase may only produce another paraphrasable form, e.g. a "please" prefix.
		for _, q := range paraphrases {
			if q.re.MatchString(candidate) {
				second := q.re.ReplaceAllString(candidate, q.repl)
				if step, ok, err := match(second); ok && err == nil {
					return step, second, nil
				}
			}
		}
	}
	return Step{}, "", fmt.Errorf("%w: %q", ErrUnparsable, clause)
}

func match(clause string) (Step, bool, error) {
	for _, r := range grammar {
		m := r.re.FindStringSubmatch(clause)
		if m == nil {
			continue
		}
		step, err := r.build(m)
		if err != nil {
			return Step{}, false, fmt.Errorf("%w: %v", ErrUnparsable, err)
		}
		if err := validate(step); err != nil {
			return Step{}, false, err
		}
		return step, true, nil
	}
	return Step{}, false, nil
}

func validate(s Step) error {
	if _, err := executor.Decode(s.Action); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if s.From != nil {
		if _, err := executor.Decode(*s.From); err != nil {
			return fmt.Errorf("%w: %v", ErrUnparsable, err)
		}
	}
	return nil
}

func fill(target, value string) Step {
	d := locate("fill", target)
	v := unquote(value)
	d.Value = &v
	return Step{Action: d}
}

var (
	leadingArticle = regexp.MustCompile(`(?i)^(?:the|a|an|my|your)\s+`)
	trailingNoun   = regexp.MustCompile(`(?i)\s+(?:field|box|input|button|link|checkbox|dropdown|textbox|area)$`)
)

// locate builds the descriptor addressing a described element. Anything that looks like a CSS or
// XPath selector is passed through as a selector.
func locate(kind, raw string) executor.Descriptor {
	d := executor.Descriptor{Type: kind}
	text := unquote(raw)
	if looksLikeSelector(text) {
		d.Selector = text
		return d
	}
	if !isQuoted(strings.TrimSpace(raw)) {
		text = clean(text, false)
	}
	desc := leadingArticle.ReplaceAllString(text, "")
	if stripped := trailingNoun.ReplaceAllString(desc, ""); stripped != "" {
		desc = stripped
	}
	d.Target = desc
	if kind == "click" {
		d.Hints = map[string]string{recovery.HintText: desc}
	} else {
		d.Hints = map[string]string{recovery.HintLabel: desc}
	}
	return d
}

func looksLikeSelector(s string) bool {
	if s == "" || strings.ContainsAny(s[:1], "#.[/(") {
		return len(s) > 1
	}
	return strings.ContainsAny(s, "[]=>") && !strings.Contains(s, " ")
}
