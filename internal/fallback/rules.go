package fallback

import (
	"fmt"
	"regexp"
	"strings"
)

// Predicate reports whether comment-stripped LaTeX source matches a
// structural condition (a construct is used, or already defined).
type Predicate func(source string) bool

// Pattern builds a Predicate from an RE2 expression.
// Panics if the expression does not compile (rules are defined at startup).
func Pattern(expr string) Predicate {
	re := regexp.MustCompile(expr)
	return re.MatchString
}

// Any returns a Predicate that matches when at least one of preds matches.
func Any(preds ...Predicate) Predicate {
	return func(source string) bool {
		for _, p := range preds {
			if p != nil && p(source) {
				return true
			}
		}
		return false
	}
}

// Rule describes one optional construct that may need a fallback definition.
type Rule struct {
	Name       string    // Identifier reported in Patch.Applied
	Uses       Predicate // Construct is referenced by the document
	Defines    Predicate // Document already provides the construct
	Requires   []string  // Supporting packages
	Definition string    // Guarded definition; empty for package-only rules
}

// Keywords that define an environment. Matched as \keyword or \keyword*.
const envDefiners = `newtheorem|renewtheorem|declaretheorem|spnewtheorem|newenvironment|renewenvironment|` +
	`NewDocumentEnvironment|RenewDocumentEnvironment|ProvideDocumentEnvironment|DeclareDocumentEnvironment|` +
	`newmdtheoremenv|newtcbtheorem`

// Keywords that define a macro.
const macroDefiners = `newcommand|renewcommand|providecommand|DeclareRobustCommand|` +
	`NewDocumentCommand|RenewDocumentCommand|ProvideDocumentCommand|DeclareDocumentCommand|` +
	`DeclareMathOperator|def|gdef|edef|xdef|let`

// macroEnd terminates a control word: anything that is not a letter.
const macroEnd = `(?:[^A-Za-z@]|$)`

// EnvironmentRule returns a rule for a theorem-like environment. The injected
// definition is skipped by TeX when a control sequence of the same name is
// already bound.
func EnvironmentRule(env, title string) Rule {
	q := regexp.QuoteMeta(env)
	return Rule{
		Name:       env,
		Uses:       Pattern(`\\begin\s*\{` + q + `\}`),
		Defines:    Pattern(`\\(?:` + envDefiners + `)\*?\s*(?:\[[^\]]*\]\s*)?\{` + q + `\}`),
		Requires:   []string{"amsthm"},
		Definition: fmt.Sprintf(`\ifcsname %s\endcsname\else\newtheorem{%s}{%s}\fi`, env, env, title),
	}
}

// MacroRule returns a rule for a notation macro \name taking args arguments.
// The definition uses \providecommand so an existing binding is left alone.
func MacroRule(name string, args int, body string, packages ...string) Rule {
	q := regexp.QuoteMeta(name)
	argSpec := ""
	if args > 0 {
		argSpec = fmt.Sprintf("[%d]", args)
	}
	return Rule{
		Name:       `\` + name,
		Uses:       Pattern(`\\` + q + macroEnd),
		Defines:    Pattern(`\\(?:` + macroDefiners + `)\*?\s*\{?\s*\\` + q + macroEnd),
		Requires:   packages,
		Definition: fmt.Sprintf(`\providecommand{\%s}%s{%s}`, name, argSpec, body),
	}
}

// PackageRule returns a rule that only loads pkg when the environment env is
// used and neither the package nor an environment definition is present.
func PackageRule(env, pkg string) Rule {
	q := regexp.QuoteMeta(env)
	return Rule{
		Name: env,
		Uses: Pattern(`\\begin\s*\{` + q + `\}`),
		Defines: Any(
			LoadsPackage(pkg),
			Pattern(`\\(?:`+envDefiners+`)\*?\s*\{`+q+`\}`),
		),
		Requires: []string{pkg},
	}
}

// LoadsPackage returns a Predicate matching \usepackage or \RequirePackage
// declarations that list pkg, with or without options.
func LoadsPackage(pkg string) Predicate {
	q := regexp.QuoteMeta(pkg)
	return Pattern(`\\(?:usepackage|RequirePackage)\s*(?:\[[^\]]*\]\s*)?\{[^}]*\b` + q + `\b[^}]*\}`)
}

// DefaultRules returns the built-in rule set: common theorem-like
// environments, the proof environment, and notation macros.
func DefaultRules() []Rule {
	envs := []struct{ name, title string }{
		{"theorem", "Theorem"},
		{"lemma", "Lemma"},
		{"proposition", "Proposition"},
		{"corollary", "Corollary"},
		{"conjecture", "Conjecture"},
		{"definition", "Definition"},
		{"example", "Example"},
		{"remark", "Remark"},
		{"claim", "Claim"},
	}

	rules := make([]Rule, 0, len(envs)+16)
	for _, e := range envs {
		rules = append(rules, EnvironmentRule(e.name, e.title))
	}
	rules = append(rules, PackageRule("proof", "amsthm"))

	rules = append(rules,
		MacroRule("R", 0, `\mathbb{R}`, "amssymb"),
		MacroRule("N", 0, `\mathbb{N}`, "amssymb"),
		MacroRule("Z", 0, `\mathbb{Z}`, "amssymb"),
		MacroRule("Q", 0, `\mathbb{Q}`, "amssymb"),
		MacroRule("C", 0, `\mathbb{C}`, "amssymb"),
		MacroRule("E", 0, `\mathbb{E}`, "amssymb"),
		MacroRule("Prob", 0, `\mathbb{P}`, "amssymb"),
		MacroRule("eps", 0, `\varepsilon`),
		MacroRule("abs", 1, `\left\lvert #1 \right\rvert`, "amsmath"),
		MacroRule("norm", 1, `\left\lVert #1 \right\rVert`, "amsmath"),
		MacroRule("set", 1, `\left\{ #1 \right\}`),
		MacroRule("floor", 1, `\left\lfloor #1 \right\rfloor`),
		MacroRule("ceil", 1, `\left\lceil #1 \right\rceil`),
		MacroRule("argmin", 0, `\operatorname*{arg\,min}`, "amsmath"),
		MacroRule("argmax", 0, `\operatorname*{arg\,max}`, "amsmath"),
	)
	return rules
}

// RuleNames returns the names of rules, in order.
func RuleNames(rules []Rule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

// Without returns rules minus those whose name is listed in names.
// Names are compared with and without a leading backslash.
func Without(rules []Rule, names ...string) []Rule {
	if len(names) == 0 {
		return rules
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[strings.TrimPrefix(n, `\`)] = true
	}
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if !drop[strings.TrimPrefix(r.Name, `\`)] {
			kept = append(kept, r)
		}
	}
	return kept
}
