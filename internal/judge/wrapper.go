package judge

import (
	"regexp"
)

// CPPPreamble is prepended to C++ solutions that lack a main function
const CPPPreamble = "#include <bits/stdc++.h>\nusing namespace std;\n\n"

type wrapRule struct {
	entryPoint *regexp.Regexp
	preamble   string
}

// The detectors are text heuristics, not parsers: an entry point that only
// appears in a comment or string still counts.
var wrapRules = map[Language]wrapRule{
	LanguageCPP: {
		entryPoint: regexp.MustCompile(`int\s+main\s*\(`),
		preamble:   CPPPreamble,
	},
	LanguageJava: {
		entryPoint: regexp.MustCompile(`public\s+static\s+void\s+main\s*\(`),
	},
	LanguagePython: {
		entryPoint: regexp.MustCompile(`if\s+__name__\s*==\s*['"]__main__['"]|\binput\s*\(|sys\.stdin`),
	},
}

// hasEntryPoint reports whether code already looks like a complete program
func hasEntryPoint(code string, lang Language) bool {
	rule, ok := wrapRules[lang]
	return ok && rule.entryPoint.MatchString(code)
}

// Wrap turns a bare solution into a runnable program. Code that already has
// an entry point is returned unchanged and the driver is ignored. Otherwise
// the language preamble is prepended and the driver, when given, appended
// after a blank line.
func Wrap(code, language, driver string) (string, error) {
	lang, err := ParseLanguage(language)
	if err != nil {
		return "", err
	}

	if hasEntryPoint(code, lang) {
		return code, nil
	}

	rule := wrapRules[lang]

	out := rule.preamble + code
	if driver != "" {
		out += "\n\n" + driver
	}
	return out, nil
}
