package judge

import (
	"fmt"
	"sort"
	"strings"
)

// Language represents a supported programming language
type Language string

const (
	LanguageCPP    Language = "cpp"
	LanguagePython Language = "python"
	LanguageJava   Language = "java"
)

// LanguageConfig holds per-language judge settings
type LanguageConfig struct {
	// Judge0ID is the language_id sent to Judge0
	Judge0ID int

	// DockerImage, SourceFile and the commands drive the Docker backend
	DockerImage    string
	SourceFile     string
	CompileCommand []string
	RunCommand     []string
}

var languageConfigs = map[Language]LanguageConfig{
	LanguageCPP: {
		Judge0ID:       54,
		DockerImage:    "gcc:13",
		SourceFile:     "main.cpp",
		CompileCommand: []string{"g++", "-std=c++17", "-O2", "-o", "main", "main.cpp"},
		RunCommand:     []string{"./main"},
	},
	LanguagePython: {
		Judge0ID:    71,
		DockerImage: "python:3.12-alpine",
		SourceFile:  "main.py",
		RunCommand:  []string{"python3", "main.py"},
	},
	LanguageJava: {
		Judge0ID:       62,
		DockerImage:    "eclipse-temurin:21-jdk-alpine",
		SourceFile:     "Main.java",
		CompileCommand: []string{"javac", "Main.java"},
		RunCommand:     []string{"java", "-Xss64m", "Main"},
	},
}

// IsValid checks if the language is supported
func (l Language) IsValid() bool {
	_, ok := languageConfigs[l]
	return ok
}

func (l Language) String() string {
	return string(l)
}

// ParseLanguage normalizes s and checks it against the closed language table
func ParseLanguage(s string) (Language, error) {
	lang := Language(strings.ToLower(strings.TrimSpace(s)))
	if !lang.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
	}
	return lang, nil
}

// Config returns the configuration for a language
func (l Language) Config() (LanguageConfig, bool) {
	cfg, ok := languageConfigs[l]
	return cfg, ok
}

// Judge0ID returns the Judge0 language id for s
func Judge0ID(s string) (int, error) {
	lang, err := ParseLanguage(s)
	if err != nil {
		return 0, err
	}
	return languageConfigs[lang].Judge0ID, nil
}

// SupportedLanguages returns every language in the table, sorted
func SupportedLanguages() []Language {
	langs := make([]Language, 0, len(languageConfigs))
	for l := range languageConfigs {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}
