// Package judge runs user code against test input through a remote Judge0
// instance or a local Docker backend, and wraps bare solutions into complete
// programs.
package judge

import (
	"context"
	"errors"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrJudgeUnavailable    = errors.New("judge unavailable: rate limited")
	ErrJudgeFailed         = errors.New("judge request failed")
)

// Status labels reported by the judge. The set is external vocabulary and is
// passed through verbatim.
const (
	StatusAccepted            = "Accepted"
	StatusWrongAnswer         = "Wrong Answer"
	StatusTimeLimitExceeded   = "Time Limit Exceeded"
	StatusCompilationError    = "Compilation Error"
	StatusRuntimeError        = "Runtime Error (NZEC)"
	StatusInternalError       = "Internal Error"
	StatusMemoryLimitExceeded = "Memory Limit Exceeded"
)

// Submission is one program run: source, input and limits.
type Submission struct {
	SourceCode     string
	Language       string
	Stdin          string
	ExpectedOutput string

	// CPUTimeLimit in seconds; zero means the backend default
	CPUTimeLimit float64

	// MemoryLimitKB; zero means the backend default
	MemoryLimitKB int
}

// Verdict is the decoded outcome of one run
type Verdict struct {
	Status        string `json:"status"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Time          string `json:"time"`
	MemoryKB      int    `json:"memory"`
}

// Accepted reports whether the judge labelled the run Accepted
func (v *Verdict) Accepted() bool {
	return v.Status == StatusAccepted
}

// Executor runs a submission and returns its verdict
type Executor interface {
	Execute(ctx context.Context, sub Submission) (*Verdict, error)
}
