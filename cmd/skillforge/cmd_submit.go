package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

// cmdSubmit sends a submission request file to the daemon
func cmdSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	async := fs.Bool("async", false, "queue the submission instead of waiting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: skillforge submit [--async] <request.json>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	var req map[string]any
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	if *async {
		req["async"] = true
	}

	addr := daemonAddr()
	if *async {
		var queued struct {
			JobID        string `json:"job_id"`
			SubmissionID string `json:"submission_id"`
		}
		if err := postJSON(addr+"/v1/submissions", req, &queued); err != nil {
			return err
		}
		fmt.Printf("Queued job %s (submission %s)\n", queued.JobID, queued.SubmissionID)
		fmt.Printf("Check it with: skillforge job %s\n", queued.JobID)
		return nil
	}

	var out struct {
		Result struct {
			SubmissionID string `json:"submission_id"`
			Passed       int    `json:"passed"`
			Total        int    `json:"total"`
			Verdict      string `json:"verdict"`
			Failures     []struct {
				Index    int    `json:"index"`
				Input    string `json:"input"`
				Expected string `json:"expected"`
				Actual   string `json:"actual"`
				Status   string `json:"status"`
				Stderr   string `json:"stderr"`
				Compile  string `json:"compile_output"`
			} `json:"failures"`
		} `json:"result"`
		Progress *struct {
			Topic    string `json:"topic"`
			Attempts int    `json:"attempts"`
			Solved   int    `json:"solved"`
			Accuracy int    `json:"accuracy"`
			Streak   int    `json:"streak"`
		} `json:"progress"`
		Applied bool `json:"applied"`
	}
	if err := postJSON(addr+"/v1/submissions", req, &out); err != nil {
		return err
	}

	fmt.Printf("Verdict:  %s (%d/%d passed)\n", out.Result.Verdict, out.Result.Passed, out.Result.Total)
	for _, f := range out.Result.Failures {
		fmt.Printf("\nCase %d: %s\n", f.Index+1, f.Status)
		fmt.Printf("  input:    %q\n", f.Input)
		fmt.Printf("  expected: %q\n", f.Expected)
		fmt.Printf("  actual:   %q\n", f.Actual)
		if f.Compile != "" {
			fmt.Printf("  compile:  %s\n", f.Compile)
		}
		if f.Stderr != "" {
			fmt.Printf("  stderr:   %s\n", f.Stderr)
		}
	}
	if p := out.Progress; p != nil {
		fmt.Printf("\n%s: %d/%d solved, accuracy %d%%, streak %d\n", p.Topic, p.Solved, p.Attempts, p.Accuracy, p.Streak)
	}
	if !out.Applied {
		fmt.Println("(already recorded, progress unchanged)")
	}
	return nil
}

// cmdJob prints the status of an asynchronously graded submission
func cmdJob(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: skillforge job <id>")
	}

	var job struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Result *struct {
			Passed  int    `json:"passed"`
			Total   int    `json:"total"`
			Verdict string `json:"verdict"`
		} `json:"result"`
		Applied bool `json:"applied"`
	}
	if err := getJSON(daemonAddr()+"/v1/jobs/"+args[0], &job); err != nil {
		return err
	}

	fmt.Printf("Status:   %s\n", job.Status)
	if job.Result != nil {
		fmt.Printf("Verdict:  %s (%d/%d passed)\n", job.Result.Verdict, job.Result.Passed, job.Result.Total)
	}
	if job.Error != "" {
		fmt.Printf("Error:    %s\n", job.Error)
	}
	return nil
}
