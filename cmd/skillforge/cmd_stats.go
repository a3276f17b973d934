package main

import (
	"flag"
	"fmt"
	"net/url"

	"github.com/felixgeelhaar/skillforge/internal/analytics"
	"github.com/felixgeelhaar/skillforge/internal/domain"
)

// cmdProgress prints a user's per-topic counters
func cmdProgress(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: skillforge progress <user> [topic]")
	}
	user := url.PathEscape(args[0])
	addr := daemonAddr()

	if len(args) > 1 {
		var p domain.ProgressCounter
		if err := getJSON(addr+"/v1/progress/"+user+"/"+url.PathEscape(args[1]), &p); err != nil {
			return err
		}
		printCounter(&p)
		return nil
	}

	var resp struct {
		Topics []*domain.ProgressCounter `json:"topics"`
	}
	if err := getJSON(addr+"/v1/progress/"+user, &resp); err != nil {
		return err
	}
	if len(resp.Topics) == 0 {
		fmt.Println("No progress recorded yet.")
		return nil
	}
	for _, p := range resp.Topics {
		printCounter(p)
	}
	return nil
}

func printCounter(p *domain.ProgressCounter) {
	fmt.Printf("%-20s %s %3d%%  solved %d/%d  streak %d\n",
		p.Topic, renderProgressBar(p.Accuracy, 20), p.Accuracy, p.Solved, p.Attempts, p.Streak)
}

// cmdStats prints analytics views for a user
func cmdStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "rows for submissions and progression")
	if len(args) < 1 {
		return fmt.Errorf("usage: skillforge stats <user> [overview|topics|submissions|progression] [--limit n]")
	}
	user := url.PathEscape(args[0])
	view := "overview"
	rest := args[1:]
	if len(rest) > 0 && rest[0] != "" && rest[0][0] != '-' {
		view, rest = rest[0], rest[1:]
	}
	if err := fs.Parse(rest); err != nil {
		return err
	}

	base := daemonAddr() + "/v1/analytics/" + user
	switch view {
	case "overview":
		var o analytics.Overview
		if err := getJSON(base+"/overview", &o); err != nil {
			return err
		}
		fmt.Printf("User:         %s\n", o.UserID)
		fmt.Printf("Attempts:     %d\n", o.TotalAttempts)
		fmt.Printf("Solved:       %d (%d unique)\n", o.TotalSolved, o.UniqueSolved)
		fmt.Printf("Accuracy:     %s %d%%\n", renderProgressBar(o.Accuracy, 20), o.Accuracy)
		fmt.Printf("Best streak:  %d\n", o.BestStreak)
		fmt.Printf("Topics:       %d\n", o.TopicsPracticed)
		if o.LastSolvedAt != nil {
			fmt.Printf("Last solved:  %s\n", o.LastSolvedAt.Local().Format("2006-01-02 15:04"))
		}
		if len(o.TopTopics) > 0 {
			fmt.Println("\nTop topics:")
			for _, t := range o.TopTopics {
				fmt.Printf("  %-20s %d solved\n", t.Topic, t.Solved)
			}
		}
	case "topics":
		var resp struct {
			Topics []analytics.TopicStat `json:"topics"`
		}
		if err := getJSON(base+"/topics", &resp); err != nil {
			return err
		}
		for _, t := range resp.Topics {
			fmt.Printf("%-20s %s %3d%%  %-9s streak %d\n",
				t.Topic, renderProgressBar(t.Accuracy, 20), t.Accuracy, t.Trend, t.Streak)
		}
	case "submissions":
		var resp struct {
			Submissions []*domain.SubmissionRecord `json:"submissions"`
		}
		if err := getJSON(fmt.Sprintf("%s/submissions?limit=%d", base, *limit), &resp); err != nil {
			return err
		}
		for _, s := range resp.Submissions {
			fmt.Printf("%s  %-12s %-20s %-10s %d/%d\n",
				s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Verdict, s.QuestionID, s.Language, s.Passed, s.Total)
		}
	case "progression":
		var resp struct {
			Points []analytics.ProgressPoint `json:"points"`
		}
		if err := getJSON(fmt.Sprintf("%s/progression?limit=%d", base, *limit), &resp); err != nil {
			return err
		}
		for _, p := range resp.Points {
			pct := 0
			if p.Attempts > 0 {
				pct = p.Accepted * 100 / p.Attempts
			}
			fmt.Printf("%s %s %d/%d\n", p.Date, renderProgressBar(pct, 20), p.Accepted, p.Attempts)
		}
	default:
		return fmt.Errorf("unknown stats view %q", view)
	}
	return nil
}
