package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
)

type generateArgs struct {
	Kind       string
	Topic      string `json:"topic"`
	Level      string `json:"level,omitempty"`
	Count      int    `json:"count,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Raw        bool   `json:"-"`
}

func parseGenerateArgs(args []string) (*generateArgs, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: skillforge generate <roadmap|quiz|problem> <topic> [flags]")
	}

	g := &generateArgs{Kind: args[0], Topic: args[1]}
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.StringVar(&g.Level, "level", "", "roadmap level (beginner, intermediate, advanced)")
	fs.IntVar(&g.Count, "count", 0, "number of quiz questions")
	fs.StringVar(&g.Difficulty, "difficulty", "", "quiz or problem difficulty (easy, medium, hard)")
	fs.BoolVar(&g.Raw, "json", false, "print the raw JSON document")
	if err := fs.Parse(args[2:]); err != nil {
		return nil, err
	}
	return g, nil
}

// cmdGenerate asks the daemon for a generated document
func cmdGenerate(args []string) error {
	g, err := parseGenerateArgs(args)
	if err != nil {
		return err
	}

	var doc struct {
		Record struct {
			ID       string `json:"id"`
			Provider string `json:"provider"`
		} `json:"record"`
		Body   json.RawMessage `json:"body"`
		Cached bool            `json:"cached"`
	}
	if err := postJSON(daemonAddr()+"/v1/generate/"+g.Kind, g, &doc); err != nil {
		return err
	}

	if g.Raw {
		_, err := os.Stdout.Write(append(doc.Body, '\n'))
		return err
	}

	source := doc.Record.Provider
	if doc.Cached {
		source += ", cached"
	}
	fmt.Printf("%s %s (%s)\n\n", g.Kind, doc.Record.ID, source)
	return printDocument(g.Kind, doc.Body)
}

func printDocument(kind string, body json.RawMessage) error {
	switch kind {
	case "quiz":
		var quiz struct {
			Title     string `json:"title"`
			Questions []struct {
				Question string   `json:"question"`
				Options  []string `json:"options"`
			} `json:"questions"`
		}
		if err := json.Unmarshal(body, &quiz); err != nil {
			return err
		}
		fmt.Println(quiz.Title)
		for i, q := range quiz.Questions {
			fmt.Printf("\n%d. %s\n", i+1, q.Question)
			for j, opt := range q.Options {
				fmt.Printf("   %c) %s\n", 'a'+j, opt)
			}
		}
	case "roadmap":
		var roadmap struct {
			Title string `json:"title"`
			Steps []struct {
				Title         string   `json:"title"`
				Topics        []string `json:"topics"`
				EstimatedDays int      `json:"estimated_days"`
			} `json:"steps"`
		}
		if err := json.Unmarshal(body, &roadmap); err != nil {
			return err
		}
		fmt.Println(roadmap.Title)
		for i, step := range roadmap.Steps {
			fmt.Printf("%2d. %-30s %3dd  %s\n", i+1, step.Title, step.EstimatedDays, strings.Join(step.Topics, ", "))
		}
	default:
		var pretty any
		if err := json.Unmarshal(body, &pretty); err != nil {
			return err
		}
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}
