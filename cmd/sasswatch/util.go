package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/loykin/sasswatch"
	"github.com/loykin/sasswatch/pkg/client"
)

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*sasswatch.Config, error) {
	if path == "" {
		return sasswatch.DefaultConfig(), nil
	}
	cfg, err := sasswatch.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

func outcomeViews(outcomes []sasswatch.Outcome) []client.Outcome {
	out := make([]client.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		v := client.Outcome{Dir: o.Dir, Message: o.Message}
		if o.Err != nil {
			v.Error = o.Err.Error()
		}
		out = append(out, v)
	}
	return out
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}
