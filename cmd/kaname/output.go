package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/kaname/kaname/internal/connection"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// report is what connect prints when it finishes.
type report struct {
	Connection connection.Snapshot `json:"connection" yaml:"connection"`
	History    []string            `json:"history,omitempty" yaml:"history,omitempty"`
	Turns      []turn              `json:"turns,omitempty" yaml:"turns,omitempty"`
}

type turn struct {
	Prompt     string `json:"prompt" yaml:"prompt"`
	StopReason string `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

func writeReport(w io.Writer, format string, r report) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
