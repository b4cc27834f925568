// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// Format selects how replies are printed
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// Formats lists the accepted output formats
var Formats = []string{string(FormatJSON), string(FormatTable)}

// ParseFormat returns the Format named s
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %q", s)
	}
}

// Write prints reply to out in format
func Write(out io.Writer, format Format, reply map[string]any) error {
	switch format {
	case FormatTable:
		return writeTable(out, reply)
	case FormatJSON, "":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reply)
	default:
		return fmt.Errorf("unknown output format: %q", format)
	}
}

func writeTable(out io.Writer, reply map[string]any) error {
	rows := [][]string{}
	flatten("", reply, func(key, value string) {
		rows = append(rows, []string{key, value})
	})
	slices.SortFunc(rows, func(a, b []string) int {
		return strings.Compare(a[0], b[0])
	})

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignLeft
	})
	table.Header([]string{"Field", "Value"})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// flatten emits one entry per leaf of v; nested keys are joined with "."
func flatten(prefix string, v any, emit func(key, value string)) {
	m, ok := v.(map[string]any)
	if !ok {
		emit(prefix, cell(v))
		return
	}
	if len(m) == 0 && prefix != "" {
		emit(prefix, "-")
		return
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flatten(key, m[k], emit)
	}
}

func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, cell(item))
		}
		return strings.Join(parts, ", ")
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
