package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"nostrrepos/pkg/types"

	"github.com/spf13/cobra"
)

type queryFlags struct {
	ids     []string
	authors []string
	kinds   []int
	tags    []string
	since   int64
	until   int64
	limit   int
	search  string
	filters []string
	format  string
}

func queryCmd() *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Fan a filter out to the read relays and print the merged records",
		Example: `  nostrrepos query --kind 30117 --tag l=Go --limit 20
  nostrrepos query --kind 0 --author <hex> --format table
  nostrrepos query --filter '{"kinds":[30117],"#d":["octocat/hello-world"]}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := flags.build()
			if err != nil {
				return err
			}

			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			records, err := rt.svc.Query(cmd.Context(), filters...)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), records, flags.format)
		},
	}

	cmd.Flags().StringSliceVar(&flags.ids, "id", nil, "record ids")
	cmd.Flags().StringSliceVar(&flags.authors, "author", nil, "author public keys (hex)")
	cmd.Flags().IntSliceVarP(&flags.kinds, "kind", "k", nil, "record kinds")
	cmd.Flags().StringArrayVarP(&flags.tags, "tag", "t", nil, "tag constraint name=value (repeatable)")
	cmd.Flags().Int64Var(&flags.since, "since", 0, "only records created at or after this unix time")
	cmd.Flags().Int64Var(&flags.until, "until", 0, "only records created at or before this unix time")
	cmd.Flags().IntVarP(&flags.limit, "limit", "l", 0, "maximum records per relay")
	cmd.Flags().StringVarP(&flags.search, "search", "s", "", "free-text search (relay support required)")
	cmd.Flags().StringArrayVar(&flags.filters, "filter", nil, "raw filter JSON (repeatable, replaces the other filter flags)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "output format: json or table")

	return cmd
}

// build turns the flags into filters. Raw --filter values take precedence.
func (f *queryFlags) build() ([]types.Filter, error) {
	if len(f.filters) > 0 {
		out := make([]types.Filter, 0, len(f.filters))
		for _, raw := range f.filters {
			var filter types.Filter
			if err := json.Unmarshal([]byte(raw), &filter); err != nil {
				return nil, fmt.Errorf("invalid --filter %q: %w", raw, err)
			}
			out = append(out, filter)
		}
		return out, nil
	}

	filter := types.Filter{
		Kinds:  f.kinds,
		Since:  f.since,
		Until:  f.until,
		Limit:  f.limit,
		Search: f.search,
	}
	for _, id := range f.ids {
		filter.IDs = append(filter.IDs, types.RecordID(id))
	}
	for _, a := range f.authors {
		filter.Authors = append(filter.Authors, types.PubKey(a))
	}
	for _, t := range f.tags {
		name, value, ok := strings.Cut(t, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --tag %q: expected name=value", t)
		}
		if filter.Tags == nil {
			filter.Tags = make(map[string][]string)
		}
		filter.Tags[name] = append(filter.Tags[name], value)
	}
	return []types.Filter{filter}, nil
}

func printRecords(w io.Writer, records []types.Record, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "table":
		fmt.Fprintln(w, renderRecordTable(records))
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func formatTimestamp(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04")
}
