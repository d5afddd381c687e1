package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	apache "github.com/apache/arrow-go/v18/arrow"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/MzParquet-Engine/arrow"
	"github.com/VanDung-dev/MzParquet-Engine/data"
	"github.com/VanDung-dev/MzParquet-Engine/engine"
	"github.com/VanDung-dev/MzParquet-Engine/storage"
)

// verifySummary is what verify reports about one file.
type verifySummary struct {
	Rows      int64
	RowGroups int
	Spectra   int64
	Peaks     int64
	Layout    data.Layout
	Metadata  map[string]string
}

func (s *verifySummary) complete() bool {
	v, err := strconv.ParseBool(s.Metadata[arrow.MetaComplete])
	return err == nil && v
}

// add checks one record and adds it to the summary.
func (s *verifySummary) add(r apache.Record) error {
	s.Rows += r.NumRows()
	if r.Schema().NumFields() > 0 && r.Schema().Field(0).Name == "scan" {
		s.Layout = data.LayoutLong
		if err := data.ValidateSchema(r, data.PeakSchema()); err != nil {
			return err
		}
		s.Peaks += r.NumRows()
		return nil
	}
	s.Layout = data.LayoutWide
	spectra, err := data.RecordToSpectra(r)
	if err != nil {
		return err
	}
	for _, sp := range spectra {
		if err := sp.Validate(); err != nil {
			return err
		}
		s.Spectra++
		s.Peaks += int64(sp.NumPeaks())
	}
	return nil
}

func newVerifyCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Read an mzparquet file back and report its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := root.loadConfig(); err != nil {
				return &exitError{code: engine.ExitInvalid, err: err}
			}
			store := storage.New()
			defer store.Close()

			p := args[0]
			summary, err := verifyFile(cmd, store, p)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), p, summary)
			if !summary.complete() {
				return &exitError{code: engine.ExitPartial, err: fmt.Errorf("%s is not marked complete", p)}
			}
			return nil
		},
	}
}

func verifyFile(cmd *cobra.Command, store *storage.Store, p string) (*verifySummary, error) {
	ctx := cmd.Context()
	summary := &verifySummary{Metadata: make(map[string]string)}

	name := strings.TrimSuffix(p, storage.PartialPath(""))
	if strings.HasSuffix(name, arrow.FormatIPC.Extension()) {
		in, err := store.Open(ctx, p)
		if err != nil {
			return nil, &exitError{code: engine.ExitIO, err: err}
		}
		defer in.Close()
		schema, err := arrow.ReadIPC(in, func(r apache.Record) error {
			summary.RowGroups++
			return summary.add(r)
		})
		if err != nil {
			return nil, &exitError{code: engine.ExitInvalid, err: err}
		}
		md := schema.Metadata()
		for i, k := range md.Keys() {
			summary.Metadata[k] = md.Values()[i]
		}
		// A stream has no footer. One read up to its end marker was closed, and
		// only a committed name means it was closed after a full conversion.
		if _, ok := summary.Metadata[arrow.MetaComplete]; !ok {
			summary.Metadata[arrow.MetaComplete] = strconv.FormatBool(!storage.IsPartial(p))
		}
		return summary, nil
	}

	in, err := store.ReadAt(ctx, p)
	if err != nil {
		return nil, &exitError{code: engine.ExitIO, err: err}
	}
	defer in.Close()
	info, err := arrow.ReadParquet(ctx, in, 0, summary.add)
	if err != nil {
		return nil, &exitError{code: engine.ExitInvalid, err: err}
	}
	summary.RowGroups = info.RowGroups
	summary.Metadata = info.Metadata
	return summary, nil
}

func printSummary(w io.Writer, p string, s *verifySummary) {
	fmt.Fprintf(w, "File:       %s\n", p)
	fmt.Fprintf(w, "Layout:     %s\n", s.Layout)
	fmt.Fprintf(w, "Rows:       %d\n", s.Rows)
	fmt.Fprintf(w, "Row groups: %d\n", s.RowGroups)
	if s.Layout == data.LayoutWide {
		fmt.Fprintf(w, "Spectra:    %d\n", s.Spectra)
	}
	fmt.Fprintf(w, "Peaks:      %d\n", s.Peaks)
	fmt.Fprintf(w, "Complete:   %v\n", s.complete())

	keys := make([]string, 0, len(s.Metadata))
	for k := range s.Metadata {
		if strings.HasPrefix(k, "mzparquet.") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s\n", k, s.Metadata[k])
	}
}
