package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"audience/internal/source"
	"audience/internal/upload"
)

type validateFlags struct {
	maxRows    int
	vocabulary string
	asJSON     bool
	jobs       int
	list       string
	retries    int
}

// fileResult is the outcome of validating one file.
type fileResult struct {
	File    string          `json:"file"`
	OK      bool            `json:"ok"`
	Message string          `json:"message,omitempty"`
	Format  string          `json:"format,omitempty"`
	Preview *upload.Preview `json:"preview,omitempty"`
}

func newValidateCmd(root *rootFlags) *cobra.Command {
	f := &validateFlags{}
	cmd := &cobra.Command{
		Use:   "validate [FILE|URL]...",
		Short: "Validate CSV or Excel files and print a preview",
		Long: `Validates each file the way the upload API does: the file must parse,
contain at least one data row and stay within the row limit. Missing required
columns are reported but do not fail the file.

Arguments may be local paths or http(s) URLs. --list reads more references
from a file, one per line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := args
			if f.list != "" {
				more, err := source.ReadList(f.list)
				if err != nil {
					return err
				}
				refs = append(refs, more...)
			}
			if len(refs) == 0 {
				return fmt.Errorf("no files to validate")
			}

			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if f.vocabulary != "" {
				cfg.Upload.Vocabulary = f.vocabulary
				cfg.Upload.RequiredColumns = nil
			}
			if f.maxRows > 0 {
				cfg.Upload.MaxRows = f.maxRows
			}
			opt, err := cfg.UploadOptions(log)
			if err != nil {
				return err
			}

			client := source.NewClient(source.ClientConfig{MaxRetries: f.retries})
			results := validateFiles(cmd, refs, client, opt, f.jobs, log)
			if err := printResults(cmd.OutOrStdout(), results, f.asJSON); err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if !r.OK {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed validation", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&f.maxRows, "max-rows", 0, "maximum data rows per file (default from config)")
	cmd.Flags().StringVar(&f.vocabulary, "vocabulary", "", `required column set: "customer" or "legacy"`)
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print results as JSON")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 4, "files validated in parallel")
	cmd.Flags().StringVar(&f.list, "list", "", "file listing paths or URLs to validate")
	cmd.Flags().IntVar(&f.retries, "retries", 3, "retries for URLs on 429, 5xx or network errors")
	return cmd
}

// validateFiles validates refs with at most jobs in flight. Results keep the
// argument order.
func validateFiles(cmd *cobra.Command, refs []string, client *source.Client, opt upload.Options, jobs int, log *zap.Logger) []fileResult {
	results := make([]fileResult, len(refs))
	g, ctx := errgroup.WithContext(cmd.Context())
	if jobs < 1 {
		jobs = 1
	}
	g.SetLimit(jobs)

	for i, ref := range refs {
		g.Go(func() error {
			res := fileResult{File: ref}
			fh, err := source.For(ref, client).Open(ctx)
			if err != nil {
				res.Message = upload.UserMessage(&upload.ReadError{Err: err})
				log.Debug("open failed", zap.String("file", ref), zap.Error(err))
				results[i] = res
				return nil
			}
			defer fh.Close()

			out, err := upload.ValidateReader(ctx, fh, opt)
			if err != nil {
				res.Message = upload.UserMessage(err)
				log.Debug("validation failed", zap.String("file", ref), zap.Error(err))
				results[i] = res
				return nil
			}
			res.OK = true
			res.Format = string(out.Format)
			res.Preview = &out.Preview
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func printResults(w io.Writer, results []fileResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		if !r.OK {
			fmt.Fprintf(w, "FAIL %s: %s\n", r.File, r.Message)
			continue
		}
		p := r.Preview
		fmt.Fprintf(w, "OK   %s (%s): %d rows, columns: %s\n", r.File, r.Format, p.TotalRows, strings.Join(p.Columns, ", "))
		if len(p.MissingColumns) > 0 {
			fmt.Fprintf(w, "     missing required: %s\n", strings.Join(p.MissingColumns, ", "))
		}
		if len(p.DuplicateColumns) > 0 {
			fmt.Fprintf(w, "     duplicate columns: %s\n", strings.Join(p.DuplicateColumns, ", "))
		}
		for i, row := range p.SampleRows {
			b, err := json.Marshal(row)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "     [%d] %s\n", i+1, b)
		}
	}
	return nil
}
