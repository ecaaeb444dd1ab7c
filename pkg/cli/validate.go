package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/mockenv/mockenv/pkg/cli/internal/output"
	"github.com/mockenv/mockenv/pkg/environment"
)

// errInvalid is returned by validate when at least one document failed.
var errInvalid = errors.New("invalid environment documents")

// validateResult is the outcome for one environment document.
type validateResult struct {
	File   string `json:"file"`
	Name   string `json:"name,omitempty"`
	Port   int    `json:"port,omitempty"`
	Routes int    `json:"routes"`
	Valid  bool   `json:"valid"`
	Error  string `json:"error,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate <file|glob>...",
	Short: "Validate environment documents without serving them",
	Long: `Validate environment documents without serving them.

Each argument is a file or a glob pattern (** matches across directories).
Documents are parsed, normalized and checked for missing endpoints, default
responses, duplicate route ids, unknown modes and operators, streaming
intervals and proxy settings.`,
	Example: `  mockenv validate api.json
  mockenv validate 'envs/**/*.yaml'
  mockenv validate --json api.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), args, jsonOutput)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(w io.Writer, args []string, asJSON bool) error {
	files, err := expandArgs(args)
	if err != nil {
		return err
	}

	results := make([]validateResult, 0, len(files))
	failed := 0
	for _, f := range files {
		res := validateResult{File: f}
		env, err := environment.LoadFromFile(f)
		if err != nil {
			res.Error = err.Error()
			failed++
		} else {
			res.Valid = true
			res.Name = env.Name
			res.Port = env.Port
			res.Routes = len(env.Routes)
		}
		results = append(results, res)
	}

	if asJSON {
		if err := output.JSON(w, results); err != nil {
			return err
		}
	} else {
		printValidateResults(w, results)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errInvalid, failed, len(results))
	}
	return nil
}

func printValidateResults(w io.Writer, results []validateResult) {
	tw := output.Table(w)
	fmt.Fprintln(tw, "FILE\tNAME\tPORT\tROUTES\tSTATUS")
	for _, r := range results {
		status := "ok"
		if !r.Valid {
			status = "invalid"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.File, r.Name, r.Port, r.Routes, status)
	}
	_ = tw.Flush()
	for _, r := range results {
		if !r.Valid {
			fmt.Fprintf(w, "\n%s:\n  %s\n", r.File, r.Error)
		}
	}
}

// expandArgs turns file and glob arguments into a sorted, de-duplicated
// list of files. A glob that matches nothing is an error.
func expandArgs(args []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, arg := range args {
		matches := []string{arg}
		if hasMeta(arg) {
			var err error
			matches, err = doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("expanding %s: %w", arg, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("%w: %s", environment.ErrNoMatches, arg)
			}
			sort.Strings(matches)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

func hasMeta(path string) bool {
	for _, c := range path {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
