package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mockenv/mockenv/pkg/environment"
)

// importFlags holds the flags of the import command.
type importFlags struct {
	output   string
	name     string
	port     int
	prefix   string
	dryRun   bool
	noCORS   bool
	hostname string
}

var importFlagVals importFlags

var importCmd = &cobra.Command{
	Use:   "import <openapi-file>",
	Short: "Create an environment from an OpenAPI 3 document",
	Long: `Create an environment from an OpenAPI 3 document (JSON or YAML).

Every path and operation becomes a route and every documented status a
response. Examples in the document become response bodies and the first 2xx
response is the default. Path parameters turn into route parameters.`,
	Example: `  # Write an environment next to the API description
  mockenv import petstore.yaml -o petstore.json

  # Override the name and port, print instead of writing
  mockenv import petstore.yaml --name Pets --port 4000 --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.OutOrStdout(), args[0], &importFlagVals)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	f := &importFlagVals
	importCmd.Flags().StringVarP(&f.output, "output", "o", "", "Environment file to write (.json, .yaml or .yml)")
	importCmd.Flags().StringVar(&f.name, "name", "", "Environment name (default: the API title)")
	importCmd.Flags().IntVarP(&f.port, "port", "p", 0, "Environment port (default: 3000)")
	importCmd.Flags().StringVar(&f.hostname, "hostname", "", "Hostname to listen on")
	importCmd.Flags().StringVar(&f.prefix, "prefix", "", "Endpoint prefix (default: the first server's base path)")
	importCmd.Flags().BoolVar(&f.noCORS, "no-cors", false, "Disable automatic CORS headers")
	importCmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print the environment instead of writing it")
}

func runImport(w io.Writer, source string, f *importFlags) error {
	if !f.dryRun && f.output == "" {
		return fmt.Errorf("--output is required unless --dry-run is set")
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("reading %s: %w", source, err)
	}
	env, err := environment.ImportOpenAPI(data)
	if err != nil {
		return err
	}

	if f.name != "" {
		env.Name = f.name
	}
	if f.port != 0 {
		env.Port = f.port
	}
	if f.hostname != "" {
		env.Hostname = f.hostname
	}
	if f.prefix != "" {
		env.EndpointPrefix = f.prefix
	}
	if f.noCORS {
		env.CORS = false
	}

	if f.dryRun {
		out, err := environment.ToJSON(env)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}

	if err := environment.SaveToFile(env, f.output); err != nil {
		return err
	}
	fmt.Fprintf(w, "Imported %d routes into %s (%s, port %d)\n", len(env.Routes), f.output, env.Name, env.Port)
	return nil
}
