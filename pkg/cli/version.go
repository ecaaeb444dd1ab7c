package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mockenv/mockenv/pkg/cli/internal/output"
)

// VersionOutput is the version command's --json document.
type VersionOutput struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show mockenv version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion(cmd.OutOrStdout(), buildVersion(), jsonOutput)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// buildVersion reports the ldflags values, falling back to the module and
// VCS stamps of `go install` builds.
func buildVersion() VersionOutput {
	out := VersionOutput{
		Version: Version,
		Commit:  Commit,
		Date:    BuildDate,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}

	vcs := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		vcs[s.Key] = s.Value
	}
	if out.Version == "dev" && info.Main.Version != "" {
		out.Version = info.Main.Version
	}
	if rev, ok := vcs["vcs.revision"]; ok && out.Commit == "none" {
		out.Commit = rev
	}
	if ts, ok := vcs["vcs.time"]; ok && out.Date == "unknown" {
		out.Date = ts
	}
	if vcs["vcs.modified"] == "true" {
		out.Commit += "-dirty"
	}
	return out
}

func printVersion(w io.Writer, out VersionOutput, asJSON bool) error {
	if asJSON {
		return output.JSON(w, out)
	}
	_, err := fmt.Fprintf(w, "mockenv %s (%s, %s)\n%s %s/%s\n",
		displayVersion(out.Version), out.Commit, out.Date, out.Go, out.OS, out.Arch)
	return err
}

// displayVersion prefixes release versions with "v".
func displayVersion(v string) string {
	switch {
	case v == "", v == "dev", v == "(devel)", strings.HasPrefix(v, "v"):
		return v
	}
	return "v" + v
}
