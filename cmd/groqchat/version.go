package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

// Set at build time with
//
//	-ldflags "-X main.version=v0.1.0 -X main.commit=$(git rev-parse HEAD) -X main.buildDate=..."
var (
	version   = "v0.0.0-dev"
	commit    = "unknown"
	buildDate = "1970-01-01T00:00:00Z"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (v versionInfo) text() string {
	table := uitable.New()
	table.RightAlign(0)
	table.Separator = " "
	table.AddRow("version:", v.Version)
	table.AddRow("commit:", v.Commit)
	table.AddRow("buildDate:", v.BuildDate)
	table.AddRow("goVersion:", v.GoVersion)
	table.AddRow("platform:", v.Platform)
	return table.String()
}

func newVersionCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := currentVersion()
			out := cmd.OutOrStdout()
			switch output {
			case "json":
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			case "short":
				fmt.Fprintln(out, info.Version)
			case "text":
				fmt.Fprintln(out, info.text())
			default:
				return fmt.Errorf("unsupported output format %q (use text, json or short)", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json, short")
	return cmd
}
