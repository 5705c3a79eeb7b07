package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"strand/internal/version"
)

const versionTagline = "every waiter woken once, none woken late"

// versionFields selects the optional parts of the version output.
type versionFields struct {
	commit, message, date bool
}

type versionPayload struct {
	Tool    string `json:"tool"`
	Tagline string `json:"tagline"`
	version.Info
}

func init() {
	versionCmd.Flags().Bool("hash", false, "include git commit hash")
	versionCmd.Flags().Bool("message", false, "include git commit message")
	versionCmd.Flags().Bool("date", false, "include build timestamp")
	versionCmd.Flags().Bool("full", false, "show every recorded bit of build metadata")
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show strand build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, fields, err := readVersionFlags(cmd)
		if err != nil {
			return err
		}
		info := version.Current()
		if format == "json" {
			return renderVersionJSON(cmd.OutOrStdout(), info, fields)
		}
		renderVersionPretty(cmd.OutOrStdout(), info, fields)
		return nil
	},
}

func readVersionFlags(cmd *cobra.Command) (string, versionFields, error) {
	flags := cmd.Flags()
	format, err := flags.GetString("format")
	if err != nil {
		return "", versionFields{}, err
	}
	format = strings.ToLower(format)
	if format != "pretty" && format != "json" {
		return "", versionFields{}, fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	var full bool
	var fields versionFields
	for name, dst := range map[string]*bool{"full": &full, "hash": &fields.commit, "message": &fields.message, "date": &fields.date} {
		if *dst, err = flags.GetBool(name); err != nil {
			return "", versionFields{}, err
		}
	}
	if full {
		fields = versionFields{commit: true, message: true, date: true}
	}
	return format, fields, nil
}

// trim blanks the fields that were not asked for and marks missing asked-for
// fields as unknown.
func (f versionFields) trim(info version.Info) version.Info {
	pick := func(want bool, v string) string {
		switch {
		case !want:
			return ""
		case v == "":
			return "unknown"
		}
		return v
	}
	info.GitCommit = pick(f.commit, info.GitCommit)
	info.GitMessage = pick(f.message, info.GitMessage)
	info.BuildDate = pick(f.date, info.BuildDate)
	return info
}

func renderVersionPretty(out io.Writer, info version.Info, fields versionFields) {
	info = fields.trim(info)
	fmt.Fprintf(out, "strand %s: %s\n", version.Colored(info.Version), versionTagline)
	if fields.commit {
		dirty := ""
		if info.Dirty {
			dirty = " (modified)"
		}
		fmt.Fprintf(out, "commit:  %s%s\n", info.GitCommit, dirty)
	}
	if fields.message {
		fmt.Fprintf(out, "message: %s\n", info.GitMessage)
	}
	if fields.date {
		fmt.Fprintf(out, "built:   %s\n", info.BuildDate)
	}
	if fields != (versionFields{}) {
		fmt.Fprintf(out, "go:      %s\n", info.GoVersion)
	}
}

func renderVersionJSON(out io.Writer, info version.Info, fields versionFields) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(versionPayload{Tool: "strand", Tagline: versionTagline, Info: fields.trim(info)})
}
