package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"connprobe/internal/core"
	"connprobe/internal/topology"
)

func newModesCommand(root *rootOptions) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "modes [mode]",
		Short: "List the modes with their sections, checks and fields",
		Long: `List every mode, or only the named one, with the sections and checks it
runs and the parameter fields those checks read.

With --yaml the table is printed in the format accepted by --topology,
which is a convenient starting point for a custom table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load(cmd)
			if err != nil {
				return err
			}
			reg, err := core.LoadRegistry(cfg)
			if err != nil {
				return err
			}

			modes := reg.Modes()
			if len(args) == 1 {
				m, err := reg.Resolve(args[0])
				if err != nil {
					return err
				}
				modes = []*topology.Mode{m}
			}

			if asYAML {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(map[string][]*topology.Mode{"modes": modes})
			}
			return printModes(cmd.OutOrStdout(), modes)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the table as topology YAML")
	return cmd
}

func printModes(w io.Writer, modes []*topology.Mode) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, m := range modes {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s\t%s\t(%d checks)\n", m.ID, m.Title, m.CheckCount())

		fmt.Fprintln(tw, "  fields:")
		for _, f := range m.Fields {
			fmt.Fprintf(tw, "    %s\t%s\tdefault %s\n", f.Key, f.Label, f.Default)
		}

		fmt.Fprintln(tw, "  sections:")
		for _, s := range m.Sections {
			fmt.Fprintf(tw, "    [%s]\n", s.Title)
			for _, c := range s.Checks {
				fmt.Fprintf(tw, "      %s\t%s\t\n", c.Kind, checkFields(c))
			}
		}
	}
	return tw.Flush()
}

func checkFields(c topology.CheckTemplate) string {
	var parts []string
	if c.Host != "" {
		parts = append(parts, "host="+c.Host)
	}
	if c.Port != "" {
		parts = append(parts, "port="+c.Port)
	}
	return strings.Join(parts, " ")
}
