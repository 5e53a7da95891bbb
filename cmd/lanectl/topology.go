package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freeeve/starlane/pkg/starlane"
)

func newTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the nodes and lanes of a map",
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := loadMap(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "map %s: %d nodes, %d supply centers\n\n", topo.Name(), topo.NodeCount(), len(topo.SupplyCenters()))
			for i := range topo.NodeCount() {
				spec := topo.Node(starlane.NodeID(i))
				var tags []string
				if spec.SupplyCenter {
					tags = append(tags, "supply")
				}
				if spec.Home != "" {
					tags = append(tags, "home:"+string(spec.Home))
				}
				fmt.Fprintf(out, "%-10s %s\n", spec.Name, strings.Join(tags, " "))
			}
			fmt.Fprintln(out, "\nlanes:")
			for _, e := range topo.Edges() {
				line := topo.PositionName(e)
				if topo.IsVertical(e) {
					line += " (vertical)"
				}
				fmt.Fprintln(out, "  "+line)
			}
			return nil
		},
	}
}
