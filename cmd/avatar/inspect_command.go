package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-avatar/pkg/rig"
	"github.com/teslashibe/go-avatar/pkg/scene"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <model.glb>",
		Short: "Show how a model binds to the avatar rig",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}

			root, err := scene.LoadGLB(args[0])
			if err != nil {
				return err
			}
			opts := rig.Options{
				BoneNames: map[rig.Bone]string{
					rig.Head:   cfg.Model.Head,
					rig.Neck:   cfg.Model.Neck,
					rig.Spine1: cfg.Model.Spine,
				},
				FaceMesh: cfg.Model.FaceMesh,
			}
			_, report := rig.Bind(scene.BuildGraph(root), opts)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(out, args[0], report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printReport(w io.Writer, path string, r rig.Report) {
	fmt.Fprintf(w, "Model:    %s\n", path)
	if r.Complete() {
		fmt.Fprintln(w, "Rig:      complete")
	} else {
		fmt.Fprintln(w, "Rig:      incomplete")
	}
	fmt.Fprintf(w, "Bones:    %s\n", listOrNone(r.MissingBones, "all bound", "missing "))
	if r.MissingMesh != "" {
		fmt.Fprintf(w, "Mesh:     missing %s\n", r.MissingMesh)
	}
	fmt.Fprintf(w, "Morphs:   %d bound, %d unbound\n", len(r.Bound), len(r.Unbound))
	if len(r.Unbound) > 0 {
		fmt.Fprintf(w, "Unbound:  %s\n", strings.Join(r.Unbound, ", "))
	}
	if len(r.Extra) > 0 {
		fmt.Fprintf(w, "Extra:    %s\n", strings.Join(r.Extra, ", "))
	}
}

func listOrNone(items []string, none, prefix string) string {
	if len(items) == 0 {
		return none
	}
	return prefix + strings.Join(items, ", ")
}
