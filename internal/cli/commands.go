package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/specialistvlad/fnnxgo/internal/app"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

func newValidateCmd(appFn func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate PACKAGE",
		Short: "Load a package and run every integrity check",
		Args:  exactArgs(1, "a package path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFn().Validate(cmd.Context(), args[0]); err != nil {
				return failure(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newInspectCmd(appFn func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect PACKAGE",
		Short: "Describe the contents of a package",
		Args:  exactArgs(1, "a package path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := appFn().Inspect(cmd.Context(), args[0])
			if err != nil {
				return failure(err)
			}
			renderReport(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func newRunCmd(appFn func() *app.App) *cobra.Command {
	var inputPath, dynattrsPath string
	cmd := &cobra.Command{
		Use:   "run PACKAGE",
		Short: "Execute a package once and print its outputs as JSON",
		Args:  exactArgs(1, "a package path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readObject(inputPath)
			if err != nil {
				return usageError("--input: %v", err)
			}
			dynattrs, err := readObject(dynattrsPath)
			if err != nil {
				return usageError("--dynattrs: %v", err)
			}

			out, err := appFn().Run(cmd.Context(), args[0], inputs, dynattrs)
			if err != nil {
				return failure(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return failure(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "JSON file holding an object of input name to value.")
	cmd.Flags().StringVar(&dynattrsPath, "dynattrs", "", "JSON file holding an object of dynamic attributes.")
	return cmd
}

func newSchemaCmd(appFn func() *app.App) *cobra.Command {
	var version, outDir string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Write the JSON Schema bundle of the package format",
		Args:  exactArgs(0, "no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFn().Schema(cmd.Context(), version, outDir); err != nil {
				return failure(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "Format version, MAJOR.MINOR.PATCH.")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory.")
	_ = cmd.MarkFlagRequired("version")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// readObject reads a JSON object file. An empty path yields an empty map.
func readObject(path string) (value.Map, error) {
	if path == "" {
		return value.Map{}, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := value.FromJSON(buf)
	if err != nil {
		return nil, err
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("%s must hold a JSON object", path)
	}
	return m, nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func renderReport(w io.Writer, r *app.Report) {
	h := r.Header
	fmt.Fprintf(w, "Package: %s %s (variant %s, produced by %s %s)\n\n", h.Name, h.Version, h.Variant, h.ProducerName, h.ProducerVersion)

	ioTable := newTable(w, "DIRECTION", "NAME", "CONTENT", "DTYPE")
	for _, in := range h.Inputs {
		ioTable.Append([]string{"input", in.Name, in.ContentType, in.DType})
	}
	for _, out := range h.Outputs {
		ioTable.Append([]string{"output", out.Name, out.ContentType, out.DType})
	}
	ioTable.Render()
	fmt.Fprintln(w)

	opsTable := newTable(w, "ID", "KIND", "DETAIL")
	for _, op := range r.Ops {
		opsTable.Append([]string{op.ID, string(op.Kind), op.Summary})
	}
	opsTable.Render()

	if len(r.Order) > 0 {
		fmt.Fprintf(w, "\nExecution order: %s\n", strings.Join(r.Order, " -> "))
	}

	if len(r.Meta) > 0 {
		fmt.Fprintln(w)
		meta := newTable(w, "META", "PRODUCER", "VERSION", "PAYLOAD KEYS")
		for _, m := range r.Meta {
			meta.Append([]string{m.ID, m.Producer, m.ProducerVersion, strings.Join(m.Payload.Keys(), ", ")})
		}
		meta.Render()
	}

	if len(r.Envs) > 0 {
		fmt.Fprintln(w)
		envs := newTable(w, "ENVIRONMENT", "DESCRIPTOR")
		for _, e := range r.Envs {
			envs.Append([]string{e.Name, e.Body.String()})
		}
		envs.Render()
	}

	if len(r.EnvVars) > 0 {
		fmt.Fprintln(w)
		vars := newTable(w, "ENV VAR", "SET", "DESCRIPTION")
		for _, v := range r.EnvVars {
			vars.Append([]string{v.Name, strconv.FormatBool(v.Set), v.Description})
		}
		vars.Render()
	}

	if len(r.Artifacts) > 0 {
		fmt.Fprintln(w, "\nArtifacts:")
		for _, a := range r.Artifacts {
			fmt.Fprintf(w, "  %s\n", a)
		}
	}
}
