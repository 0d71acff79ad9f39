package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/canvas/internal/catalog"
	"github.com/matthewbaird/canvas/internal/component"
	"github.com/matthewbaird/canvas/internal/config"
	"github.com/matthewbaird/canvas/internal/store"
	"github.com/matthewbaird/canvas/internal/types"
)

// cli holds the command tree and the settings shared by its commands.
type cli struct {
	root *cobra.Command
	v    *viper.Viper
}

func newCLI() *cli {
	c := &cli{v: config.New()}
	c.root = &cobra.Command{
		Use:          "canvasctl",
		Short:        "Inspect, validate and convert canvas documents",
		SilenceUsage: true,
	}
	flags := c.root.PersistentFlags()
	flags.String("catalog", "", "CUE package directory of component kinds (default: built-in kinds)")
	flags.String("data_dir", "", "document directory used by import and list (env CANVAS_DATA_DIR)")
	_ = c.v.BindPFlag("catalog", flags.Lookup("catalog"))
	_ = c.v.BindPFlag("data_dir", flags.Lookup("data_dir"))

	c.root.AddCommand(
		c.validateCommand(),
		c.treeCommand(),
		c.exportCommand(),
		c.kindsCommand(),
		c.importCommand(),
		c.listCommand(),
	)
	return c
}

func (c *cli) catalog() (*catalog.Registry, error) {
	dir := c.v.GetString("catalog")
	if dir == "" {
		return catalog.Builtin()
	}
	kinds, err := catalog.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	reg := catalog.NewRegistry()
	if err := reg.Register(kinds...); err != nil {
		return nil, err
	}
	return reg, nil
}

func (c *cli) fileStore() (*store.FileStore, error) {
	dir := c.v.GetString("data_dir")
	if dir == "" {
		return nil, fmt.Errorf("no document directory: set --data_dir or CANVAS_DATA_DIR")
	}
	return store.NewFileStore(dir)
}

// readDocument loads a document from a .json, .yaml or .yml file. "-"
// reads JSON from stdin.
func readDocument(cmd *cobra.Command, path string) (types.Document, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return types.Document{}, err
	}
	var doc types.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &doc)
	default:
		err = json.Unmarshal(b, &doc)
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func (c *cli) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a document against the kind catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := c.catalog()
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			if err := component.ValidateRecords(doc.Components, kinds); err != nil {
				return err
			}
			if _, err := component.Normalize(doc.Components, kinds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%d components)\n", args[0], doc.Summary().ComponentCount)
			return nil
		},
	}
}

func (c *cli) treeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <file>",
		Short: "Print the component tree of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := c.catalog()
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, doc.Name)
			for i, rec := range doc.Components {
				n, err := component.FromPersisted(rec, kinds)
				if err != nil {
					return fmt.Errorf("components[%d]: %w", i, err)
				}
				n.Walk(func(node *component.Node, depth int) {
					p := node.Position()
					line := fmt.Sprintf("%s%s %s %q at %g,%g %gx%g",
						strings.Repeat("  ", depth+1), node.Kind().Name, node.ID(), node.Name(),
						p.Left, p.Top, p.Width, p.Height)
					if typ := node.Binding().SourceType(); typ != "" {
						line += " data=" + typ
					}
					if node.Script() != nil {
						line += " script"
					}
					if !node.Visible() {
						line += " hidden"
					}
					fmt.Fprintln(out, line)
				})
				if err := n.Destroy(); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (c *cli) exportCommand() *cobra.Command {
	var (
		format    string
		normalize bool
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write a document as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			if normalize {
				kinds, err := c.catalog()
				if err != nil {
					return err
				}
				if doc.Components, err = component.Normalize(doc.Components, kinds); err != nil {
					return err
				}
			}
			return writeDocument(cmd.OutOrStdout(), doc, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&normalize, "normalize", true, "fill in kind defaults before writing")
	return cmd
}

func writeDocument(w io.Writer, doc types.Document, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func (c *cli) kindsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "kinds",
		Short: "List the component kinds of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds, err := c.catalog()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(kinds.All())
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tGROUP\tSIZE\tDATA")
			for _, k := range kinds.All() {
				fmt.Fprintf(tw, "%s\t%s\t%gx%g\t%s\n", k.Name, k.Group, k.Width, k.Height, k.DataMode)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full kind descriptors as JSON")
	return cmd
}

func (c *cli) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a document and store it in the document directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := c.catalog()
			if err != nil {
				return err
			}
			st, err := c.fileStore()
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			if err := component.ValidateRecords(doc.Components, kinds); err != nil {
				return err
			}
			if doc.Components, err = component.Normalize(doc.Components, kinds); err != nil {
				return err
			}
			saved, err := st.Save(cmd.Context(), doc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), saved.ID)
			return nil
		},
	}
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the documents of the document directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.fileStore()
			if err != nil {
				return err
			}
			docs, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCOMPONENTS\tUPDATED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.Name, d.ComponentCount, d.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}
