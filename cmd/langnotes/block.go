package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackvity/langnotes/pkg/converter"
	"github.com/stackvity/langnotes/pkg/markup"
	"github.com/stackvity/langnotes/pkg/markup/palette"
	"github.com/stackvity/langnotes/pkg/notes"
)

// newBlockCmd builds the command that renders one block's content to an
// HTML fragment.
func newBlockCmd() *cobra.Command {
	var (
		blockType string
		blockID   string
		file      string
		digest    string
		rawHTML   bool
	)
	cmd := &cobra.Command{
		Use:   "block --type <type> [--file <path>]",
		Short: "Renders a single note block read from stdin or a file.",
		Long: `block renders the markup of one note block and prints the wrapped HTML
fragment. The content is read from --file, or from stdin when no file is
given. Valid types are rule, dialogue, example, centered, separator and
markup-header.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := notes.ParseBlockType(blockType)
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})

			colors, err := palette.NewAssigner(digest, handler)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open block content: %w", err)
				}
				defer f.Close()
				in = f
			}
			content, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read block content: %w", err)
			}

			renderer := notes.NewRenderer(notes.RendererOptions{
				Markup: markup.Options{Colors: colors, AllowInlineHTML: rawHTML},
				Logger: handler,
			})
			fragment := renderer.RenderBlock(cmd.Context(), notes.Block{ID: blockID, Type: t, Content: string(content)})
			_, err = fmt.Fprintln(cmd.OutOrStdout(), fragment)
			return err
		},
	}

	cmd.Flags().StringVarP(&blockType, "type", "t", "", "Required. Block type")
	cmd.Flags().StringVar(&blockID, "id", "block", "Value of the data-block-id attribute")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read block content from this file instead of stdin")
	cmd.Flags().StringVar(&digest, "digest", converter.DefaultColorDigest, `Speaker colour digest ("sha1", "sha256", "blake3")`)
	cmd.Flags().BoolVar(&rawHTML, "allow-inline-html", converter.DefaultAllowInlineHTML, "Write block text through without HTML escaping")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
