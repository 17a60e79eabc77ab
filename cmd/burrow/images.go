package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/catalog"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Manage the catalog of produced squashfs images",
}

var imagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded images",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Open(flagDataDir)
		if err != nil {
			return err
		}
		defer cat.Close()

		images, err := cat.List()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDIGEST\tSIZE\tCREATED\tPATH")
		for _, img := range images {
			digest := img.Digest
			if len(digest) > 19 {
				digest = digest[:19]
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				img.Name, digest, img.Size,
				img.CreatedAt.Format("2006-01-02 15:04:05"), img.Path)
		}
		return w.Flush()
	},
}

var imagesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one image record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Open(flagDataDir)
		if err != nil {
			return err
		}
		defer cat.Close()

		img, err := cat.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Name:    %s\n", img.Name)
		fmt.Printf("Path:    %s\n", img.Path)
		fmt.Printf("Digest:  %s\n", img.Digest)
		fmt.Printf("Size:    %d bytes\n", img.Size)
		if img.Product != "" {
			fmt.Printf("Product: %s\n", img.Product)
		}
		if img.Recipe != "" {
			fmt.Printf("Recipe:  %s\n", img.Recipe)
		}
		if img.Action != "" {
			fmt.Printf("Action:  %s\n", img.Action)
		}
		fmt.Printf("Created: %s\n", img.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

var imagesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an image record (the image file is left in place)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Open(flagDataDir)
		if err != nil {
			return err
		}
		defer cat.Close()

		if err := cat.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Record %q deleted\n", args[0])
		return nil
	},
}

func init() {
	imagesCmd.AddCommand(imagesListCmd)
	imagesCmd.AddCommand(imagesShowCmd)
	imagesCmd.AddCommand(imagesDeleteCmd)
}
