package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"multirag/internal/adapter/collection"
	"multirag/internal/adapter/store"
)

var collectionsJSON bool

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List configured collections and whether their index resolves",
	RunE:  runCollections,
}

func init() {
	rootCmd.AddCommand(collectionsCmd)
	collectionsCmd.Flags().BoolVar(&collectionsJSON, "json", false, "output as JSON")
}

type collectionStatus struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Path   string `json:"path"`
	Chunks int    `json:"chunks"`
	Model  string `json:"model,omitempty"`
	Status string `json:"status"`
}

func runCollections(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	statuses := make([]collectionStatus, 0, len(cfg.Collections))
	for _, col := range cfg.Collections {
		st := collectionStatus{
			Name:  col.Name,
			Title: cfg.DisplayTitle(col.Name),
			Path:  cfg.Location(col),
		}
		st.Status = "ok"
		if st.Path == "" {
			st.Status = collection.ErrNoLocation.Error()
		} else if idx, err := store.OpenCollectionIndex(collection.IndexPath(st.Path)); err != nil {
			st.Status = err.Error()
		} else {
			st.Model = idx.Model()
			st.Chunks, err = idx.Count()
			if err != nil {
				st.Status = err.Error()
			}
			idx.Close()
		}
		statuses = append(statuses, st)
	}

	out := cmd.OutOrStdout()
	if collectionsJSON {
		return writeJSON(out, statuses)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(out, "No collections configured.")
		return nil
	}
	for _, st := range statuses {
		line := fmt.Sprintf("%-20s %6d chunks  %s", st.Name, st.Chunks, st.Path)
		if st.Status != "ok" {
			fmt.Fprintln(out, line+"  "+warningStyle.Render(st.Status))
			continue
		}
		fmt.Fprintln(out, line+"  "+metaStyle.Render(st.Title))
	}
	return nil
}
