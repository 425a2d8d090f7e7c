package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"babyrag/internal/service"
)

var ingestJSON bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Chunk, embed and store documents",
	Long: `Reads .txt and .md files (globs allowed), splits them into overlapping
word chunks and upserts their embeddings into the configured vector store.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ragService == nil {
		return errors.New("service not configured")
	}
	docs, err := service.LoadDocuments(args)
	if err != nil {
		return err
	}
	res, err := ragService.Ingest(cmd.Context(), docs)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if ingestJSON {
		data, err := json.MarshalIndent(map[string]any{
			"added":   res.Added,
			"fake":    res.Fake,
			"summary": res.Summary,
		}, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Printf("Ingested %d chunks from %d documents", res.Added, len(docs))
	if res.Fake {
		cmd.Print(" (fake mode)")
	}
	cmd.Println()
	if res.Summary != "" {
		cmd.Println()
		cmd.Println(res.Summary)
	}
	return nil
}
