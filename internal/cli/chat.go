package cli

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"babyrag/internal/service"
	"babyrag/internal/tui"
)

var chatTopK int

var chatCmd = &cobra.Command{
	Use:   "chat [files...]",
	Short: "Ingest files and open the interactive chat",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 5, "number of chunks to retrieve")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
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
	header := fmt.Sprintf("%d chunks from %d documents", res.Added, len(docs))
	if res.Summary != "" {
		header += "\n" + res.Summary
	}
	_, err = tea.NewProgram(tui.New(ragService, header, chatTopK), tea.WithAltScreen()).Run()
	return err
}
