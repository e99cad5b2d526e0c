package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/coolbeans/uscingest/pkg/crossref"
	"github.com/coolbeans/uscingest/pkg/fetch"
	"github.com/coolbeans/uscingest/pkg/ingest"
	"github.com/coolbeans/uscingest/pkg/store"
	"github.com/coolbeans/uscingest/pkg/uslm"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "uscingest",
		Short: "US Code XML ingestion toolkit",
		Long: `uscingest downloads United States Code titles in the USLM XML
format, parses them into a title/level/section hierarchy, extracts
statutory cross-references from section text, and persists the
result as a queryable SQLite node tree.`,
		Version: version,
	}

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(crossrefsCmd())
	rootCmd.AddCommand(ingestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse one USLM XML document and print its structure",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, _ := cmd.Flags().GetString("source")
			titleNum, _ := cmd.Flags().GetString("title")
			asJSON, _ := cmd.Flags().GetBool("json")

			if source == "" {
				return fmt.Errorf("--source is required")
			}
			file, err := os.Open(source)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", source, err)
			}
			defer file.Close()

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				return uslm.ParseStream(file, func(ev uslm.Event) error {
					return encoder.Encode(ev)
				}, uslm.WithDefaultTitle(titleNum))
			}

			result, err := uslm.Parse(file, uslm.WithDefaultTitle(titleNum))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Title %s: %s\n", result.TitleNum, result.TitleName)
			fmt.Fprintf(out, "Levels:   %d\n", len(result.Levels))
			fmt.Fprintf(out, "Sections: %d\n", len(result.Sections))
			for _, level := range result.Levels {
				fmt.Fprintf(out, "  [%d] %s %s: %s\n", level.LevelIndex, level.Kind, level.Num, level.Heading)
			}
			return nil
		},
	}

	cmd.Flags().StringP("source", "s", "", "Path to a USLM XML file")
	cmd.Flags().StringP("title", "t", "", "Fallback title number when the document has no identifiers")
	cmd.Flags().Bool("json", false, "Print events as JSON lines")
	return cmd
}

func crossrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crossrefs",
		Short: "Extract statutory cross-references from text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			source, _ := cmd.Flags().GetString("source")
			titleNum, _ := cmd.Flags().GetString("title")

			if text == "" && source == "" {
				return fmt.Errorf("either --text or --source is required")
			}
			if text == "" {
				data, err := os.ReadFile(source)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", source, err)
				}
				text = string(data)
			}

			mentions := crossref.Extract(text, titleNum)
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(mentions)
		},
	}

	cmd.Flags().String("text", "", "Text to scan")
	cmd.Flags().StringP("source", "s", "", "Path to a text file to scan")
	cmd.Flags().StringP("title", "t", "", "Default title number for unqualified references")
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the full fetch/parse/store pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			verbose, _ := cmd.Flags().GetBool("verbose")

			config, err := ingest.LoadConfig(configPath)
			if err != nil {
				return err
			}

			logLevel := slog.LevelInfo
			if verbose {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

			client, err := fetch.NewClient(fetch.Config{
				CacheDir:  config.CacheDir,
				CacheTTL:  time.Duration(config.CacheTTL),
				RateLimit: time.Duration(config.RateLimit),
				UserAgent: config.UserAgent,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			nodeStore, err := store.Open(config.DatabasePath, store.WithBatchSize(config.BatchSize))
			if err != nil {
				return err
			}
			defer nodeStore.Close()

			runner := ingest.NewRunner(config, client, nodeStore, logger)
			return runner.Run(cmd.Context())
		},
	}

	cmd.Flags().StringP("config", "c", "ingest.yaml", "Path to the ingestion config")
	cmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	return cmd
}
