package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"wet-go/internal/app"
	"wet-go/internal/config"
	"wet-go/internal/export"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a WetApp. The caller must defer
// app.Close(). operation identifies the CLI command being run.
func newApp(operation string) (*app.WetApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewWetApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "wet",
	Short: "WhatsApp chat export tool",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Thumb Cache: %s\n", cfg.Thumbnails.Cache)
		fmt.Printf("History:     %v (%s)\n", cfg.History.Enabled, cfg.History.Path)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export CHATFILE",
	Short: "Export a WhatsApp chat to HTML and Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("outdir")
		me, _ := cmd.Flags().GetString("me")
		sidecar, _ := cmd.Flags().GetBool("sidecar")
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		noPreviews, _ := cmd.Flags().GetBool("no-previews")

		chatPath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving chat path: %w", err)
		}
		absOut, err := filepath.Abs(outDir)
		if err != nil {
			return fmt.Errorf("resolving output directory: %w", err)
		}

		a, err := newApp("export")
		if err != nil {
			return err
		}
		defer a.Close()

		// Flags not given on the command line fall back to the config.
		if !cmd.Flags().Changed("sidecar") {
			sidecar = a.Config().Export.Sidecar
		}
		if !cmd.Flags().Changed("no-previews") {
			noPreviews = !a.Config().Export.Previews
		}

		req := export.Request{
			ChatPath:    chatPath,
			OutDir:      absOut,
			Me:          me,
			In:          os.Stdin,
			Out:         os.Stdout,
			Interactive: me == "" && term.IsTerminal(int(os.Stdin.Fd())),
			Sidecar:     sidecar,
			Overwrite:   overwrite,
			Encrypt:     encrypt,
			Previews:    !noPreviews,
		}

		res, err := a.Export(cmd.Context(), req)
		if err != nil {
			return err
		}

		fmt.Printf("Messages:    %d\n", res.MessageCount)
		fmt.Printf("Attachments: %d\n", res.AttachmentCount)
		fmt.Printf("Bundle:      %s\n", res.BundleSHA256[:12])
		for _, p := range res.Published {
			fmt.Printf("OK: wrote %s\n", filepath.Base(p))
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify ORIGINAL PUBLISHED",
	Short: "Verify a published media copy against its originals",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")

		a, err := newApp("verify")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Verify(cmd.Context(), args[0], args[1], strict)
		if err != nil {
			return err
		}

		fmt.Printf("Compared %d file(s)\n", res.FilesCompared)
		for _, m := range res.Mismatches {
			fmt.Printf("MISMATCH  %s  (%s)\n", m.RelPath, m.Reason)
		}
		if !res.Identical {
			return fmt.Errorf("%d mismatch(es) found", len(res.Mismatches))
		}
		fmt.Println("Identical. Originals safe to delete:")
		for _, p := range res.Deletable {
			fmt.Printf("  %s\n", p)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View export run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No export runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond)
			fmt.Printf("%s  %-9s  %6d msgs  %s  %s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				r.MessageCount,
				duration,
				r.BaseName,
			)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("outdir", "o", ".", "Output directory")
	exportCmd.Flags().String("me", "", "Your display name; omit to auto-detect")
	exportCmd.Flags().Bool("sidecar", true, "Write the media sidecar folder")
	exportCmd.Flags().Bool("overwrite", false, "Replace existing destinations")
	exportCmd.Flags().Bool("encrypt", false, "Also write an age-encrypted Markdown copy")
	exportCmd.Flags().Bool("no-previews", false, "Disable the link index in the sidecar")

	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Bool("strict", false, "Byte-compare everything, ignore modification times")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
}
