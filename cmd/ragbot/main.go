package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragbot/internal/domain"
	"ragbot/internal/httpapi"
	"ragbot/internal/progress"
	"ragbot/internal/tui"
)

var configPath string

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ragbot",
		Short: "Ask questions about a document with retrieval-augmented generation",
		Long: `ragbot ingests one PDF, DOCX or TXT document into a local knowledge base
and answers questions about it through an OpenAI-compatible chat model.`,
		SilenceUsage: true,
		RunE:         runChat,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (default ./config.yaml or ~/.config/ragbot/config.yaml)")

	rootCmd.AddCommand(
		createChatCommand(),
		createServeCommand(),
		createIngestCommand(),
		createAskCommand(),
		createSummarizeCommand(),
		createResetCommand(),
		createDriveCommand(),
	)
	return rootCmd
}

func createChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{configPath: configPath, logFile: true})
	if err != nil {
		return err
	}
	defer a.close()
	var auth tui.DriveAuth
	if a.auth != nil {
		auth = a.auth
	}
	return tui.Run(cmd.Context(), a.svc, auth, os.Stdin, os.Stdout)
}

func createServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(appOptions{configPath: configPath})
			if err != nil {
				return err
			}
			defer a.close()
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			var auth httpapi.DriveAuth
			if a.auth != nil {
				auth = a.auth
			}
			router := httpapi.NewRouter(a.log, httpapi.NewHandler(a.log, a.svc, auth))
			a.log.Info("http api listening", "addr", addr)
			return httpapi.Run(cmd.Context(), addr, router, 15*time.Second)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides http.addr)")
	return cmd
}

func createIngestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Replace the knowledge base with a PDF, DOCX or TXT file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bar := progress.NewBar(progress.Enabled(), os.Stderr, "embedding")
			a, err := newApp(appOptions{configPath: configPath, progress: bar.Report})
			if err != nil {
				return err
			}
			defer a.close()
			report, err := a.svc.Ingest(cmd.Context(), args[0])
			bar.Finish()
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
}

func createAskCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a question from the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{configPath: configPath})
			if err != nil {
				return err
			}
			defer a.close()
			stopSpinner := progress.StartSpinner(progress.Enabled(), os.Stderr, "thinking")
			answer, err := a.svc.Answer(cmd.Context(), strings.Join(args, " "))
			stopSpinner()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func createSummarizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize",
		Short: "Retell the main content of the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(appOptions{configPath: configPath})
			if err != nil {
				return err
			}
			defer a.close()
			stopSpinner := progress.StartSpinner(progress.Enabled(), os.Stderr, "summarizing")
			summary, err := a.svc.Summarize(cmd.Context())
			stopSpinner()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func createResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(appOptions{configPath: configPath})
			if err != nil {
				return err
			}
			defer a.close()
			existed, err := a.svc.Reset(cmd.Context())
			if err != nil {
				return err
			}
			if existed {
				fmt.Fprintln(cmd.OutOrStdout(), "Knowledge base cleared.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Knowledge base is already empty.")
			}
			return nil
		},
	}
}

func createDriveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Use documents from Google Drive",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "auth-url",
			Short: "Print the consent URL to authorize Drive access",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(appOptions{configPath: configPath})
				if err != nil {
					return err
				}
				defer a.close()
				auth, err := a.driveAuth()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), auth.URL())
				return nil
			},
		},
		&cobra.Command{
			Use:   "auth <code>",
			Short: "Exchange an authorization code for a stored token",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(appOptions{configPath: configPath})
				if err != nil {
					return err
				}
				defer a.close()
				auth, err := a.driveAuth()
				if err != nil {
					return err
				}
				if err := auth.Exchange(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Google Drive connected.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List supported files on Google Drive",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(appOptions{configPath: configPath})
				if err != nil {
					return err
				}
				defer a.close()
				files, err := a.svc.ListRemote(cmd.Context())
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", f.ID, f.Name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "fetch <id>",
			Short: "Download a Drive file and make it the knowledge base",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				bar := progress.NewBar(progress.Enabled(), os.Stderr, "embedding")
				a, err := newApp(appOptions{configPath: configPath, progress: bar.Report})
				if err != nil {
					return err
				}
				defer a.close()
				report, err := a.svc.IngestRemote(cmd.Context(), args[0])
				bar.Finish()
				if err != nil {
					return err
				}
				printReport(cmd, report)
				return nil
			},
		},
	)
	return cmd
}

func printReport(cmd *cobra.Command, r domain.IngestReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ingested %s (%s): %d characters, %d chunks.\n", r.Document.Name, r.Document.Kind, r.Chars, r.Chunks)
	if r.Digest != "" {
		fmt.Fprintf(out, "In short: %s\n", r.Digest)
	}
}
