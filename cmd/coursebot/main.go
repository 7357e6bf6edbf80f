// Package main provides the coursebot CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/richinex/coursebot/cli"
)

var (
	// Global flags
	provider string
	verbose  bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "coursebot",
		Short: "Answer questions about course material",
		Long: `A retrieval-augmented assistant over a catalog of course transcripts.

The model answers general questions directly and calls two tools for
course questions:
- search_course_content: semantic search over lesson transcripts
- get_course_outline: course link, instructor and lesson list`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (anthropic, openai, deepseek, gemini); overrides LLM_PROVIDER")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(coursesCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{Provider: provider, Verbose: verbose}
}

func askCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and print its sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(cmd.Context(), args[0], sessionID, options())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversation history")
	return cmd
}

func chatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(cmd.Context(), sessionID, options())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to resume")
	return cmd
}

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [catalog.yaml]",
		Short: "Ingest a course catalog into the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Load(cmd.Context(), args[0], options())
		},
	}
}

func coursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List indexed courses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Courses(cmd.Context(), options())
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored conversation sessions (sqlite backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Sessions(cmd.Context(), options())
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

Routes:
- POST /api/query    {query, session_id?} -> {answer, sources, session_id}
- GET  /api/courses  course count and titles
- GET  /healthz      liveness
- GET  /readyz       index and store reachability
- GET  /metrics      Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(cmd.Context(), addr, options())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default HTTP_ADDR)")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(os.Stdout, verbose)
		},
	}
}
