// Command execution for CLI commands.
//
// Information Hiding:
// - Settings loading and App wiring hidden
// - REPL handling hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/richinex/coursebot/config"
	"github.com/richinex/coursebot/internal/logging"
	"github.com/richinex/coursebot/orchestration"
	"github.com/richinex/coursebot/server"
	"github.com/richinex/coursebot/storage"
	"github.com/richinex/coursebot/tools"
	"github.com/richinex/coursebot/vectorindex"
)

// Options holds CLI execution options.
type Options struct {
	Provider string
	Verbose  bool
}

// Answerer answers one query within a session.
type Answerer interface {
	Answer(ctx context.Context, sessionID, query string) (orchestration.Result, error)
}

// Ask answers a single question and prints the answer with its sources.
func Ask(ctx context.Context, question, sessionID string, opts Options) error {
	app, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Orchestrator.Answer(ctx, sessionID, question)
	if err != nil {
		return err
	}
	printResult(os.Stdout, res, opts.Verbose)
	return nil
}

// Chat starts an interactive session on stdin.
func Chat(ctx context.Context, sessionID string, opts Options) error {
	app, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer app.Close()

	return RunChat(ctx, app.Orchestrator, sessionID, os.Stdin, os.Stdout, opts.Verbose)
}

// RunChat reads questions from in until EOF or /exit. /new starts a fresh session.
// Query failures are printed and the loop continues.
func RunChat(ctx context.Context, a Answerer, sessionID string, in io.Reader, out io.Writer, verbose bool) error {
	session := sessionID
	if session != "" {
		fmt.Fprintf(out, "Resuming session '%s'\n", session)
	}
	fmt.Fprintf(out, "Course assistant. Type /new for a new session, /exit to quit.\n\n")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit", "/quit", "exit", "quit":
			return nil
		case "/new":
			session = ""
			fmt.Fprintf(out, "Started a new session.\n\n")
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := a.Answer(ctx, session, input)
		if err != nil {
			printError(out, err)
			continue
		}
		session = res.SessionID
		printResult(out, res, verbose)
	}
	return scanner.Err()
}

// Load ingests a course catalog into the index.
func Load(ctx context.Context, path string, opts Options) error {
	app, err := open(ctx, opts, true)
	if err != nil {
		return err
	}
	defer app.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	return LoadCatalog(ctx, app.Index, f, vectorindex.NewChunker(app.Settings.ChunkSize, app.Settings.ChunkOverlap), os.Stdout)
}

// LoadCatalog parses a catalog from r and ingests it into w.
func LoadCatalog(ctx context.Context, w vectorindex.Writer, r io.Reader, chunker vectorindex.Chunker, out io.Writer) error {
	catalog, err := vectorindex.LoadCatalog(r)
	if err != nil {
		return err
	}
	stats, err := vectorindex.Ingest(ctx, w, catalog, chunker)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Added %d courses (%d chunks), skipped %d already indexed\n",
		stats.Courses, stats.Chunks, len(stats.Skipped))
	return nil
}

// Courses prints the indexed course titles.
func Courses(ctx context.Context, opts Options) error {
	app, err := open(ctx, opts, true)
	if err != nil {
		return err
	}
	defer app.Close()

	titles, err := app.Index.CourseTitles(ctx)
	if err != nil {
		return err
	}
	printCourses(os.Stdout, titles)
	return nil
}

// Sessions lists stored session ids. Only the SQLite backend can enumerate them.
func Sessions(ctx context.Context, opts Options) error {
	app, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer app.Close()

	lister, ok := app.Store.(*storage.SqliteStore)
	if !ok {
		return fmt.Errorf("listing sessions is not supported by the %s backend", app.Settings.ConversationBackend)
	}
	ids, err := lister.ListSessions(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

// Serve runs the HTTP front door until ctx is cancelled.
func Serve(ctx context.Context, addr string, opts Options) error {
	app, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer app.Close()

	if addr == "" {
		addr = app.Settings.HTTPAddr
	}
	srv := server.New(app.Orchestrator, app.Index, app.Log,
		server.WithReadinessCheck("vector_index", app.Index),
		server.WithReadinessCheck("session_store", app.Store),
	)
	return srv.Start(ctx, addr)
}

// ListTools prints the tools offered to the model. Verbose output includes parameters.
func ListTools(out io.Writer, verbose bool) error {
	reg := tools.NewRegistry(nil, nil)
	if err := tools.RegisterRetrievalTools(reg, nil, 0); err != nil {
		return err
	}
	for _, def := range reg.Definitions() {
		if verbose {
			fmt.Fprintln(out, def.Usage())
			continue
		}
		fmt.Fprintf(out, "%-24s %s\n", def.Name, def.Description)
	}
	return nil
}

func open(ctx context.Context, opts Options, indexOnly bool) (*App, error) {
	settings, err := config.Load(opts.Provider)
	if err != nil {
		return nil, err
	}
	level := settings.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	log := logging.NewFromFormat(settings.LogFormat, level)

	if indexOnly {
		return BuildIndexOnly(ctx, settings, log)
	}
	return Build(ctx, settings, log)
}

func printResult(out io.Writer, res orchestration.Result, verbose bool) {
	fmt.Fprintf(out, "%s\n", res.Answer)
	if len(res.Sources) > 0 {
		fmt.Fprintf(out, "\nSources:\n")
		for _, src := range res.Sources {
			if src.Link != "" {
				fmt.Fprintf(out, "  - %s (%s)\n", src.Label(), src.Link)
			} else {
				fmt.Fprintf(out, "  - %s\n", src.Label())
			}
		}
	}
	if verbose {
		fmt.Fprintf(out, "\n(session %s, %d tool rounds)\n", res.SessionID, res.Rounds)
	}
	fmt.Fprintln(out)
}

func printError(out io.Writer, err error) {
	var oe *orchestration.Error
	if errors.As(err, &oe) {
		fmt.Fprintf(out, "Error [%s/%s]: %s\n\n", oe.Component, oe.Kind, oe.Message)
		return
	}
	fmt.Fprintf(out, "Error: %v\n\n", err)
}

func printCourses(out io.Writer, titles []string) {
	fmt.Fprintf(out, "%d courses\n", len(titles))
	for _, title := range titles {
		fmt.Fprintf(out, "  - %s\n", title)
	}
}
