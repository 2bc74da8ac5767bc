package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ticketer-io/ticketer/internal/api"
	"github.com/ticketer-io/ticketer/internal/config"
	"github.com/ticketer-io/ticketer/internal/expand"
	"github.com/ticketer-io/ticketer/internal/fetch"
	"github.com/ticketer-io/ticketer/internal/generate"
	"github.com/ticketer-io/ticketer/internal/push"
	"github.com/ticketer-io/ticketer/internal/session"
	"github.com/ticketer-io/ticketer/internal/store"
	"github.com/ticketer-io/ticketer/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "upload":
		cmdUpload(os.Args[2:])
	case "fetch":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: ticketer fetch <url>")
			os.Exit(1)
		}
		cmdFetch(os.Args[2])
	case "health":
		cmdHealth()
	case "batches":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: ticketer batches <list|show>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdBatchesList(os.Args[3:])
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: ticketer batches show <id>")
				os.Exit(1)
			}
			cmdBatchesShow(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown batches subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: ticketer config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func newClient() *api.Client {
	base := envOr("TICKETER_API_URL", "http://localhost:8000")
	token := os.Getenv("TICKETER_API_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "error: TICKETER_API_TOKEN is required")
		os.Exit(1)
	}
	return api.New(base, token)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// --- upload command ---

func cmdUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite without asking")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ticketer upload [--force] <path>")
		os.Exit(1)
	}

	client := newClient()
	ctx := context.Background()
	batch, ok := uploadTranscript(ctx, client, fs.Arg(0), *force)
	if !ok {
		os.Exit(1)
	}
	if name, found := batch.FileName(); found {
		fmt.Printf("uploaded %s to bucket %s\n", name, batch.Bucket)
	} else {
		fmt.Printf("uploaded to bucket %s\n", batch.Bucket)
	}
}

// uploadTranscript checks for an existing copy first and asks before
// overwriting it. Returns false when the user declines or the upload fails.
func uploadTranscript(ctx context.Context, client *api.Client, path string, force bool) (*protocol.UploadBatch, bool) {
	name := filepath.Base(path)

	exists, err := client.CheckFile(ctx, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, false
	}
	if exists && !force {
		if !confirm(fmt.Sprintf("%s already exists on the server. Overwrite?", name)) {
			fmt.Println("upload cancelled")
			return nil, false
		}
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, false
	}
	defer f.Close()

	batch, err := client.UploadTranscript(ctx, name, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, false
	}
	return batch, true
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// --- fetch command ---

func cmdFetch(rawURL string) {
	ctx := context.Background()
	tr, err := fetch.New().Fetch(ctx, rawURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(tr.Name, []byte(tr.Text), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("saved %s (%d bytes)\n", tr.Name, len(tr.Text))
}

// --- run command (interactive session) ---

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	tickets := fs.Int("tickets", 0, "Number of tickets to request (default 20)")
	force := fs.Bool("force", false, "Overwrite existing transcript without asking")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ticketer run [--tickets N] [--force] <path>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	client := newClient()
	logger := newLogger(*verbose)
	ctx := context.Background()

	batch, ok := uploadTranscript(ctx, client, path, *force)
	if !ok {
		os.Exit(1)
	}
	fileName := filepath.Base(path)

	state := session.NewState()
	state.SetBatch(batch, "")
	gen := &generate.Controller{Client: client, State: state, Logger: logger}

	fmt.Printf("generating tickets from %s ...\n", fileName)
	list, err := gen.Run(ctx, fileName, *tickets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	_, token := state.Batch()
	fmt.Printf("%d tickets generated\n\n", len(list))

	repl(ctx, client, state, fileName, token, logger)
}

func repl(ctx context.Context, client *api.Client, state *session.State, fileName, token string, logger *slog.Logger) {
	exp := &expand.Controller{Client: client, State: state, Logger: logger}
	pusher := &push.Controller{Client: client, State: state, Logger: logger}

	printTickets(state.Tickets())
	fmt.Println(`commands: list, edit <n>, expand <n>, push <n> <platform>, save, quit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return
		case "list":
			printTickets(state.Tickets())
		case "edit":
			t, ok := ticketAt(state, fields[1:])
			if !ok {
				continue
			}
			editTicket(state, t, scanner)
		case "expand":
			t, ok := ticketAt(state, fields[1:])
			if !ok {
				continue
			}
			if _, err := exp.Run(ctx, t.ID, fileName, token); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			printTickets(state.Tickets())
		case "push":
			if len(fields) < 3 {
				fmt.Fprintln(os.Stderr, "usage: push <n> <jira|shortcut|asana>")
				continue
			}
			t, ok := ticketAt(state, fields[1:2])
			if !ok {
				continue
			}
			platform, err := protocol.ParsePlatform(fields[2])
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			if err := pusher.Run(ctx, t.ID, platform); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Printf("pushed %q to %s\n", t.Subject, platform)
		case "save":
			if err := saveSession(state, fileName); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Println("saved")
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", fields[0])
		}
	}
}

// ticketAt resolves a 1-based row number from the current listing.
func ticketAt(state *session.State, args []string) (protocol.Ticket, bool) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "a row number is required")
		return protocol.Ticket{}, false
	}
	n, err := strconv.Atoi(args[0])
	tickets := state.Tickets()
	if err != nil || n < 1 || n > len(tickets) {
		fmt.Fprintf(os.Stderr, "no such row: %s\n", args[0])
		return protocol.Ticket{}, false
	}
	return tickets[n-1], true
}

func editTicket(state *session.State, t protocol.Ticket, scanner *bufio.Scanner) {
	fields := t.Fields()

	fmt.Printf("name [%s]: ", fields.Name)
	if scanner.Scan() {
		if v := strings.TrimSpace(scanner.Text()); v != "" {
			fields.Name = v
		}
	}
	fmt.Printf("description [%s]: ", fields.Description)
	if scanner.Scan() {
		if v := strings.TrimSpace(scanner.Text()); v != "" {
			fields.Description = v
		}
	}
	fmt.Printf("estimate [%d]: ", fields.Estimate)
	if scanner.Scan() {
		if v := strings.TrimSpace(scanner.Text()); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				fmt.Fprintf(os.Stderr, "invalid estimate: %s\n", v)
				return
			}
			fields.Estimate = n
		}
	}

	if !state.Edit(t.ID, fields) {
		fmt.Fprintln(os.Stderr, "ticket vanished from the collection")
	}
}

func printTickets(tickets []protocol.Ticket) {
	for i, t := range tickets {
		marker := " "
		if t.SubTicketOf != "" {
			marker = "  └"
		} else if t.Expanded {
			marker = "+"
		}
		fmt.Printf("%3d %s %-50s %2d pts\n", i+1, marker, truncate(t.Subject, 50), t.EstimationPoints)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func saveSession(state *session.State, fileName string) error {
	dataDir := envOr("TICKETER_DATA_DIR", ".")
	s, err := store.NewSQLiteStore(filepath.Join(dataDir, "ticketer.db"))
	if err != nil {
		return err
	}
	defer s.DB().Close()

	batch, token := state.Batch()
	b := &store.Batch{
		ID:        uuid.NewString(),
		FileName:  fileName,
		Token:     token,
		CreatedAt: time.Now(),
	}
	if batch != nil {
		b.Bucket = batch.Bucket
	}
	for _, t := range state.Tickets() {
		rec := store.Record{Ticket: t}
		if p, ok := state.UploadedTo(t.ID); ok {
			rec.UploadedTo = p
			now := time.Now()
			rec.UploadedAt = &now
		}
		b.Tickets = append(b.Tickets, rec)
	}
	return s.SaveBatch(b)
}

// --- daemon API commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdBatchesList(args []string) {
	fs := flag.NewFlagSet("batches list", flag.ExitOnError)
	file := fs.String("file", "", "Filter by transcript file name")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *file != "" {
		query += "&file=" + *file
	}

	body, err := apiGet("/api/batches" + query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var batches []map[string]any
	json.Unmarshal(body, &batches)
	for _, b := range batches {
		fmt.Printf("%-36s %-30s %s\n", b["id"], b["file_name"], b["created_at"])
	}
}

func cmdBatchesShow(id string) {
	body, err := apiGet("/api/batches/" + id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdConfigValidate(path string) {
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiGet(path string) ([]byte, error) {
	base := envOr("TICKETER_STATUS_URL", "http://localhost:8080")
	url := base + path

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("TICKETER_STATUS_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("ticketer — transcript-to-tickets CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run <path>           Upload a transcript, generate tickets, and review them")
	fmt.Println("  upload <path>        Upload a transcript (--force to skip overwrite prompt)")
	fmt.Println("  fetch <url>          Download a transcript from a URL into a local .txt file")
	fmt.Println("  health               Check daemon health")
	fmt.Println("  batches list         List processed batches (--file, --limit)")
	fmt.Println("  batches show <id>    Show one batch with its tickets")
	fmt.Println("  config validate <p>  Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  TICKETER_API_URL     Ticket service URL (default: http://localhost:8000)")
	fmt.Println("  TICKETER_API_TOKEN   Ticket service bearer token (required)")
	fmt.Println("  TICKETER_STATUS_URL  Daemon status URL (default: http://localhost:8080)")
	fmt.Println("  TICKETER_STATUS_KEY  Daemon status API key")
	fmt.Println("  TICKETER_DATA_DIR    Where 'save' writes ticketer.db (default: .)")
}
