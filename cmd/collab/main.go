// Command collab is a terminal client for the collabhub backend. It
// signs in, lists project data, and can tail the realtime change feed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"collabhub/platform/internal/client"
	"collabhub/platform/internal/client/cache"
	"collabhub/platform/internal/client/realtime"
	"collabhub/platform/internal/client/session"
	"collabhub/platform/internal/client/sync"
	"collabhub/platform/internal/models"
)

func main() {
	godotenv.Load()
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("collab ")

	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("error: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("collab", flag.ExitOnError)
	baseURL := fs.String("server", envOr("COLLAB_SERVER", "http://localhost:8090"), "backend base URL")
	stateDir := fs.String("state", defaultStateDir(), "directory for the persisted session")
	fs.Usage = usage(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	persistent, err := cache.NewFileKV(filepath.Join(*stateDir, "state.json"))
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}

	cli := client.New(*baseURL, nil)
	mgr := session.NewManager(cli, cache.NewMemoryKV(), persistent, log.Default(), session.Options{})
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "login":
		return cmdLogin(ctx, mgr, rest)
	case "register":
		return cmdRegister(ctx, mgr, rest)
	case "logout":
		mgr.Logout(ctx)
		fmt.Println("signed out")
		return nil
	case "whoami":
		return cmdWhoami(ctx, mgr)
	case "list":
		return cmdList(ctx, mgr, cli, rest)
	case "summary":
		return cmdSummary(ctx, mgr, cli, rest)
	case "watch":
		return cmdWatch(ctx, mgr, cli, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdLogin(ctx context.Context, mgr *session.Manager, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	remember := fs.Bool("remember", true, "keep the session across runs")
	fs.Parse(args)
	if *email == "" || *password == "" {
		return fmt.Errorf("login needs -email and -password")
	}
	if err := mgr.Login(ctx, *email, *password, *remember); err != nil {
		return err
	}
	user := mgr.CurrentUser()
	fmt.Printf("signed in as %s (%s)\n", user.Name, user.Role)
	return nil
}

func cmdRegister(ctx context.Context, mgr *session.Manager, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	name := fs.String("name", "", "display name")
	role := fs.String("role", models.RoleStudent, "student or mentor")
	fs.Parse(args)
	if *email == "" || *password == "" || *name == "" {
		return fmt.Errorf("register needs -email, -password and -name")
	}
	if err := mgr.Register(ctx, *email, *password, *name, *role, true); err != nil {
		return err
	}
	fmt.Printf("registered %s\n", *email)
	return nil
}

func cmdWhoami(ctx context.Context, mgr *session.Manager) error {
	if err := mgr.Bootstrap(ctx); err != nil {
		return err
	}
	user := mgr.CurrentUser()
	if user == nil {
		fmt.Println("not signed in")
		return nil
	}
	out, _ := json.MarshalIndent(user, "", "  ")
	fmt.Println(string(out))
	return nil
}

func cmdList(ctx context.Context, mgr *session.Manager, cli *client.Client, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	project := fs.String("project", "", "scope to one project ID")
	fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("list needs a table name")
	}
	if err := requireSession(ctx, mgr); err != nil {
		return err
	}
	rows, err := cli.ListRows(ctx, fs.Arg(0), *project)
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Println(string(row))
	}
	fmt.Fprintf(os.Stderr, "%d rows\n", len(rows))
	return nil
}

func cmdSummary(ctx context.Context, mgr *session.Manager, cli *client.Client, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("summary needs a project ID")
	}
	if err := requireSession(ctx, mgr); err != nil {
		return err
	}
	summary, source, err := sync.NewSummarizer(cli).Summarize(ctx, args[0])
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "via %s\n", source)
	return nil
}

func cmdWatch(ctx context.Context, mgr *session.Manager, cli *client.Client, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	project := fs.String("project", "", "scope to one project ID")
	fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("watch needs a table name")
	}
	if err := requireSession(ctx, mgr); err != nil {
		return err
	}

	filter := ""
	if *project != "" {
		filter = "project_id=" + *project
	}
	sub := realtime.NewSubscriber(cli, log.Default()).Subscribe(ctx, fs.Arg(0), filter)
	defer sub.Unsubscribe()

	fmt.Fprintf(os.Stderr, "watching %s, ctrl-c to stop\n", fs.Arg(0))
	for ev := range sub.Events() {
		fmt.Printf("%s %s %s\n", ev.CommitTime.Format("15:04:05"), ev.Type, string(ev.Record))
	}
	return nil
}

func requireSession(ctx context.Context, mgr *session.Manager) error {
	if err := mgr.Bootstrap(ctx); err != nil {
		return err
	}
	if mgr.State() != session.StateAuthenticated {
		return fmt.Errorf("not signed in, run collab login first")
	}
	return nil
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "collab")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintln(os.Stderr, "usage: collab [flags] <command> [args]")
		fmt.Fprintln(os.Stderr, "commands: login, register, logout, whoami, list, summary, watch")
		fs.PrintDefaults()
	}
}
