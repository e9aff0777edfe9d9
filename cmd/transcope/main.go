package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/transcope/fleet-auth/internal/client"
	"github.com/transcope/fleet-auth/internal/session"
	"github.com/transcope/fleet-auth/pkg/logger"
)

const usage = `transcope - Transcope session command line

Usage:
  transcope [global flags] <command> [flags]

Commands:
  signup           create an account and sign in
  login            sign in with email and password
  whoami           show the signed-in user (-verify re-checks with the server)
  logout           sign out and revoke the stored token
  forgot-password  request password reset instructions
  users            list all users (managers only)

Global flags:
`

func main() {
	server := flag.String("server", envOr("TRANSCOPE_SERVER", "http://localhost:8080"), "API base URL")
	state := flag.String("state", defaultStatePath(), "session state file")
	verbose := flag.Bool("v", false, "debug logging")
	timeout := flag.Duration("timeout", 15*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.Init(logger.Options{Level: level, Pretty: true, Service: "transcope-cli", Output: os.Stderr})

	storage := client.NewFileStorage(*state)
	api := client.New(*server, storage, client.WithTimeout(*timeout))
	mgr, err := session.NewManager(api, storage, session.WithLogger(log))
	if err != nil {
		fatalf("load session: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := run(ctx, cmd, args, api, mgr); err != nil {
		fatalf("%s: %v", cmd, err)
	}
}

func run(ctx context.Context, cmd string, args []string, api *client.Client, mgr *session.Manager) error {
	switch cmd {
	case "signup":
		fs := flag.NewFlagSet("signup", flag.ExitOnError)
		name := fs.String("name", "", "full name")
		email := fs.String("email", "", "email address")
		password := fs.String("password", os.Getenv("TRANSCOPE_PASSWORD"), "password (or TRANSCOPE_PASSWORD)")
		role := fs.String("role", "DISPATCHER", "MANAGER, DISPATCHER, SAFETY_OFFICER or FINANCIAL_ANALYST")
		_ = fs.Parse(args)
		u, err := mgr.Signup(ctx, *name, *email, *password, *role)
		if err != nil {
			return err
		}
		fmt.Printf("Signed up as %s (%s)\n", u.Name, client.RoleDisplayName(u.Role))

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		password := fs.String("password", os.Getenv("TRANSCOPE_PASSWORD"), "password (or TRANSCOPE_PASSWORD)")
		_ = fs.Parse(args)
		u, err := mgr.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (%s)\n", u.Name, client.RoleDisplayName(u.Role))

	case "whoami":
		fs := flag.NewFlagSet("whoami", flag.ExitOnError)
		verify := fs.Bool("verify", false, "re-check the session with the server")
		_ = fs.Parse(args)
		u := mgr.User()
		if *verify {
			var err error
			if u, err = mgr.Revalidate(ctx); err != nil {
				return err
			}
		}
		if u == nil {
			return errors.New("not logged in")
		}
		fmt.Printf("%s <%s>\nrole: %s\nid:   %s\n", u.Name, u.Email, client.RoleDisplayName(u.Role), u.ID)

	case "logout":
		if err := mgr.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out")

	case "forgot-password":
		fs := flag.NewFlagSet("forgot-password", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		_ = fs.Parse(args)
		res, err := api.ForgotPassword(ctx, *email)
		if err != nil {
			return err
		}
		fmt.Println(res.Message)

	case "users":
		if !mgr.HasRole("MANAGER") {
			return errors.New("managers only")
		}
		users, err := api.ListUsers(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tEMAIL\tROLE\tCREATED")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Name, u.Email, client.RoleDisplayName(u.Role), u.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".transcope-session.json"
	}
	return filepath.Join(home, ".transcope", "session.json")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "transcope: "+format+"\n", args...)
	os.Exit(1)
}
