// storectl inspects and maintains the TutorHub store from the command
// line. It opens the backend selected by the same environment variables
// as the server, so writes it makes reach running servers as change
// signals.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"tutorhub/config"
	"tutorhub/db"
	"tutorhub/infrastructure/backend"
	"tutorhub/pkg/logger"
	"tutorhub/services/admin"
	"tutorhub/services/content"
	"tutorhub/services/sessions"
	"tutorhub/services/settings"
	"tutorhub/services/tickets"
	"tutorhub/store"
	"tutorhub/store/pgstore"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	envFile   string
	backend   string
	storeFile string
	verbose   bool
}

func run(args []string, out io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("storectl", pflag.ContinueOnError)
	flagSet.StringVar(&opts.envFile, "env-file", ".env", "environment file to load before reading configuration")
	flagSet.StringVar(&opts.backend, "backend", "", "override STORE_BACKEND (memory, file, redis, postgres)")
	flagSet.StringVar(&opts.storeFile, "store-file", "", "override STORE_FILE for the file backend")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.SetInterspersed(false)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(flagSet)
		return nil
	}

	if opts.envFile != "" {
		// A missing env file is normal outside development
		_ = godotenv.Load(opts.envFile)
	}
	if opts.backend != "" {
		os.Setenv("STORE_BACKEND", opts.backend)
	}
	if opts.storeFile != "" {
		os.Setenv("STORE_FILE", opts.storeFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.Discard()
	if opts.verbose {
		log, err = logger.NewWithConfig(logger.Config{Output: os.Stderr, Level: logger.ParseLevel(cfg.Server.LogLevel)})
		if err != nil {
			return err
		}
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handles, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer handles.Close()

	tool := newTool(cfg, handles, log, out)
	command, rest := flagSet.Arg(0), flagSet.Args()[1:]
	return tool.dispatch(ctx, command, rest)
}

// tool holds the services a command may need
type tool struct {
	cfg      *config.Config
	handles  *backend.Handles
	store    *store.Store
	sessions *sessions.SessionManager
	settings *settings.Registry
	mailbox  *tickets.Mailbox
	content  *content.Service
	console  *admin.Console
	out      io.Writer
}

func newTool(cfg *config.Config, handles *backend.Handles, log *logger.Logger, out io.Writer) *tool {
	st := store.New(handles.Backend, nil, store.Options{Logger: log, MutateRetries: cfg.Store.MutateRetries})
	sm := sessions.NewSessionManager(st, sessions.Options{HashPasswords: cfg.Auth.HashPasswords, Logger: log})
	reg := settings.NewRegistry(st, log)
	mb := tickets.NewMailbox(st, tickets.Options{Logger: log})

	return &tool{
		cfg:      cfg,
		handles:  handles,
		store:    st,
		sessions: sm,
		settings: reg,
		mailbox:  mb,
		content:  content.NewService(st, content.Options{Logger: log}),
		console:  admin.NewConsole(sm, mb, reg, log),
		out:      out,
	}
}

func (t *tool) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "keys":
		return t.keys(ctx, optionalArg(args))
	case "collections":
		return t.collections(ctx)
	case "dump":
		if len(args) != 1 {
			return fmt.Errorf("usage: storectl dump <key>")
		}
		return t.dump(ctx, args[0])
	case "seed":
		if len(args) != 1 {
			return fmt.Errorf("usage: storectl seed <file.yaml>")
		}
		return t.seed(ctx, args[0])
	case "block", "unblock":
		if len(args) != 1 {
			return fmt.Errorf("usage: storectl %s <user-id>", command)
		}
		return t.setBlocked(ctx, args[0], command == "block")
	case "rebuild-index":
		return t.rebuildIndex(ctx)
	case "migrate", "migrate-status":
		return t.migrate(command == "migrate-status")
	}
	return fmt.Errorf("unknown command %q", command)
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func (t *tool) keys(ctx context.Context, prefix string) error {
	keys, err := t.store.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintln(t.out, k)
	}
	return nil
}

// collections prints the record count of each fixed collection key.
// Undecodable values count as empty, the same way the services read them.
func (t *tool) collections(ctx context.Context) error {
	for _, key := range db.CollectionKeys() {
		records, err := store.NewCollection[json.RawMessage](t.store, key, nil).List(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(t.out, "%s\t%d\n", key, len(records))
	}
	return nil
}

func (t *tool) dump(ctx context.Context, key string) error {
	raw, found, err := t.store.Raw(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("key %q not found", key)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		// Not JSON; print as stored
		fmt.Fprintln(t.out, raw)
		return nil
	}
	fmt.Fprintln(t.out, buf.String())
	return nil
}

func (t *tool) seed(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	seed, err := ParseSeed(f)
	if err != nil {
		return err
	}

	seeder := &Seeder{
		Store:         t.store,
		Settings:      t.settings,
		Content:       t.content,
		HashPasswords: t.cfg.Auth.HashPasswords,
	}
	report, err := seeder.Apply(ctx, seed)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "seeded %s\n", report)
	return nil
}

func (t *tool) setBlocked(ctx context.Context, id string, blocked bool) error {
	user, err := t.console.SetBlocked(ctx, id, blocked)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "%s blocked=%v\n", user.ID, user.IsBlocked)
	return nil
}

func (t *tool) rebuildIndex(ctx context.Context) error {
	n, err := t.mailbox.RebuildIndex(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "rebuilt %d tickets\n", n)
	return nil
}

func (t *tool) migrate(statusOnly bool) error {
	if t.handles.DB == nil {
		return fmt.Errorf("migrations apply to the postgres backend only (current: %s)", t.handles.Backend.Name())
	}
	if statusOnly {
		return pgstore.MigrationStatus(t.handles.DB)
	}
	// Open already migrated; running again reports an up-to-date schema
	if err := pgstore.Migrate(t.handles.DB); err != nil {
		return err
	}
	fmt.Fprintln(t.out, "migrations applied")
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `storectl inspects and maintains the TutorHub store.

Usage:
  storectl [flags] <command> [args]

Commands:
  keys [prefix]        list stored keys
  collections          count records in each collection
  dump <key>           print a stored value
  seed <file.yaml>     upsert users, settings and content from YAML
  block <user-id>      block a user (signs them out everywhere)
  unblock <user-id>    unblock a user
  rebuild-index        regenerate the ticket index from support logs
  migrate              apply postgres schema migrations
  migrate-status       show postgres migration status

Flags:
%s`, flagSet.FlagUsages())
}
