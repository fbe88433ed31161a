// Package cli implements the command-line surface: upload, download, listing
// and deletion of files plus management of provider configurations.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/chunkvault/internal/config"
	"github.com/dmitrijs2005/chunkvault/internal/cryptox"
	"github.com/dmitrijs2005/chunkvault/internal/filex"
	"github.com/dmitrijs2005/chunkvault/internal/flagx"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/pipeline"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/providers"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/repomanager"
	"github.com/dmitrijs2005/chunkvault/internal/router"
)

// configFlags are the flags consumed by the config layers; they are stripped
// from os.Args before subcommand dispatch.
var configFlags = []string{"-c", "-config", "-d", "-n", "-p", "-z", "-r", "-t", "-s"}

// dataDirName is where the local metadata database lives when the DSN is a
// relative sqlite path.
const dataDirName = "chunkvault-data"

type App struct {
	config        *config.Config
	db            *sql.DB
	svc           *pipeline.Service
	providersRepo providers.Repository
	log           logging.Logger
	reader        *bufio.Reader
	out           io.Writer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	log := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := c.DatabaseDSN
	if c.DatabaseDriver == "sqlite" && !filepath.IsAbs(dsn) {
		dir, err := filex.EnsureSubDir(dataDirName)
		if err != nil {
			return nil, err
		}
		dsn = filepath.Join(dir, dsn)
	}

	db, manager, err := repomanager.Open(ctx, c.DatabaseDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	providersRepo := manager.Providers(db)

	rt := router.New(providersRepo, router.RetryPolicy{
		MaxAttempts: c.RetryMaxAttempts,
		BaseBackoff: c.RetryBaseBackoff,
		MaxBackoff:  c.RetryMaxBackoff,
		CallTimeout: c.CallTimeout,
	}, log)

	ks := cryptox.NewKeystore([]byte(c.KeystoreSecret))
	svc := pipeline.NewService(db, manager, rt, ks, c.DefaultChunkSize, log)

	return &App{
		config:        c,
		db:            db,
		svc:           svc,
		providersRepo: providersRepo,
		log:           log,
		reader:        bufio.NewReader(os.Stdin),
		out:           os.Stdout,
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// Run dispatches the subcommand found in args (usually os.Args[1:], config
// flags included; they are stripped here).
func (a *App) Run(ctx context.Context, args []string) error {
	return dispatch(ctx, a, flagx.StripArgs(args, configFlags))
}

// commandSet is the surface the dispatcher drives. The real App satisfies
// it; tests can provide a lightweight stub.
type commandSet interface {
	upload(ctx context.Context, args []string) error
	download(ctx context.Context, args []string) error
	list(ctx context.Context) error
	remove(ctx context.Context, args []string) error
	provider(ctx context.Context, args []string) error
	usage() error
}

// dispatch parses the first positional argument as the command and invokes
// the matching handler.
//
// Commands:
//
//	upload <path> [description]     encrypt and store a file
//	download <id> [dest]            reassemble a stored file
//	ls                              list stored files
//	rm <id>                         delete a stored file
//	provider add <name> <platform>  register a provider configuration
//	provider ls                     list provider configurations
//	provider rm <name>              delete a provider configuration
func dispatch(ctx context.Context, c commandSet, args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "upload":
		return c.upload(ctx, rest)
	case "download", "get":
		return c.download(ctx, rest)
	case "ls", "list":
		return c.list(ctx)
	case "rm", "delete":
		return c.remove(ctx, rest)
	case "provider":
		return c.provider(ctx, rest)
	case "help":
		return c.usage()
	default:
		_ = c.usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *App) usage() error {
	_, err := fmt.Fprint(a.out, `Usage: chunkvault [flags] <command>

Commands:
  upload <path> [description]      encrypt and store a file
  download <id> [dest]             reassemble a stored file
  ls                               list stored files
  rm <id>                          delete a stored file
  provider add <name> <platform>   register a provider configuration
  provider ls                      list provider configurations
  provider rm <name>               delete a provider configuration
`)
	return err
}
