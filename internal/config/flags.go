package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   database driver ("sqlite" or "pgx")
//	-n string   database DSN (SQLite path or PostgreSQL DSN)
//	-p string   default provider configuration name
//	-z int      default chunk size, bytes
//	-r int      retry attempts for rate-limited/transient storage errors
//	-t int      per storage call timeout, seconds
//	-s string   keystore secret
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, leaving subcommand arguments untouched.
//   - The timeout flag is accepted as an integer in seconds and converted
//     to a time.Duration.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-n", "-p", "-z", "-r", "-t", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDriver, "d", config.DatabaseDriver, "database driver")
	fs.StringVar(&config.DatabaseDSN, "n", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.DefaultProvider, "p", config.DefaultProvider, "default provider name")
	fs.Int64Var(&config.DefaultChunkSize, "z", config.DefaultChunkSize, "default chunk size (bytes)")
	fs.IntVar(&config.RetryMaxAttempts, "r", config.RetryMaxAttempts, "max storage retry attempts")

	callTimeout := fs.Int("t", int(config.CallTimeout.Seconds()), "per-call timeout (in seconds)")

	fs.StringVar(&config.KeystoreSecret, "s", config.KeystoreSecret, "keystore secret")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.CallTimeout = time.Duration(*callTimeout) * time.Second
}
