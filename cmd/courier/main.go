// Command courier runs the private-messaging server and offers operator
// tools over its record store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/najoast/courier/bootstrap"
	"github.com/najoast/courier/comms"
	"github.com/najoast/courier/config"
	"github.com/najoast/courier/markup"
	"github.com/najoast/courier/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "courier",
		Short:        "Private messaging and inline emote server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is normal; anything else is worth reporting.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (default: search ./, ./config, /etc/courier)")

	root.AddCommand(newServeCmd(&configFile))
	root.AddCommand(newHistoryCmd(&configFile))
	root.AddCommand(newVersionCmd())
	return root
}

func loadConfig(configFile string) (*config.Config, string, error) {
	loader := config.NewLoader()
	if configFile == "" {
		if found, err := loader.FindConfigFile(); err == nil {
			configFile = found
		}
	}
	cfg, err := loader.Load(configFile)
	return cfg, configFile, err
}

func newServeCmd(configFile *string) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(*configFile)
			if err != nil {
				return err
			}

			var opts []bootstrap.Option
			if path != "" && !noWatch {
				opts = append(opts, bootstrap.WithConfigFile(path))
			}

			app, err := bootstrap.New(cfg, opts...)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the configuration file when it changes")
	return cmd
}

func newHistoryCmd(configFile *string) *cobra.Command {
	var (
		limit     int
		filter    string
		kind      string
		storePath string
	)

	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Print a character's recent messages from the record store",
		Long: `Reads the record store directly, so it works while the server is stopped.
The output matches what the character sees with "pages".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, ok := comms.ParseFilter(filter)
			if !ok {
				return fmt.Errorf("unknown filter %q: use sent, received or both", filter)
			}
			k := comms.Kind(kind)
			if !k.IsValid() {
				return fmt.Errorf("unknown kind %q: use page or whisper", kind)
			}

			if storePath == "" {
				cfg, _, err := loadConfig(*configFile)
				if err != nil {
					return err
				}
				storePath = cfg.StorePath()
			}

			db, err := store.Open(storePath, store.Options{ReadOnly: true})
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			records, err := comms.NewHistory(db).Query(ctx, strings.ToLower(args[0]), k, limit, f)
			if err != nil {
				return err
			}
			printHistory(cmd, args[0], records, time.Now())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", comms.DefaultHistoryLimit, "Number of records to show")
	cmd.Flags().StringVar(&filter, "filter", "both", "Which side to show: sent, received or both")
	cmd.Flags().StringVar(&kind, "kind", string(comms.KindPage), "Record kind: page or whisper")
	cmd.Flags().StringVar(&storePath, "store", "", "Pebble directory (default: from configuration)")
	return cmd
}

func printHistory(cmd *cobra.Command, name string, records []comms.Record, now time.Time) {
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintf(out, "No records for %s.\n", name)
		return
	}
	for _, r := range records {
		fmt.Fprintf(out, "%s %s to %s: %s\n", markup.Stamp(r.CreatedAt, now), r.Sender.Name, r.ReceiverNames(), r.Body)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "courier %s\n", version)
		},
	}
}
