package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/stereotype/internal/catalog"
	"github.com/conduit-lang/stereotype/internal/cli/ui"
	"github.com/conduit-lang/stereotype/internal/stereotype"
)

// Catalog backends selectable with --backend
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type catalogOptions struct {
	*globalOptions
	kind    string
	publish bool
	backend string
	ttl     time.Duration
	json    bool
}

// NewCatalogCommand creates the catalog command
func NewCatalogCommand(global *globalOptions) *cobra.Command {
	opts := &catalogOptions{globalOptions: global}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List declared components",
		Long: `List every declaration carrying a stereotype, grouped by kind.

With --publish the catalog is also written to Redis (redis.addr) so other
processes can read it. Without a Redis address it is published in memory.

Examples:
  stereotype catalog
  stereotype catalog --kind Service
  stereotype catalog --json
  stereotype catalog --publish --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "Only list components of this kind")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Publish the catalog")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Publish backend: redis or memory (default: redis when redis.addr is set)")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "Expire the published snapshot after this long")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the catalog as JSON")

	return cmd
}

func runCatalog(cmd *cobra.Command, opts *catalogOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if opts.kind != "" && !slices.Contains(stereotype.Kinds(), opts.kind) {
		fmt.Fprint(cmd.ErrOrStderr(), ui.KindNotFoundError(opts.kind, stereotype.Kinds(), opts.noColor))
		return fmt.Errorf("unknown stereotype kind %q", opts.kind)
	}

	env, err := setup(ctx, cmd, opts.globalOptions, nil)
	if err != nil {
		return err
	}
	defer env.Close(ctx)

	snap, err := catalog.Take(env.store)
	if err != nil {
		return err
	}
	if opts.kind != "" {
		snap.Entries = append([]catalog.Entry{}, snap.ByKind(opts.kind)...)
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return err
		}
	} else {
		renderCatalog(cmd, snap, opts.noColor)
	}

	if !opts.publish {
		return nil
	}

	backend, closeBackend, err := openBackend(ctx, env, opts.backend)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.PublishError(err.Error(), opts.noColor))
		return err
	}
	defer closeBackend()

	publisher := catalog.NewPublisher(backend, env.cfg.Catalog.Prefix,
		catalog.WithTTL(opts.ttl),
		catalog.WithLogger(env.logger.Named("catalog")),
	)
	err = ui.WithSpinner(cmd.ErrOrStderr(), "Publishing catalog", opts.noColor, func() error {
		return publisher.Write(ctx, snap)
	})
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.PublishError(err.Error(), opts.noColor))
		return err
	}

	ui.WriteSuccess(out, fmt.Sprintf("Published %s as %s", snap.ID, publisher.LatestKey()), opts.noColor)
	return nil
}

func renderCatalog(cmd *cobra.Command, snap *catalog.Snapshot, noColor bool) {
	out := cmd.OutOrStdout()

	kv := ui.NewKeyValueTable(out, noColor)
	kv.AddRow("Snapshot", snap.ID.String())
	kv.AddRow("Policy", snap.Policy)
	kv.AddRow("Components", fmt.Sprint(len(snap.Entries)))
	kv.Render()
	fmt.Fprintln(out)

	if len(snap.Entries) == 0 {
		fmt.Fprint(out, ui.Info("No components declared.", noColor))
		return
	}

	table := ui.NewTable(out, []string{"Kind", "Name", "Declaration", "Metadata"}, &ui.TableOptions{NoColor: noColor})
	for _, e := range snap.Entries {
		table.AddRow(e.Kind, e.Name, e.Declaration, string(e.Metadata))
	}
	table.Render()
}

func openBackend(ctx context.Context, env *environment, name string) (catalog.Backend, func(), error) {
	if name == "" {
		name = BackendMemory
		if env.cfg.Redis.Addr != "" {
			name = BackendRedis
		}
	}

	switch name {
	case BackendMemory:
		return catalog.NewMemoryBackend(), func() {}, nil
	case BackendRedis:
		if env.cfg.Redis.Addr == "" {
			return nil, nil, fmt.Errorf("redis.addr is not set")
		}
		backend, err := catalog.NewRedisBackend(ctx, catalog.RedisConfig{
			Addr:     env.cfg.Redis.Addr,
			Password: env.cfg.Redis.Password,
			DB:       env.cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", env.cfg.Redis.Addr, err)
		}
		return backend, func() { _ = backend.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q, expected %s or %s", name, BackendRedis, BackendMemory)
	}
}
