package main

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/hupe1980/stratum"
	"github.com/hupe1980/stratum/blob"
	"github.com/hupe1980/stratum/blobstore"
	"github.com/hupe1980/stratum/config"
	"github.com/hupe1980/stratum/consumer"
	"github.com/hupe1980/stratum/read"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "stratumctl",
		Usage: "inspect stratum blobs, versions and update plans",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration selecting the store",
				EnvVars: []string{"STRATUM_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "print the header of a blob file and, for snapshots, its types",
				ArgsUsage: "<file>",
				Action:    inspect,
			},
			{
				Name:   "versions",
				Usage:  "list the versions in the store",
				Action: versions,
			},
			{
				Name:  "plan",
				Usage: "print the blobs a consumer would load",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Value: "none", Usage: "current version, or none"},
					&cli.StringFlag{Name: "to", Value: "latest", Usage: "desired version, or latest"},
				},
				Action: plan,
			},
			{
				Name:      "pin",
				Usage:     "announce a version, pinning consumers to it",
				ArgsUsage: "<version>",
				Action:    pin,
			},
			{
				Name:  "clean",
				Usage: "delete all but the newest snapshots",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "keep", Value: 5, Usage: "snapshots to keep"},
				},
				Action: clean,
			},
		},
	}
}

func parseVersion(s string) (int64, error) {
	switch s {
	case "none":
		return blob.VersionNone, nil
	case "latest":
		return blob.VersionLatest, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	return v, nil
}

type env struct {
	cfg   *config.Config
	store blobstore.BlobStore
	opts  []stratum.Option
}

func openEnv(c *cli.Context) (*env, error) {
	path := c.String("config")
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	store, opts, err := cfg.Open(c.Context)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, store: store, opts: opts}, nil
}

func inspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("inspect takes one file")
	}
	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	h, body, err := blob.Decode(data)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "kind\t%s\n", h.Kind)
	fmt.Fprintf(w, "from\t%s\n", blob.FormatVersion(h.FromVersion))
	fmt.Fprintf(w, "to\t%s\n", blob.FormatVersion(h.ToVersion))
	fmt.Fprintf(w, "origin tag\t%016x\n", h.OriginTag)
	fmt.Fprintf(w, "destination tag\t%016x\n", h.DestinationTag)
	fmt.Fprintf(w, "compression\t%s\n", h.Compression)
	fmt.Fprintf(w, "body bytes\t%d\n", len(body))
	keys := make([]string, 0, len(h.Tags))
	for k := range h.Tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "tag %s\t%s\n", k, h.Tags[k])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if h.Kind != blob.Snapshot {
		return nil
	}

	e := read.NewEngine()
	if _, err := e.ApplySnapshot(bytes.NewReader(data)); err != nil {
		return err
	}
	w = tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nTYPE\tKIND\tRECORDS")
	for _, name := range e.TypeNames() {
		ts, _ := e.TypeState(name)
		fmt.Fprintf(w, "%s\t%s\t%d\n", name, ts.Schema().Kind(), ts.Cardinality())
	}
	return w.Flush()
}

func versions(c *cli.Context) error {
	env, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	blobs, err := stratum.NewCatalog(env.store, env.opts...).Blobs(ctx)
	if err != nil {
		return err
	}
	announced, err := stratum.NewWatcher(env.store, env.opts...).Latest(ctx)
	if err != nil {
		return err
	}

	type row struct {
		snapshot bool
		from     int64
	}
	rows := map[int64]*row{}
	for _, b := range blobs {
		if b.IsReverseDelta() {
			continue
		}
		r, ok := rows[b.ToVersion()]
		if !ok {
			r = &row{from: blob.VersionNone}
			rows[b.ToVersion()] = r
		}
		if b.IsSnapshot() {
			r.snapshot = true
		} else {
			r.from = b.FromVersion()
		}
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSNAPSHOT\tDELTA FROM\tANNOUNCED")
	for _, v := range slices.Sorted(maps.Keys(rows)) {
		r := rows[v]
		mark := ""
		if v == announced {
			mark = "*"
		}
		from := "-"
		if r.from != blob.VersionNone {
			from = strconv.FormatInt(r.from, 10)
		}
		fmt.Fprintf(w, "%d\t%t\t%s\t%s\n", v, r.snapshot, from, mark)
	}
	return w.Flush()
}

func plan(c *cli.Context) error {
	from, err := parseVersion(c.String("from"))
	if err != nil {
		return err
	}
	to, err := parseVersion(c.String("to"))
	if err != nil {
		return err
	}
	env, err := openEnv(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	if to == blob.VersionLatest {
		if to, err = latest(ctx, env); err != nil {
			return err
		}
	}

	planner := consumer.NewPlanner(stratum.NewCatalog(env.store, env.opts...),
		env.cfg.Consumer.AllowDoubleSnapshot, env.cfg.Consumer.MaxDeltasBeforeDoubleSnapshot)
	p, err := planner.Plan(ctx, from, to)
	if err != nil {
		return err
	}
	dest := p.DestinationVersion(from)
	if p.NumTransitions() == 0 {
		fmt.Fprintf(c.App.Writer, "no transitions from %s to %s\n", blob.FormatVersion(from), blob.FormatVersion(to))
		return nil
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tKIND\tFROM\tTO")
	for i, t := range p.Transitions() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, t.Kind(), blob.FormatVersion(t.FromVersion()), blob.FormatVersion(t.ToVersion()))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if dest != to {
		fmt.Fprintf(c.App.Writer, "plan reaches %s, not %s\n", blob.FormatVersion(dest), blob.FormatVersion(to))
	}
	return nil
}

// latest resolves the announced version, falling back to the newest
// version in the store when nothing is announced.
func latest(ctx context.Context, env *env) (int64, error) {
	v, err := stratum.NewWatcher(env.store, env.opts...).Latest(ctx)
	if err != nil || v != blob.VersionNone {
		return v, err
	}
	vs, err := stratum.NewCatalog(env.store, env.opts...).Versions(ctx)
	if err != nil || len(vs) == 0 {
		return blob.VersionLatest, err
	}
	return vs[len(vs)-1], nil
}

func pin(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("pin takes one version")
	}
	v, err := parseVersion(c.Args().First())
	if err != nil {
		return err
	}
	env, err := openEnv(c)
	if err != nil {
		return err
	}
	if err := stratum.NewAnnouncer(env.store, env.opts...).Announce(c.Context, v); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "announced %d\n", v)
	return nil
}

func clean(c *cli.Context) error {
	env, err := openEnv(c)
	if err != nil {
		return err
	}
	deleted, err := stratum.NewCatalog(env.store, env.opts...).CleanSnapshots(c.Context, c.Int("keep"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %d snapshots\n", len(deleted))
	return nil
}
