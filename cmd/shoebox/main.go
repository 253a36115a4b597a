package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	shoebox "github.com/meavi1994/go-shoebox"
	"github.com/meavi1994/go-shoebox/stores/pebblestore"
)

// Task is the value type the demo stores.
type Task struct {
	Title    string `json:"title"`
	List     string `json:"list"`
	Priority int    `json:"priority"`
}

func (t Task) String() string {
	return fmt.Sprintf("%s[%s p%d]", t.Title, t.List, t.Priority)
}

func byPriority(a, b Task) int {
	return cmp.Compare(a.Priority, b.Priority)
}

func byList(t Task) string {
	return t.List
}

func main() {
	app := cli.App{
		Name:  "shoebox",
		Usage: "demo of a live sorted view over a persistent key/value store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "pebble data directory",
				Value:   "data",
				EnvVars: []string{"SHOEBOX_DB"},
			},
			&cli.BoolFlag{
				Name:  "mem",
				Usage: "keep the database in memory",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity (error, warn, info, debug)",
				Value:   "info",
				EnvVars: []string{"SHOEBOX_LOG_LEVEL", "LOG_LEVEL"},
			},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:      "set",
			Usage:     "store a task",
			ArgsUsage: "<key> <list> <priority> <title>",
			Action:    runSet,
		},
		{
			Name:      "rm",
			Usage:     "remove a task",
			ArgsUsage: "<key>",
			Action:    runRemove,
		},
		{
			Name:      "ls",
			Usage:     "print one list ordered by priority",
			ArgsUsage: "<list>",
			Action:    runList,
		},
		{
			Name:  "demo",
			Usage: "follow a list while concurrent writers modify the store",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "list", Value: "inbox"},
				&cli.IntFlag{Name: "writers", Value: 4},
				&cli.IntFlag{Name: "tasks", Value: 8, Usage: "tasks per writer"},
			},
			Action: runDemo,
		},
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("exiting process", "error", err)
		os.Exit(1)
	}
}

func configLogger(cctx *cli.Context) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func openShoebox(cctx *cli.Context) (*shoebox.Shoebox[Task], func(), error) {
	logger := configLogger(cctx)
	opts := pebblestore.Options{
		Path:   cctx.String("db"),
		Logger: logger,
	}
	if cctx.Bool("mem") {
		opts.FS = vfs.NewMem()
	}
	store, err := pebblestore.Open[Task](opts)
	if err != nil {
		return nil, nil, err
	}
	box := shoebox.NewShoebox[Task](store, shoebox.WithLogger(logger))
	return box, func() { _ = store.Close() }, nil
}

func runSet(cctx *cli.Context) error {
	args := cctx.Args()
	if args.Len() < 4 {
		return fmt.Errorf("need <key> <list> <priority> <title>")
	}
	var prio int
	if _, err := fmt.Sscanf(args.Get(2), "%d", &prio); err != nil {
		return fmt.Errorf("invalid priority %q: %w", args.Get(2), err)
	}
	box, done, err := openShoebox(cctx)
	if err != nil {
		return err
	}
	defer done()

	task := Task{List: args.Get(1), Priority: prio, Title: strings.Join(args.Slice()[3:], " ")}
	return box.Set(cctx.Context, args.Get(0), task)
}

func runRemove(cctx *cli.Context) error {
	key := cctx.Args().First()
	if key == "" {
		return fmt.Errorf("need <key>")
	}
	box, done, err := openShoebox(cctx)
	if err != nil {
		return err
	}
	defer done()
	return box.Remove(cctx.Context, key)
}

func runList(cctx *cli.Context) error {
	list := cctx.Args().First()
	if list == "" {
		return fmt.Errorf("need <list>")
	}
	box, done, err := openShoebox(cctx)
	if err != nil {
		return err
	}
	defer done()

	view, err := shoebox.NewView(cctx.Context, box, byList)
	if err != nil {
		return err
	}
	defer view.Close()

	set, err := shoebox.NewOrderedViewSet[Task](cctx.Context, view, list, byPriority)
	if err != nil {
		return err
	}
	defer set.Close()

	for i, kv := range set.KeyValueEntries() {
		fmt.Printf("%3d  %-12s %v\n", i, kv.Key, kv.Value)
	}
	return nil
}

func runDemo(cctx *cli.Context) error {
	ctx := cctx.Context
	box, done, err := openShoebox(cctx)
	if err != nil {
		return err
	}
	defer done()

	list := cctx.String("list")
	view, err := shoebox.NewView(ctx, box, byList)
	if err != nil {
		return err
	}
	defer view.Close()

	set, err := shoebox.NewOrderedViewSet[Task](ctx, view, list, byPriority)
	if err != nil {
		return err
	}
	defer set.Close()

	set.OnInsert(func(index int, kv shoebox.KeyValue[Task]) {
		fmt.Printf("+ %3d %v\n", index, kv)
	})
	set.OnRemove(func(index int, kv shoebox.KeyValue[Task]) {
		fmt.Printf("- %3d %v\n", index, kv)
	})
	set.OnModify(func(oldValue, newValue Task) {
		fmt.Printf("~     %v -> %v\n", oldValue, newValue)
	})

	if err := writeTasks(ctx, box, list, cctx.Int("writers"), cctx.Int("tasks")); err != nil {
		return err
	}
	if err := set.Err(); err != nil {
		return err
	}

	fmt.Println("final order:")
	for i, kv := range set.KeyValueEntries() {
		fmt.Printf("%3d  %-12s %v\n", i, kv.Key, kv.Value)
	}
	return nil
}

// writeTasks has each writer add its tasks, reprioritize half of them and
// move every fourth one to another list.
func writeTasks(ctx context.Context, box *shoebox.Shoebox[Task], list string, writers, tasks int) error {
	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < writers; w++ {
		w := w
		eg.Go(func() error {
			for i := 0; i < tasks; i++ {
				key := fmt.Sprintf("w%d-t%02d", w, i)
				task := Task{Title: key, List: list, Priority: (i*7 + w) % 10}
				if err := box.Set(ctx, key, task); err != nil {
					return err
				}
				if i%2 == 0 {
					task.Priority = 10 - task.Priority
					if err := box.Set(ctx, key, task); err != nil {
						return err
					}
				}
				if i%4 == 3 {
					task.List = list + "-archive"
					if err := box.Set(ctx, key, task); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return eg.Wait()
}
