package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"zenstyle/internal/config"
	"zenstyle/internal/engine"
	"zenstyle/internal/logger"
	"zenstyle/internal/settings"
	"zenstyle/internal/storage/db"
	"zenstyle/internal/store"
	"zenstyle/internal/store/redisstore"
	"zenstyle/internal/store/sqlstore"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const usage = `Usage: zenstyle [-config file] [-json] <command> [args]

Commands:
  serve                          run engine, updater, HTTP API and optional tab injector
  decide <host>                  explain the styling decision for a host
  css <host>                     print the CSS that would be injected
  fetch                          fetch the style catalog from the repository now
  catalog                        print the cached catalog as a tree
  lint                           parse every feature CSS in the catalog
  set <key> <true|false>         change a global setting
  list <list> [<host> <true|false>]
                                 print a list or change a host's membership
`

// app 一次命令执行所需的组件
type app struct {
	cfg    *config.Config
	log    logger.Logger
	store  store.Store
	engine *engine.Engine
	json   bool
	out    io.Writer
	close  func()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("zenstyle", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	asJSON := fs.Bool("json", false, "print results as JSON")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		color.Red("[-] %v", err)
		return 1
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	handler, ok := commands[cmd]
	if !ok {
		color.Red("[-] unknown command: %s", cmd)
		fs.Usage()
		return 2
	}

	ctx := context.Background()
	a, err := bootstrap(ctx, cfg, cmd == "serve")
	if err != nil {
		color.Red("[-] %v", err)
		return 1
	}
	defer a.close()
	a.json = *asJSON

	if err := handler(ctx, a, rest); err != nil {
		if a.json {
			a.printJSON(failure(err))
		} else {
			color.Red("[-] %v", err)
		}
		return 1
	}
	return 0
}

// bootstrap 按配置打开存储并启动引擎
func bootstrap(ctx context.Context, cfg *config.Config, serving bool) (*app, error) {
	writers := cfg.Log.Writer
	if !serving {
		// 一次性命令不写控制台日志，避免干扰输出
		writers = lo.Without(writers, "console")
	}
	l := logger.New(logger.Options{Level: cfg.Log.Level, Writers: writers})

	var (
		st      store.Store
		closers []func()
	)
	switch cfg.Storage.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Storage.Redis.Addr, DB: cfg.Storage.Redis.DB})
		rs := redisstore.New(client, cfg.Storage.Redis.Prefix, l)
		if err := rs.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		st = rs
		closers = append(closers, func() { _ = client.Close() })
	default:
		ss, err := sqlstore.Open(db.Options{
			Name:   cfg.Storage.Sqlite.Db,
			Prefix: cfg.Storage.Sqlite.Prefix,
		}, l)
		if err != nil {
			return nil, err
		}
		st = ss
		closers = append(closers, func() { _ = ss.Close() })
	}

	m := settings.New(st, l, settings.WithDefaultRepositoryURL(cfg.Updater.RepositoryURL))
	e := engine.New(m, engine.Options{TTL: cfg.Cache.TTL, Capacity: cfg.Cache.Capacity}, l)
	if err := e.Start(ctx); err != nil {
		for _, c := range closers {
			c()
		}
		return nil, err
	}

	return &app{
		cfg:    cfg,
		log:    l,
		store:  st,
		engine: e,
		out:    os.Stdout,
		close: func() {
			e.Close()
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func (a *app) printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		color.Red("[-] %v", err)
		return
	}
	fmt.Fprintln(a.out, string(data))
}
