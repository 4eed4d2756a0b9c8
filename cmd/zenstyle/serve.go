package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zenstyle/internal/browser"
	"zenstyle/internal/config"
	"zenstyle/internal/engine"
	"zenstyle/internal/httpapi"
	"zenstyle/internal/injector"
	"zenstyle/internal/logger"
	"zenstyle/internal/store"
	"zenstyle/internal/store/redisstore"
	"zenstyle/internal/updater"

	"github.com/fatih/color"
)

func newUpdater(cfg *config.Config, e *engine.Engine, l logger.Logger) *updater.Updater {
	return updater.New(e.Settings(), l,
		updater.WithHTTPClient(&http.Client{Timeout: cfg.Updater.Timeout}),
		updater.WithInterval(cfg.Updater.Interval),
	)
}

func cmdServe(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 其他进程的写入经 pub/sub 到达后同样触发缓存失效
	if rs, ok := a.store.(*redisstore.Store); ok {
		if err := rs.Watch(ctx); err != nil {
			return err
		}
	}

	u := a.updater()
	go u.Run(ctx)

	if a.cfg.DevTools.Enabled {
		devtoolsURL := a.cfg.DevTools.URL
		if a.cfg.DevTools.Launch {
			b, err := browser.Start(ctx, browser.Options{
				ExecPath:    a.cfg.DevTools.ExecPath,
				UserDataDir: a.cfg.DevTools.UserDataDir,
				Headless:    a.cfg.DevTools.Headless,
				Port:        a.cfg.DevTools.Port,
			}, a.log)
			if err != nil {
				return err
			}
			defer b.Stop(5 * time.Second)
			devtoolsURL = b.DevToolsURL
			color.Cyan("[+] Browser started, DevTools at %s", devtoolsURL)
		}
		inj := injector.New(injector.Options{
			DevToolsURL: devtoolsURL,
			Concurrency: a.cfg.DevTools.Concurrency,
		}, a.engine, nil, a.log)
		// 引擎先注册监听，此时缓存已失效
		a.store.OnChange(func(map[string]store.Change, string) { inj.Refresh() })
		go func() {
			if err := inj.Run(ctx); err != nil {
				a.log.Err(err, "页面注入器退出")
				color.Yellow("[!] DevTools injector stopped: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           httpapi.NewServer(a.service(u), a.log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	color.Green("[+] Listening on http://%s", a.cfg.HTTP.Addr)
	a.log.Info("HTTP 接口已启动", "addr", a.cfg.HTTP.Addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.log.Info("正在关闭 HTTP 接口")
	return srv.Shutdown(shutdownCtx)
}
