package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"zenstyle/internal/catalog"
	"zenstyle/internal/settings"
	"zenstyle/internal/updater"
	api "zenstyle/pkg/api"
	"zenstyle/pkg/domain"
	"zenstyle/pkg/errx"

	"github.com/aymerick/douceur/parser"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xlab/treeprint"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"serve":   cmdServe,
	"decide":  cmdDecide,
	"css":     cmdCSS,
	"fetch":   cmdFetch,
	"catalog": cmdCatalog,
	"lint":    cmdLint,
	"set":     cmdSet,
	"list":    cmdList,
}

var errUsage = errors.New("invalid arguments, run zenstyle without arguments for usage")

func failure(err error) api.Response[api.EmptyData] {
	return api.FromError[api.EmptyData](err)
}

func (a *app) service(u *updater.Updater) api.Service {
	return api.NewService(a.engine, u, a.log)
}

func (a *app) updater() *updater.Updater {
	return newUpdater(a.cfg, a.engine, a.log)
}

func cmdDecide(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	x, err := a.service(nil).Explain(ctx, args[0])
	if err != nil {
		return err
	}
	if a.json {
		a.printJSON(api.OK(x))
		return nil
	}

	state := color.RedString("inactive")
	if x.ShouldApply {
		state = color.GreenString("active")
	}
	fmt.Fprintf(a.out, "%s  %s  (%s)\n", color.CyanString(x.Hostname), state, x.Reason)
	fmt.Fprintf(a.out, "  specific style:      %v\n", x.HasSpecificStyle)
	fmt.Fprintf(a.out, "  fallback background: %v\n", x.FallbackBackground)
	fmt.Fprintf(a.out, "  styling: %s mode, enabled=%v\n", x.Settings.StyleMode, x.Settings.StylingEnabled)
	fmt.Fprintf(a.out, "  forcing: %s mode, enabled=%v\n", x.Settings.ForceMode, x.Settings.ForcingEnabled)
	return nil
}

func cmdCSS(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	res, err := a.service(nil).Styles(ctx, args[0])
	if err != nil {
		return err
	}
	if a.json {
		a.printJSON(api.OK(res))
		return nil
	}
	if res.CSS == "" {
		color.Yellow("[!] no CSS for %s (%s)", res.Hostname, res.Decision.Reason)
		return nil
	}
	fmt.Fprintln(a.out, res.CSS)
	return nil
}

func cmdFetch(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	res, err := a.service(a.updater()).RefreshCatalog(ctx)
	if err != nil {
		return err
	}
	if a.json {
		a.printJSON(api.OK(res))
		return nil
	}
	color.Green("[+] Fetched %d sites (%d bytes) from %s", res.Sites, res.Bytes, res.URL)
	return nil
}

func cmdCatalog(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	sites := a.engine.Catalog().Sites()
	if a.json {
		a.printJSON(api.OK(sites))
		return nil
	}
	last, err := a.updater().LastUpdate(ctx)
	if err != nil {
		return err
	}
	color.Blue("[+] %d sites, last fetched: %s", len(sites), updater.FormatSince(last, time.Now()))
	fmt.Fprint(a.out, catalogTree(sites))
	return nil
}

// catalogTree 以站点模式为分支、特性名为叶子渲染目录
func catalogTree(sites []catalog.Site) string {
	tree := treeprint.New()
	for _, s := range sites {
		branch := tree.AddBranch(s.Pattern)
		for _, name := range s.Features.Names() {
			branch.AddNode(name)
		}
	}
	return tree.String()
}

// lintIssue 无法解析的特性 CSS
type lintIssue struct {
	Pattern string `json:"pattern"`
	Feature string `json:"feature"`
	Error   string `json:"error"`
}

// lintCatalog 用 CSS 解析器逐个检查特性，progress 为空时不显示进度
func lintCatalog(sites []catalog.Site, progress io.Writer) []lintIssue {
	total := 0
	for _, s := range sites {
		total += len(s.Features)
	}

	var bar *progressbar.ProgressBar
	if progress != nil && total > 0 {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("lint"),
			progressbar.OptionShowCount(),
		)
	}

	var issues []lintIssue
	for _, s := range sites {
		for _, f := range s.Features {
			if _, err := parser.Parse(f.CSS); err != nil {
				issues = append(issues, lintIssue{Pattern: s.Pattern, Feature: f.Name, Error: err.Error()})
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return issues
}

func cmdLint(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	sites := a.engine.Catalog().Sites()
	var progress io.Writer
	if !a.json {
		progress = color.Error
	}
	issues := lintCatalog(sites, progress)
	if a.json {
		a.printJSON(api.OK(issues))
		return nil
	}
	fmt.Fprintln(color.Error)
	if len(issues) == 0 {
		color.Green("[+] All features in %d sites parsed cleanly", len(sites))
		return nil
	}
	for _, is := range issues {
		color.Red("[-] %s / %s: %s", is.Pattern, is.Feature, is.Error)
	}
	return fmt.Errorf("%d features failed to parse", len(issues))
}

func cmdSet(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	v, err := strconv.ParseBool(args[1])
	if err != nil {
		return errUsage
	}
	if err := a.service(nil).SetSetting(ctx, args[0], v); err != nil {
		if errx.Is(err, errx.CodeUnknownSetting) && !a.json {
			fmt.Fprintf(a.out, "known settings: %s\n", strings.Join(settings.SettingKeys(), ", "))
		}
		return err
	}
	if a.json {
		a.printJSON(api.OK(api.EmptyData{}))
		return nil
	}
	color.Green("[+] %s = %v", args[0], v)
	return nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	svc := a.service(nil)
	switch len(args) {
	case 1:
		hosts, err := svc.List(ctx, domain.ListKey(args[0]))
		if err != nil {
			return err
		}
		if a.json {
			a.printJSON(api.OK(hosts))
			return nil
		}
		if len(hosts) == 0 {
			color.Yellow("[!] %s is empty", args[0])
			return nil
		}
		fmt.Fprintln(a.out, strings.Join(hosts, "\n"))
		return nil
	case 3:
		member, err := strconv.ParseBool(args[2])
		if err != nil {
			return errUsage
		}
		if err := svc.SetMembership(ctx, domain.ListKey(args[0]), args[1], member); err != nil {
			return err
		}
		if a.json {
			a.printJSON(api.OK(api.EmptyData{}))
			return nil
		}
		verb := "removed from"
		if member {
			verb = "added to"
		}
		color.Green("[+] %s %s %s", args[1], verb, args[0])
		return nil
	}
	return errUsage
}
