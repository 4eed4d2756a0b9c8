package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"zenstyle/internal/logger"

	"github.com/mafredri/cdp/devtool"
)

// Options 浏览器启动选项
type Options struct {
	ExecPath    string // 为空时按平台查找 Chrome/Chromium
	UserDataDir string // 为空时使用临时目录
	Port        int    // 首选调试端口，被占用时随机选择
	Headless    bool
	Args        []string // 额外启动参数
}

// Browser 已启动的浏览器进程
type Browser struct {
	cmd         *exec.Cmd
	DevToolsURL string
}

// Start 启动浏览器并等待 DevTools 就绪
func Start(ctx context.Context, opts Options, l logger.Logger) (*Browser, error) {
	if l == nil {
		l = logger.NewNop()
	}
	exe := opts.ExecPath
	if exe == "" {
		exe = findChrome()
	}
	if exe == "" {
		return nil, errors.New("chrome executable not found")
	}

	port, err := pickPort(opts.Port)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, exe, launchArgs(port, opts)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	b := &Browser{cmd: cmd, DevToolsURL: fmt.Sprintf("http://127.0.0.1:%d", port)}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	product, err := waitReady(waitCtx, b.DevToolsURL)
	if err != nil {
		_ = b.Stop(2 * time.Second)
		return nil, err
	}
	l.Info("浏览器已启动", "exec", exe, "devtools", b.DevToolsURL, "browser", product)
	return b, nil
}

// Stop 结束浏览器进程
func (b *Browser) Stop(timeout time.Duration) error {
	if b == nil || b.cmd == nil || b.cmd.Process == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- b.cmd.Wait() }()
	_ = b.cmd.Process.Kill()
	select {
	case <-time.After(timeout):
		return errors.New("browser stop timeout")
	case <-done:
		// 被 Kill 后 Wait 必然返回退出错误
		return nil
	}
}

func findChrome() string {
	for _, p := range chromePaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func chromePaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			filepath.Join(os.Getenv("ProgramFiles"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Google", "Chrome", "Application", "chrome.exe"),
		}
	case "darwin":
		return []string{"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"}
	case "linux":
		return []string{"/usr/bin/google-chrome", "/usr/bin/chromium", "/snap/bin/chromium"}
	}
	return nil
}

// pickPort 首选端口可用时直接使用，否则由系统分配
func pickPort(preferred int) (int, error) {
	if preferred > 0 {
		if l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", preferred)); err == nil {
			_ = l.Close()
			return preferred, nil
		}
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("无可用端口: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// launchArgs 构建启动参数，不禁用扩展
func launchArgs(port int, opts Options) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--no-first-run",
		"--no-default-browser-check",
	}
	if runtime.GOOS == "linux" {
		args = append(args, "--disable-dev-shm-usage")
	}

	dir := opts.UserDataDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("zenstyle-chrome-%d", time.Now().Unix()))
	}
	_ = os.MkdirAll(dir, 0o755)
	args = append(args, "--user-data-dir="+dir)

	if opts.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	return append(args, opts.Args...)
}

// waitReady 轮询 /json/version 直到 DevTools 可用，返回浏览器版本
func waitReady(ctx context.Context, base string) (string, error) {
	dt := devtool.New(base)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		if v, err := dt.Version(ctx); err == nil {
			return v.Browser, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("DevTools 未就绪: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
