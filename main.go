package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/objcache/internal/config"
	"github.com/any-hub/objcache/internal/logging"
	"github.com/any-hub/objcache/internal/server"
	"github.com/any-hub/objcache/internal/server/routes"
	"github.com/any-hub/objcache/internal/version"
	"github.com/any-hub/objcache/pkg/prefs"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["collections"] = config.CollectionNames(cfg.Collections)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → prefs → CollectionRegistry（打开所有缓存文件）→ Fiber server。
	store, err := prefs.OpenFile(cfg.Global.PrefsPath)
	if err != nil {
		fmt.Fprintf(stdErr, "打开 prefs 文件失败: %v\n", err)
		return 1
	}

	registry, err := server.NewCollectionRegistry(cfg, logger, store)
	if err != nil {
		fmt.Fprintf(stdErr, "打开集合缓存失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["collections"] = config.CollectionNames(cfg.Collections)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["prefs"] = store.Path()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := serve(ctx, cfg, registry, logger)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Global.ShutdownTimeout.DurationValue())
	defer cancel()
	closeErr := registry.Close(closeCtx)
	if closeErr != nil {
		logger.WithError(closeErr).WithField("action", "shutdown").Error("集合落盘未完成")
	}

	if serveErr != nil {
		fmt.Fprintf(stdErr, "HTTP 服务运行失败: %v\n", serveErr)
		return 1
	}
	if closeErr != nil {
		return 1
	}
	logger.WithField("action", "shutdown").Info("服务已退出")
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := pflag.NewFlagSet("objcache", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVarP(&configFlag, "config", "c", "", "配置文件路径（默认 ./config.toml，可被 OBJCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVarP(&showVer, "version", "v", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("不支持的位置参数: %v", fs.Args())
	}

	path := os.Getenv("OBJCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// serve 运行 Fiber 服务直到 ctx 结束或监听失败，并在退出前完成优雅关闭。
func serve(ctx context.Context, cfg *config.Config, registry *server.CollectionRegistry, logger *logrus.Logger) error {
	app, err := newHTTPApp(registry, logger)
	if err != nil {
		return err
	}

	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Global.ShutdownTimeout.DurationValue())
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newHTTPApp(registry *server.CollectionRegistry, logger *logrus.Logger) (*fiber.App, error) {
	app, err := server.NewApp(server.AppOptions{
		Logger:   logger,
		Registry: registry,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterCollectionRoutes(app, registry)
	return app, nil
}
