// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/nacos"
	"stockledger/internal/pkg/tracing"
)

// AppCtx 传递给服务的注册回调。
// Ctx 在进程收到退出信号时被取消，后台任务应监听它退出。
type AppCtx struct {
	Ctx  context.Context
	Mux  *http.ServeMux
	Conf *Config

	hooks *[]func(context.Context)
}

// OnShutdown 注册一个关停钩子，按注册顺序的逆序执行。
func (a AppCtx) OnShutdown(fn func(context.Context)) {
	*a.hooks = append(*a.hooks, fn)
}

// AppInfo 包含启动一个服务所需的全部信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)
}

// StartService 封装了服务的通用启动和优雅关停逻辑：
// 配置加载、日志、链路追踪、Nacos 注册、HTTP Server、信号处理。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	log := logger.Logger()

	conf := GetCurrentConfig()
	if conf == nil {
		loaded, err := LoadConfig("")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}
		conf = loaded
	}
	if info.Port == 0 {
		info.Port = conf.Service.Port
	}

	tp, err := tracing.InitTracerProvider(info.ServiceName, conf.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// Nacos 注册是可选的：本地或测试环境直接关掉
	var naming *nacos.Client
	var ip string
	if conf.Infra.Nacos.Enabled {
		naming, err = nacos.NewNacosClient(conf.Infra.Nacos.Addrs, conf.Infra.Nacos.Namespace, conf.Infra.Nacos.Group)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		ip, err = outboundIP()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := naming.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hooks := make([]func(context.Context), 0, 4)
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Ctx: runCtx, Mux: mux, Conf: conf, hooks: &hooks})
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		log.Info().Int("port", info.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	// 先取消 runCtx，让 sweeper / outbox relay 等后台循环退出
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if naming != nil {
		if err := naming.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Error().Err(err).Msg("failed to deregister from nacos")
		}
	}

	// 逆序执行业务注册的清理钩子（后进先出）
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](shutdownCtx)
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down tracer provider")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down http server")
	}
	log.Info().Msg("service stopped")
}

// outboundIP 获取本机对外 IP，用于注册中心上报。
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
