// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"haggle/internal/pkg/logger"
	"haggle/internal/pkg/nacos"
	"haggle/internal/pkg/tracing"
)

// AppCtx 是传给各服务路由注册函数的上下文。
// Nacos 在未配置服务注册时为 nil。
type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
	Nacos  *nacos.Client

	workers *[]func(ctx context.Context) error
}

// AddWorker 注册一个随服务生命周期运行的常驻任务（如 Kafka 消费循环）。
func (a AppCtx) AddWorker(w func(ctx context.Context) error) {
	*a.workers = append(*a.workers, w)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)               // 每个服务注册自己独特的 HTTP 路由
	Workers          []func(ctx context.Context) error // 常驻后台任务（如 Kafka 消费）
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: failed to load config: %v", err)
	}

	logger.Init(info.ServiceName)

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}

	// 2. Nacos 服务注册（未配置时跳过，方便本地单机运行）
	var namingClient *nacos.Client
	var ip string
	if cfg.Infra.Nacos.ServerAddrs != "" {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			log.Fatalf("failed to initialize nacos client: %v", err)
		}
		ip, err = getOutboundIP()
		if err != nil {
			log.Fatalf("failed to get outbound IP address: %v", err)
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Fatalf("failed to register service with nacos: %v", err)
		}
	}

	// 3. 创建并启动 HTTP Server 与常驻任务
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	workers := info.Workers
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg, Nacos: namingClient, workers: &workers})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}

	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Logger.Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	for _, worker := range workers {
		w := worker
		g.Go(func() error { return w(gCtx) })
	}

	// 4. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info().Msgf("Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关停顺序与启动顺序相反 (后进先出)
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.Logger.Error().Err(err).Msg("Error deregistering from Nacos")
		}
	}

	stopWorkers()

	if err := tp.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("Error shutting down tracer provider")
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("Error shutting down http server")
	}

	if err := g.Wait(); err != nil {
		logger.Logger.Error().Err(err).Msg("background worker exited with error")
	}

	logger.Logger.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// getOutboundIP 获取本机对外通信的 IP，用于服务注册。
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
