package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

var (
	// 性能测试
	benchmark = flag.Bool("benchmark", false, "benchmark mode")
	pprofAddr = flag.String("pprof", "localhost:52102", "pprof listening address")

	LOG_LEVELS = map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}
)

func main() {
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	cfg, err := LoadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logrus.Fatalf("invalid config: %s", err)
	}
	logrus.SetLevel(LOG_LEVELS[cfg.LogLevel])
	gin.SetMode(gin.ReleaseMode)

	cachePath, err := NewCachePath(cfg.Cache)
	if err != nil {
		logrus.Fatalf("invalid cache path: %s", err)
	}
	store, closeStore, err := cachePath.Open(context.Background(), cfg.MongoURI)
	if err != nil {
		logrus.Fatalf("failed to open cache %s: %s", cachePath, err)
	}
	log.Infof("graph cache: %s", cachePath)
	// 启动导航服务
	server, err := NewRoutingServer(context.Background(), cfg, store)
	if err != nil {
		closeStore()
		logrus.Fatalf("failed to start routing server: %s", err)
	}

	if *pprofAddr != "" {
		// 启动pprof
		startHTTPDebugger(*pprofAddr)
	}

	if *benchmark {
		// 性能测试
		runBenchmark(server.Router())
		closeStore()
		return
	}

	// 使用HTTP/2 w.o. TLS
	s := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h2c.NewHandler(otelhttp.NewHandler(server.Handler(), "telbot-routing"), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 优雅退出
	// 创建监听退出chan
	signalCh := make(chan os.Signal, 1)
	//监听指定信号 ctrl+c kill
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Info("stopping...")
		go func() {
			<-signalCh
			os.Exit(1) // 强制结束
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			log.Warnf("shutdown: %v", err)
		}
	}()

	log.Infof("server listening at %v", s.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		closeStore()
		log.Fatalf("failed to serve: %v", err)
	}
	// 关闭缓存连接
	closeStore()
	log.Info("routing closes")
}
