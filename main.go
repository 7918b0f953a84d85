package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tankarena/config"
	"tankarena/server"
)

// tankarena 入口：启动 HTTP + WebSocket 转发服务
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := server.InitLogger(cfg.LogOptions()); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := server.NewServer(ctx, cfg.ServerOptions())
	srv := &http.Server{Addr: cfg.Addr, Handler: s.Routes()}

	go func() {
		server.Log.Infof("tankarena listening on %s (room=%s tick=%s stale=%s)",
			cfg.Addr, cfg.Room.Default, cfg.Room.TickInterval, cfg.Room.StaleAfter)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	<-ctx.Done()
	server.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		server.Log.Warnf("shutdown: %v", err)
	}
}
