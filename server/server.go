package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options 服务端参数
type Options struct {
	Room        RoomConfig
	DefaultRoom string
	SendQueue   int    // 每个连接的发送队列长度
	StaticDir   string // 为空则不挂载静态资源
}

// Server 持有房间管理器与指标注册表，对外提供 HTTP 路由
type Server struct {
	rooms     *RoomManager
	registry  *prometheus.Registry
	sendQueue int
	staticDir string
}

// NewServer ctx 取消时所有房间退出
func NewServer(ctx context.Context, opts Options) *Server {
	if opts.DefaultRoom == "" {
		opts.DefaultRoom = "arena"
	}
	rooms := NewRoomManager(ctx, opts.Room, opts.DefaultRoom)
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		newRoomCollector(rooms),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Server{
		rooms:     rooms,
		registry:  reg,
		sendQueue: opts.SendQueue,
		staticDir: opts.StaticDir,
	}
}

// Rooms 房间管理器
func (s *Server) Rooms() *RoomManager { return s.rooms }

// Routes 组装 HTTP 路由
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)
	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
	mux.HandleFunc("/admin/rooms", s.HandleRooms)
	mux.HandleFunc("/admin/metrics", s.HandleRoomMetrics)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
