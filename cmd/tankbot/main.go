package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"tankarena/client"
)

const (
	frameRate   = 60
	thinkEvery  = 600 * time.Millisecond
	chaseRange  = 40.0
	aimTolerant = 0.1
)

type botConfig struct {
	url      string
	room     string
	bots     int
	duration time.Duration
	fireProb float64
}

// tankbot 无界面机器人：连接转发服务，追逐最近的玩家并开火
func main() {
	var cfg botConfig
	var level string
	pflag.StringVar(&cfg.url, "url", "ws://localhost:8080/ws", "relay websocket endpoint")
	pflag.StringVar(&cfg.room, "room", "", "room to join (server default when empty)")
	pflag.IntVar(&cfg.bots, "bots", 2, "number of bots")
	pflag.DurationVar(&cfg.duration, "duration", 0, "stop after this long (0 = until interrupted)")
	pflag.Float64Var(&cfg.fireProb, "fire-prob", 0.4, "chance to fire when a target is in range")
	pflag.StringVar(&level, "log-level", "info", "debug, info, warn or error")
	pflag.Parse()

	logger, err := newLogger(level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.bots; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runBot(ctx, cfg, log); err != nil && ctx.Err() == nil {
				log.Warnw("bot stopped", "err", err)
			}
		}()
	}
	wg.Wait()
	log.Info("all bots stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zc.Level = lvl
	return zc.Build()
}

func runBot(ctx context.Context, cfg botConfig, log *zap.SugaredLogger) error {
	id := "bot_" + uuid.NewString()[:8]
	spawn := mgl64.Vec3{(rand.Float64() - 0.5) * 80, 0, (rand.Float64() - 0.5) * 80}
	c, err := client.Dial(ctx, client.Options{
		URL:    cfg.url,
		Room:   cfg.room,
		ID:     id,
		Spawn:  spawn,
		Logger: log,
		Hooks: client.HookFuncs{
			OnCreate:  func(p client.PlayerState) { log.Debugw("remote joined", "bot", id, "player", p.ID) },
			OnDestroy: func(pid string) { log.Debugw("remote left", "bot", id, "player", pid) },
		},
	})
	if err != nil {
		return err
	}
	defer c.Close()
	log.Infow("bot connected", "bot", id)

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	b := &brain{fireProb: cfg.fireProb}
	frame := time.NewTicker(time.Second / frameRate)
	defer frame.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			return err
		case now := <-frame.C:
			dt := now.Sub(last).Seconds()
			last = now
			in, fire := b.think(c, now)
			for _, h := range c.Frame(in, dt, now) {
				if h.Damage > 0 {
					log.Infow("hit taken", "bot", id, "by", h.Owner, "hp", c.Predictor().HP())
				}
			}
			if fire {
				if _, err := c.Shoot(); err != nil {
					return err
				}
			}
		}
	}
}

// brain 每 600ms 决策一次：范围内有目标则转向并靠近，否则随机游走
type brain struct {
	fireProb float64
	next     time.Time
	input    client.Input
}

func (b *brain) think(c *client.Client, now time.Time) (client.Input, bool) {
	if now.Before(b.next) {
		return b.input, false
	}
	b.next = now.Add(thinkEvery)

	pos := c.Predictor().Position()
	target, dist, ok := nearest(pos, c.Mirror().Entities())
	if !ok || dist > chaseRange {
		b.input = client.Input{Throttle: rand.Float64()*2 - 1, Turn: rand.Float64()*2 - 1}
		return b.input, false
	}

	// 炮管朝 +Z，Throttle 为负即朝炮口方向前进
	want := math.Atan2(target.X()-pos.X(), target.Z()-pos.Z())
	diff := normalizeAngle(want - c.Predictor().Heading())
	b.input = client.Input{Throttle: -1}
	switch {
	case diff > aimTolerant:
		b.input.Turn = 1
	case diff < -aimTolerant:
		b.input.Turn = -1
	}
	return b.input, rand.Float64() < b.fireProb
}

func nearest(from mgl64.Vec3, players []client.PlayerState) (mgl64.Vec3, float64, bool) {
	best := math.Inf(1)
	var at mgl64.Vec3
	for _, p := range players {
		v := mgl64.Vec3{p.X, p.Y, p.Z}
		if d := v.Sub(from).Len(); d < best {
			best, at = d, v
		}
	}
	return at, best, !math.IsInf(best, 1)
}

func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
