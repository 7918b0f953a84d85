package server

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount       int64 // 广播次数
	UpdatesAccepted int64 // 命中已登记玩家的 update
	UpdatesIgnored  int64 // 身份未登记的 update
	BulletsRelayed  int64 // 转发的子弹数
	StaleReaped     int64 // 因超时被清理的玩家数
	SendsDropped    int64 // 因发送队列满被丢弃的消息数
	InboxDropped    int64 // 因收件箱满被丢弃的入站消息数
	TotalTickNs     int64 // Tick 累计耗时（纳秒）
	Players         int64 // 当前在线
}

func (m *RoomMetrics) IncUpdatesAccepted() { atomic.AddInt64(&m.UpdatesAccepted, 1) }
func (m *RoomMetrics) IncUpdatesIgnored() { atomic.AddInt64(&m.UpdatesIgnored, 1) }
func (m *RoomMetrics) IncBulletsRelayed() { atomic.AddInt64(&m.BulletsRelayed, 1) }
func (m *RoomMetrics) IncStaleReaped() { atomic.AddInt64(&m.StaleReaped, 1) }
func (m *RoomMetrics) IncSendsDropped() { atomic.AddInt64(&m.SendsDropped, 1) }
func (m *RoomMetrics) IncInboxDropped() { atomic.AddInt64(&m.InboxDropped, 1) }
func (m *RoomMetrics) SetPlayers(n int) { atomic.StoreInt64(&m.Players, int64(n)) }
func (m *RoomMetrics) PlayerCount() int64 { return atomic.LoadInt64(&m.Players) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":       tick,
		"updates_accepted": atomic.LoadInt64(&m.UpdatesAccepted),
		"updates_ignored":  atomic.LoadInt64(&m.UpdatesIgnored),
		"bullets_relayed":  atomic.LoadInt64(&m.BulletsRelayed),
		"stale_reaped":     atomic.LoadInt64(&m.StaleReaped),
		"sends_dropped":    atomic.LoadInt64(&m.SendsDropped),
		"inbox_dropped":    atomic.LoadInt64(&m.InboxDropped),
		"players":          atomic.LoadInt64(&m.Players),
		"avg_tick_ms":      avgMs,
	}
}

// roomCollector 将所有房间的原子计数导出为 Prometheus 指标（room 标签）
type roomCollector struct {
	rooms *RoomManager

	ticks, updates, ignored, bullets, reaped, dropped, inboxDropped, tickSeconds, players *prometheus.Desc
}

func newRoomCollector(rooms *RoomManager) *roomCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("tankarena_room_"+name, help, []string{"room"}, nil)
	}
	return &roomCollector{
		rooms:        rooms,
		ticks:        desc("ticks_total", "Snapshot broadcasts performed."),
		updates:      desc("updates_accepted_total", "Updates applied to a registered player."),
		ignored:      desc("updates_ignored_total", "Updates naming an unregistered identity."),
		bullets:      desc("bullets_relayed_total", "Shoot events stamped and relayed."),
		reaped:       desc("stale_reaped_total", "Players removed by the staleness sweep."),
		dropped:      desc("sends_dropped_total", "Outbound messages dropped on a full send queue."),
		inboxDropped: desc("inbox_dropped_total", "Inbound messages dropped on a full room inbox."),
		tickSeconds:  desc("tick_seconds_total", "Cumulative time spent in broadcast ticks."),
		players:      desc("players", "Connected players."),
	}
}

func (c *roomCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.ticks, c.updates, c.ignored, c.bullets, c.reaped, c.dropped, c.inboxDropped, c.tickSeconds, c.players} {
		ch <- d
	}
}

func (c *roomCollector) Collect(ch chan<- prometheus.Metric) {
	for _, r := range c.rooms.snapshotRooms() {
		m := r.metrics
		counter := func(d *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), r.ID)
		}
		counter(c.ticks, atomic.LoadInt64(&m.TickCount))
		counter(c.updates, atomic.LoadInt64(&m.UpdatesAccepted))
		counter(c.ignored, atomic.LoadInt64(&m.UpdatesIgnored))
		counter(c.bullets, atomic.LoadInt64(&m.BulletsRelayed))
		counter(c.reaped, atomic.LoadInt64(&m.StaleReaped))
		counter(c.dropped, atomic.LoadInt64(&m.SendsDropped))
		counter(c.inboxDropped, atomic.LoadInt64(&m.InboxDropped))
		ch <- prometheus.MustNewConstMetric(c.tickSeconds, prometheus.CounterValue,
			float64(atomic.LoadInt64(&m.TotalTickNs))/1e9, r.ID)
		ch <- prometheus.MustNewConstMetric(c.players, prometheus.GaugeValue,
			float64(m.PlayerCount()), r.ID)
	}
}
