package monitoring

import (
	"sync/atomic"
	"time"
)

// Metrics 指标收集器
type Metrics struct {
	// 消息
	MessagesPosted uint64
	ReadReceipts   uint64

	// 自动应答
	AutoReplies     uint64
	FallbackReplies uint64

	// 检索
	RetrievalsTotal   uint64
	RetrievalTimeouts uint64
	SyncsTotal        uint64

	// 投递
	EventsFannedOut  uint64
	ConnectedClients int64

	// 请求
	RequestsTotal  uint64
	RequestsFailed uint64

	// 启动时间
	StartTime time.Time
}

// Monitor 运行指标监控器
type Monitor struct {
	metrics *Metrics
}

// NewMonitor 创建监控器
func NewMonitor() *Monitor {
	return &Monitor{
		metrics: &Metrics{StartTime: time.Now()},
	}
}

// IncMessagesPosted 消息写入 +1
func (m *Monitor) IncMessagesPosted() {
	atomic.AddUint64(&m.metrics.MessagesPosted, 1)
}

// IncReadReceipts 已读回执 +1
func (m *Monitor) IncReadReceipts() {
	atomic.AddUint64(&m.metrics.ReadReceipts, 1)
}

// IncAutoReplies 自动应答 +1
func (m *Monitor) IncAutoReplies() {
	atomic.AddUint64(&m.metrics.AutoReplies, 1)
}

// IncFallbackReplies 兜底模板应答 +1
func (m *Monitor) IncFallbackReplies() {
	atomic.AddUint64(&m.metrics.FallbackReplies, 1)
}

// IncRetrievals 知识检索 +1
func (m *Monitor) IncRetrievals() {
	atomic.AddUint64(&m.metrics.RetrievalsTotal, 1)
}

// IncRetrievalTimeouts 检索超时 +1
func (m *Monitor) IncRetrievalTimeouts() {
	atomic.AddUint64(&m.metrics.RetrievalTimeouts, 1)
}

// IncSyncs 知识同步 +1
func (m *Monitor) IncSyncs() {
	atomic.AddUint64(&m.metrics.SyncsTotal, 1)
}

// IncEventsFannedOut 推送事件 +n
func (m *Monitor) IncEventsFannedOut(n int) {
	if n > 0 {
		atomic.AddUint64(&m.metrics.EventsFannedOut, uint64(n))
	}
}

// ClientConnected 在线连接 +1
func (m *Monitor) ClientConnected() {
	atomic.AddInt64(&m.metrics.ConnectedClients, 1)
}

// ClientDisconnected 在线连接 -1
func (m *Monitor) ClientDisconnected() {
	atomic.AddInt64(&m.metrics.ConnectedClients, -1)
}

// IncRequests 请求计数 +1, failed 标记失败
func (m *Monitor) IncRequests(failed bool) {
	atomic.AddUint64(&m.metrics.RequestsTotal, 1)
	if failed {
		atomic.AddUint64(&m.metrics.RequestsFailed, 1)
	}
}
