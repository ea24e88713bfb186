// Package metrics 提供 qabot 服务的业务指标收集。
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics qabot 业务指标，进程内原子计数器。
type Metrics struct {
	// 聊天指标
	chatsTotal      uint64 // 总聊天次数
	chatsCacheHits  uint64 // 缓存命中次数
	chatsFallbacks  uint64 // 兜底回答次数（未检索到相关知识或生成失败）
	chatsErrors     uint64 // 聊天错误次数
	chatDurationSum float64

	// 同步指标
	syncsTotal     uint64 // 成功执行的同步次数
	syncsSkipped   uint64 // 因无变化或互斥而跳过的同步次数
	syncsErrors    uint64 // 同步失败次数
	docsIndexed    uint64 // 已索引文档数（累计）
	chunksUpserted uint64 // 已写入分块数（累计）
	chunksDeleted  uint64 // 已删除分块数（累计）

	durationMu sync.Mutex
	startTime  time.Time
}

var (
	global *Metrics
	once   sync.Once
)

// Get 获取全局指标实例。
func Get() *Metrics {
	once.Do(func() {
		global = &Metrics{startTime: time.Now()}
	})
	return global
}

// RecordChat 记录一次聊天请求。err 表示请求过程中发生的后端错误；
// 发生错误后降级为兜底回答时，错误与兜底同时计数。
func (m *Metrics) RecordChat(duration time.Duration, cacheHit, fallback bool, err error) {
	atomic.AddUint64(&m.chatsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.chatsErrors, 1)
	}
	if cacheHit {
		atomic.AddUint64(&m.chatsCacheHits, 1)
	}
	if fallback {
		atomic.AddUint64(&m.chatsFallbacks, 1)
	}

	m.durationMu.Lock()
	m.chatDurationSum += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordSyncSkipped 记录一次被跳过的同步。
func (m *Metrics) RecordSyncSkipped() {
	atomic.AddUint64(&m.syncsSkipped, 1)
}

// RecordSyncError 记录一次同步失败。
func (m *Metrics) RecordSyncError() {
	atomic.AddUint64(&m.syncsErrors, 1)
}

// RecordSync 记录一次成功同步的索引量。
func (m *Metrics) RecordSync(documents, chunksUpserted, chunksDeleted int) {
	atomic.AddUint64(&m.syncsTotal, 1)
	atomic.AddUint64(&m.docsIndexed, uint64(documents))
	atomic.AddUint64(&m.chunksUpserted, uint64(chunksUpserted))
	atomic.AddUint64(&m.chunksDeleted, uint64(chunksDeleted))
}

// Stats 返回当前统计信息（用于 /api/stats）。
func (m *Metrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	chatDuration := m.chatDurationSum
	m.durationMu.Unlock()

	chatsTotal := atomic.LoadUint64(&m.chatsTotal)
	avgChatDuration := 0.0
	if chatsTotal > 0 {
		avgChatDuration = chatDuration / float64(chatsTotal)
	}

	return map[string]interface{}{
		"chats": map[string]interface{}{
			"total":             chatsTotal,
			"cache_hits":        atomic.LoadUint64(&m.chatsCacheHits),
			"fallbacks":         atomic.LoadUint64(&m.chatsFallbacks),
			"errors":            atomic.LoadUint64(&m.chatsErrors),
			"avg_duration_secs": avgChatDuration,
		},
		"sync": map[string]interface{}{
			"total":           atomic.LoadUint64(&m.syncsTotal),
			"skipped":         atomic.LoadUint64(&m.syncsSkipped),
			"errors":          atomic.LoadUint64(&m.syncsErrors),
			"documents":       atomic.LoadUint64(&m.docsIndexed),
			"chunks_upserted": atomic.LoadUint64(&m.chunksUpserted),
			"chunks_deleted":  atomic.LoadUint64(&m.chunksDeleted),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset 重置所有指标（仅用于测试）。
func (m *Metrics) Reset() {
	atomic.StoreUint64(&m.chatsTotal, 0)
	atomic.StoreUint64(&m.chatsCacheHits, 0)
	atomic.StoreUint64(&m.chatsFallbacks, 0)
	atomic.StoreUint64(&m.chatsErrors, 0)
	atomic.StoreUint64(&m.syncsTotal, 0)
	atomic.StoreUint64(&m.syncsSkipped, 0)
	atomic.StoreUint64(&m.syncsErrors, 0)
	atomic.StoreUint64(&m.docsIndexed, 0)
	atomic.StoreUint64(&m.chunksUpserted, 0)
	atomic.StoreUint64(&m.chunksDeleted, 0)

	m.durationMu.Lock()
	m.chatDurationSum = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
