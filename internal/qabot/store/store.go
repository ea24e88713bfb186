// Package store 提供知识库向量存储抽象。
package store

import (
	"context"
)

// Record 表示向量库中的一条记录，ID 为 chunk id，由 Indexer 负责写入。
type Record struct {
	// ID 文档块 ID（"<document id>#<序号>"）。
	ID string
	// DocumentID 所属文档 ID。
	DocumentID string
	// RowNumber 来源表格行号。
	RowNumber int64
	// Question 原始问题。
	Question string
	// Answer 原始答案。
	Answer string
	// Category 分类（可选）。
	Category string
	// Link 相关连结（可选）。
	Link string
	// Content 文档块文本。
	Content string
	// Embedding 嵌入向量。
	Embedding []float32
}

// Match 表示相似度检索结果，Score 为存储引擎原生分数。
type Match struct {
	// ID 文档块 ID。
	ID string
	// DocumentID 所属文档 ID。
	DocumentID string
	// RowNumber 来源表格行号。
	RowNumber int64
	// Question 原始问题。
	Question string
	// Answer 原始答案。
	Answer string
	// Category 分类。
	Category string
	// Link 相关连结。
	Link string
	// Content 文档块文本。
	Content string
	// Score 相似度分数（COSINE，范围 [-1, 1]）。
	Score float32
}

// VectorStore 定义向量存储接口。Indexer 负责写入，Retriever 只读。
type VectorStore interface {
	// EnsureCollection 确保集合存在（不存在时创建并建立索引）。
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert 按 ID 批量写入或覆盖记录。
	Upsert(ctx context.Context, records []*Record) error

	// Delete 按 ID 批量删除记录。
	Delete(ctx context.Context, ids []string) error

	// Search 向量相似度搜索，返回至多 topK 条结果。
	Search(ctx context.Context, embedding []float32, topK int) ([]*Match, error)

	// Stats 返回集合中的记录数。
	Stats(ctx context.Context) (int64, error)

	// Close 关闭连接。
	Close(ctx context.Context) error
}
