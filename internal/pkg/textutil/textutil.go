// Package textutil 提供知识库文本处理工具函数。
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeWhitespace 折叠连续空白为单个空格并去除首尾空白。
// 内容哈希前必须先规范化，避免表格中的格式抖动触发重新索引。
func NormalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}

	return b.String()
}

// SHA256Hex 计算字符串的 SHA-256 哈希值（十六进制）。
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// TruncateRunes 截断字符串到指定的最大 Unicode 字符数。
func TruncateRunes(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NormalizeCosineScore 将余弦相似度归一化到 [0, 1] 范围。
// 检索阈值和置信度计算都基于归一化后的分数。
func NormalizeCosineScore(score float64) float64 {
	n := (score + 1) / 2
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
