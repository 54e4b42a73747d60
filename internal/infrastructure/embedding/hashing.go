package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingModelName 特征哈希模型名
const HashingModelName = "feature-hashing-v1"

// HashingProvider 基于特征哈希的本地向量化：英文/数字按词，汉字按单字与相邻二元组。
// 无外部依赖、结果确定，适合作为兜底模型和测试桩。
type HashingProvider struct {
	dimensions int
}

// NewHashingProvider 创建特征哈希 Provider
func NewHashingProvider(dimensions int) *HashingProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingProvider{dimensions: dimensions}
}

// Embed 实现 Provider
func (p *HashingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(t)
	}
	return out, nil
}

// ModelName 实现 Provider
func (p *HashingProvider) ModelName() string { return HashingModelName }

// Dimensions 实现 Provider
func (p *HashingProvider) Dimensions() int { return p.dimensions }

func (p *HashingProvider) vector(text string) []float32 {
	counts := make(map[string]int)
	for _, tok := range tokenize(text) {
		counts[tok]++
	}

	v := make([]float32, p.dimensions)
	for tok, tf := range counts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimensions))
		w := float32(1 + math.Log(float64(tf)))
		// 高位决定符号，降低哈希冲突带来的偏置
		if sum>>63 == 1 {
			w = -w
		}
		v[idx] += w
	}
	return v
}

// tokenize 英文数字按词切分，汉字输出单字与二元组
func tokenize(text string) []string {
	var (
		out  []string
		word strings.Builder
		prev rune
	)
	flushWord := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			out = append(out, string(r))
			if prev != 0 {
				out = append(out, string([]rune{prev, r}))
			}
			prev = r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			prev = 0
			word.WriteRune(r)
		default:
			prev = 0
			flushWord()
		}
	}
	flushWord()
	return out
}
