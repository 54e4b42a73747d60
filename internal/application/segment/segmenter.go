package segment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/pkg/logger"
	"chem-rag-api/pkg/metrics"
)

// ErrEmptyFileID 文件 ID 为空
var ErrEmptyFileID = errors.New("segment: file_id is required")

var (
	horizontalSpace = regexp.MustCompile(`[\t\f\v \x{00A0}\x{3000}]+`)
	lineEdgeSpace   = regexp.MustCompile(` *\n *`)
	excessNewlines  = regexp.MustCompile(`\n{3,}`)
)

// sentenceDelims 长段落按句切分时使用的中文句末标点
const sentenceDelims = "。！？；"

// Segmenter 文档分段器，无状态，可并发使用
type Segmenter struct {
	cfg        Config
	strategies []SplitStrategy
	newSuffix  func() string
}

// Option 分段器选项
type Option func(*Segmenter)

// WithIDSuffix 替换分段 ID 的随机后缀生成函数
func WithIDSuffix(fn func() string) Option {
	return func(s *Segmenter) {
		if fn != nil {
			s.newSuffix = fn
		}
	}
}

// WithStrategies 替换段落切分策略链，按顺序尝试
func WithStrategies(strategies ...SplitStrategy) Option {
	return func(s *Segmenter) {
		if len(strategies) > 0 {
			s.strategies = strategies
		}
	}
}

// NewSegmenter 创建分段器
func NewSegmenter(cfg Config, opts ...Option) *Segmenter {
	s := &Segmenter{
		cfg: cfg,
		strategies: []SplitStrategy{
			paragraphStrategy{minLen: cfg.MinSegmentLength},
			enumeratedStrategy{minLen: cfg.MinSegmentLength},
			windowStrategy{minLen: cfg.MinSegmentLength, maxLen: cfg.MaxSegmentLength},
		},
		newSuffix: func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config 返回当前分段参数
func (s *Segmenter) Config() Config {
	return s.cfg
}

// Segment 对一个文档的文本分段；空文本或过短文本返回空列表
func (s *Segmenter) Segment(ctx context.Context, fileID, text string) ([]*entity.Segment, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, ErrEmptyFileID
	}

	texts, strategy := s.Split(ctx, text)
	now := time.Now()
	out := make([]*entity.Segment, 0, len(texts))
	for i, t := range texts {
		order := i + 1
		out = append(out, &entity.Segment{
			ID:             fmt.Sprintf("%s_%d_%s", fileID, order, s.newSuffix()),
			FileID:         fileID,
			Order:          order,
			Text:           t,
			Tags:           pq.StringArray{},
			CharacterCount: runeLen(t),
			WordCount:      len(strings.Fields(t)),
			CreatedAt:      now,
		})
	}

	if len(out) > 0 {
		metrics.SegmentsCreatedTotal.WithLabelValues(strategy).Add(float64(len(out)))
	}
	logger.Info(ctx, "document segmented",
		"file_id", fileID,
		"strategy", strategy,
		"segments", len(out),
	)
	return out, nil
}

// Split 返回最终分段文本（含重叠段）以及生效的段落切分策略名
func (s *Segmenter) Split(ctx context.Context, text string) ([]string, string) {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil, ""
	}

	paragraphs, strategy := s.paragraphs(ctx, cleaned)

	base := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		base = append(base, s.fit(p)...)
	}

	return s.withOverlap(base), strategy
}

// Clean 统一换行、压缩行内空白，保留段落结构
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = lineEdgeSpace.ReplaceAllString(text, "\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// paragraphs 依次尝试策略，第一个产生超过 2 段的策略胜出；最后一个策略兜底
func (s *Segmenter) paragraphs(ctx context.Context, text string) ([]string, string) {
	var best []string
	bestName := ""
	for i, st := range s.strategies {
		parts := st.Split(text)
		last := i == len(s.strategies)-1
		if len(parts) > 2 || (last && len(parts) > 0) {
			logger.Debug(ctx, "paragraph split strategy selected", "strategy", st.Name(), "paragraphs", len(parts))
			return parts, st.Name()
		}
		if len(parts) > len(best) {
			best, bestName = parts, st.Name()
		}
	}
	logger.Debug(ctx, "paragraph split strategy selected", "strategy", bestName, "paragraphs", len(best))
	return best, bestName
}

// fit 保证单段长度落在 [min, max]
func (s *Segmenter) fit(paragraph string) []string {
	if runeLen(paragraph) <= s.cfg.MaxSegmentLength {
		return []string{paragraph}
	}

	var out []string
	for _, sub := range s.splitLong(paragraph) {
		if runeLen(sub) > s.cfg.MaxSegmentLength {
			// 没有句末标点的超长句
			out = append(out, windowSplit(sub, s.cfg.MaxSegmentLength, s.cfg.MinSegmentLength)...)
			continue
		}
		out = append(out, sub)
	}
	return out
}

// splitLong 按句累积，超过目标长度且当前段已满足最小长度时断开
func (s *Segmenter) splitLong(paragraph string) []string {
	var (
		out    []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if t := strings.TrimSpace(cur.String()); t != "" && runeLen(t) >= s.cfg.MinSegmentLength {
			out = append(out, t)
		}
		cur.Reset()
		curLen = 0
	}

	for _, sentence := range splitSentences(paragraph) {
		n := runeLen(sentence)
		if curLen > 0 && curLen+n > s.cfg.TargetSegmentLength && curLen >= s.cfg.MinSegmentLength {
			flush()
		}
		cur.WriteString(sentence)
		curLen += n
	}
	flush()
	return out
}

// splitSentences 在句末标点后断句，标点及其后空白归属前一句
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(sentenceDelims, runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (runes[end] == ' ' || runes[end] == '\n') {
			end++
		}
		out = append(out, string(runes[start:end]))
		start = end
		i = end - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// withOverlap 在每个偶数下标分段之后插入与下一段的拼接重叠段
func (s *Segmenter) withOverlap(base []string) []string {
	if len(base) <= 1 || s.cfg.OverlapLength <= 0 {
		return base
	}

	out := make([]string, 0, len(base)+len(base)/2)
	for i, seg := range base {
		out = append(out, seg)
		if i%2 != 0 || i == len(base)-1 {
			continue
		}
		cur := []rune(seg)
		next := []rune(base[i+1])
		tail := cur[max(0, len(cur)-s.cfg.OverlapLength):]
		head := next[:min(len(next), s.cfg.OverlapLength)]
		overlap := strings.TrimSpace(string(tail) + " " + string(head))
		if runeLen(overlap) >= s.cfg.MinSegmentLength {
			out = append(out, overlap)
		}
	}
	return out
}
