package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/pkg/logger"
)

// NoContextText 没有检索结果时的上下文
const NoContextText = "没有找到相关资料。"

const (
	contextSeparator = "\n\n"
	unknownFileName  = "未知文档"
)

// CitedSegment 上下文中实际引用的段落
type CitedSegment struct {
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	FileName   string  `json:"file_name"`
	FileID     string  `json:"file_id"`
	SegmentID  string  `json:"segment_id"`
	Similarity float64 `json:"similarity"`
}

// FormatContextForRAG 将结果渲染为编号列表，总长度（含分隔符）不超过 maxLength；
// 第一个放不下的段落及其后所有段落都被省略。
func (r *Retriever) FormatContextForRAG(ctx context.Context, results []entity.RetrievalResult, maxLength int) (string, []CitedSegment) {
	if maxLength <= 0 {
		maxLength = r.cfg.MaxContextLength
	}
	return FormatContext(ctx, results, maxLength)
}

// FormatContext 见 Retriever.FormatContextForRAG
func FormatContext(ctx context.Context, results []entity.RetrievalResult, maxLength int) (string, []CitedSegment) {
	if len(results) == 0 {
		return NoContextText, []CitedSegment{}
	}

	var sb strings.Builder
	cited := make([]CitedSegment, 0, len(results))
	length := 0
	sepLen := utf8.RuneCountInString(contextSeparator)

	for i, res := range results {
		text := res.Metadata.DisplayText()
		entry := fmt.Sprintf("%d. %s", i+1, text)

		add := utf8.RuneCountInString(entry)
		if i > 0 {
			add += sepLen
		}
		if length+add > maxLength {
			logger.Info(ctx, "context length limit reached", "max_length", maxLength, "included", len(cited))
			break
		}

		if i > 0 {
			sb.WriteString(contextSeparator)
		}
		sb.WriteString(entry)
		length += add

		fileName := res.Metadata.FileName
		if fileName == "" {
			fileName = unknownFileName
		}
		segmentID := res.Metadata.SegmentID
		if segmentID == "" {
			segmentID = fmt.Sprintf("段落%d", i+1)
		}
		fileID := res.FileID
		if fileID == "" {
			fileID = res.Metadata.FileID
		}
		cited = append(cited, CitedSegment{
			Index:      i + 1,
			Text:       text,
			FileName:   fileName,
			FileID:     fileID,
			SegmentID:  segmentID,
			Similarity: res.Similarity,
		})
	}

	return sb.String(), cited
}
