package entity

import (
	"time"

	"github.com/lib/pq"
)

// Segment 文档分段，检索与 Embedding 的基本单元
type Segment struct {
	ID             string         `json:"segment_id" gorm:"primaryKey;type:varchar(128)"`
	FileID         string         `json:"file_id" gorm:"type:varchar(64);index"`
	Order          int            `json:"order" gorm:"column:seg_order"`
	Text           string         `json:"text" gorm:"type:text"`
	Tags           pq.StringArray `json:"tags" gorm:"type:text[]"`
	CharacterCount int            `json:"character_count"`
	WordCount      int            `json:"word_count"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TableName gorm 表名
func (Segment) TableName() string { return "segments" }

// Preview 返回截断后的文本预览
func (s *Segment) Preview(n int) string {
	return TextPreview(s.Text, n)
}

// TextPreview 按字符截断，超出部分以省略号表示
func TextPreview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

// SegmentStats 分段统计
type SegmentStats struct {
	TotalSegments int64      `json:"total_segments"`
	FileStats     []FileStat `json:"file_stats"`
	TagStats      []TagStat  `json:"tag_stats"`
}

// FileStat 单个文件的分段统计
type FileStat struct {
	FileID       string  `json:"file_id"`
	SegmentCount int64   `json:"segment_count"`
	AvgLength    float64 `json:"avg_length"`
}

// TagStat 标签使用次数
type TagStat struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}
