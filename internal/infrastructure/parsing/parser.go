// Package parsing 从 PDF/DOCX/TXT 文件中提取纯文本
package parsing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/pkg/logger"
)

var (
	// ErrUnsupportedType 不支持的文件类型
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrNoText 文件中没有可提取的文本
	ErrNoText = errors.New("no extractable text")
	// ErrFileNotFound 文件不存在
	ErrFileNotFound = errors.New("file not found")
)

// Result 解析结果
type Result struct {
	Text           string `json:"text"`
	PageCount      int    `json:"page_count,omitempty"`
	ParagraphCount int    `json:"paragraph_count,omitempty"`
	Encoding       string `json:"encoding,omitempty"`
}

// Parser 文本提取器
type Parser struct{}

// NewParser 创建文本提取器
func NewParser() *Parser {
	return &Parser{}
}

// Parse 按类型提取文本
func (p *Parser) Parse(ctx context.Context, path string, fileType entity.FileType) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch fileType {
	case entity.FileTypePDF:
		res, err = parsePDF(ctx, path)
	case entity.FileTypeDOCX:
		res, err = parseDOCX(path)
	case entity.FileTypeTXT:
		res, err = parseTXT(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
	if err != nil {
		logger.Warn(ctx, "document parse failed", "path", path, "type", fileType, "error", err)
		return nil, err
	}

	logger.Info(ctx, "document parsed",
		"path", path,
		"type", fileType,
		"chars", utf8.RuneCountInString(res.Text),
		"pages", res.PageCount,
		"paragraphs", res.ParagraphCount,
	)
	return res, nil
}

// Summary 文本统计
type Summary struct {
	TotalChars    int `json:"total_chars"`
	TotalWords    int `json:"total_words"`
	TotalLines    int `json:"total_lines"`
	NonEmptyLines int `json:"non_empty_lines"`
}

// Summarize 统计字符、词、行数
func Summarize(text string) Summary {
	if text == "" {
		return Summary{}
	}
	lines := strings.Split(text, "\n")
	nonEmpty := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty++
		}
	}
	return Summary{
		TotalChars:    utf8.RuneCountInString(text),
		TotalWords:    len(strings.Fields(text)),
		TotalLines:    len(lines),
		NonEmptyLines: nonEmpty,
	}
}

// Preview 压缩空白后截取前 maxLength 个字符
func Preview(text string, maxLength int) string {
	clean := strings.Join(strings.Fields(text), " ")
	return entity.TextPreview(clean, maxLength)
}
