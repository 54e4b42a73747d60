package segment

import (
	"regexp"
	"strings"
)

// SplitStrategy 将清洗后的全文切分为自然段落
type SplitStrategy interface {
	Name() string
	Split(text string) []string
}

// enumeratedMarker 换行后紧跟的编号标记：1. / 1、 / 一、 / （1） / 【1】 / ①
var enumeratedMarker = regexp.MustCompile(`\n(?:\d+\.|\d+、|[一二三四五六七八九十]+[、．]|[（【(]\d+[）】)]|[①-⑳])`)

// sentenceTerminals 窗口切分时可作为断点的字符
const sentenceTerminals = "。！？；.!?;\n"

type paragraphStrategy struct{ minLen int }

func (s paragraphStrategy) Name() string { return "paragraph" }

func (s paragraphStrategy) Split(text string) []string {
	return keepLongEnough(strings.Split(text, "\n\n"), s.minLen)
}

type enumeratedStrategy struct{ minLen int }

func (s enumeratedStrategy) Name() string { return "enumerated" }

// Split 在编号标记前断开，标记保留在后一段开头
func (s enumeratedStrategy) Split(text string) []string {
	locs := enumeratedMarker.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return keepLongEnough([]string{text}, s.minLen)
	}
	parts := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		parts = append(parts, text[prev:loc[0]])
		prev = loc[0] + 1 // 跳过换行符本身
	}
	parts = append(parts, text[prev:])
	return keepLongEnough(parts, s.minLen)
}

type windowStrategy struct{ minLen, maxLen int }

func (s windowStrategy) Name() string { return "window" }

func (s windowStrategy) Split(text string) []string {
	return windowSplit(text, s.maxLen, s.minLen)
}

// windowSplit 固定长度窗口切分；窗口末尾向前最多回溯半个窗口寻找句末标点，找不到则硬切
func windowSplit(text string, maxLen, minLen int) []string {
	runes := []rune(text)
	n := len(runes)
	if maxLen <= 0 {
		return keepLongEnough([]string{text}, minLen)
	}

	var out []string
	for start := 0; start < n; {
		end := start + maxLen
		if end < n {
			for i := end - 1; i > start+maxLen/2; i-- {
				if strings.ContainsRune(sentenceTerminals, runes[i]) {
					end = i + 1
					break
				}
			}
		} else {
			end = n
		}
		if seg := strings.TrimSpace(string(runes[start:end])); runeLen(seg) >= minLen {
			out = append(out, seg)
		}
		start = end
	}
	return out
}

func keepLongEnough(parts []string, minLen int) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && runeLen(p) >= minLen {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
