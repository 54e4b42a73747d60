package segment

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

type keywordTags struct {
	keyword string
	tags    []string
}

// domainKeywords 化工领域关键词到标签的映射，顺序即推荐顺序
var domainKeywords = []keywordTags{
	// 实验与检测
	{"实验", []string{"实验方法", "操作"}},
	{"测试", []string{"实验方法", "检测"}},
	{"试验", []string{"实验方法", "操作"}},
	{"检测", []string{"检测", "分析"}},
	{"分析", []string{"分析", "检测"}},
	{"测量", []string{"检测", "测量"}},
	// 安全
	{"安全", []string{"安全", "注意事项"}},
	{"注意", []string{"注意事项", "安全"}},
	{"警告", []string{"安全", "警告"}},
	{"危险", []string{"安全", "危险"}},
	{"防护", []string{"安全", "防护"}},
	{"事故", []string{"安全", "事故预防"}},
	// 工艺
	{"工艺", []string{"工艺", "流程"}},
	{"流程", []string{"流程", "工艺"}},
	{"步骤", []string{"流程", "操作"}},
	{"操作", []string{"操作", "流程"}},
	{"控制", []string{"控制", "工艺"}},
	{"参数", []string{"参数", "控制"}},
	// 设备
	{"设备", []string{"设备", "装置"}},
	{"装置", []string{"装置", "设备"}},
	{"反应器", []string{"反应器", "设备"}},
	{"塔", []string{"分离设备", "设备"}},
	{"换热器", []string{"换热设备", "设备"}},
	// 物料
	{"原料", []string{"原料", "物料"}},
	{"产品", []string{"产品", "物料"}},
	{"催化剂", []string{"催化剂", "化学品"}},
	{"溶剂", []string{"溶剂", "化学品"}},
	{"化学品", []string{"化学品", "物料"}},
	// 理论
	{"理论", []string{"理论", "原理"}},
	{"原理", []string{"原理", "理论"}},
	{"机理", []string{"机理", "原理"}},
	{"动力学", []string{"动力学", "理论"}},
	{"热力学", []string{"热力学", "理论"}},
	// 质量
	{"质量", []string{"质量", "控制"}},
	{"标准", []string{"标准", "规范"}},
	{"规范", []string{"规范", "标准"}},
	{"检验", []string{"检验", "质量"}},
	{"合格", []string{"质量", "标准"}},
	// 环保
	{"环保", []string{"环保", "环境"}},
	{"环境", []string{"环境", "环保"}},
	{"污染", []string{"环保", "污染控制"}},
	{"废水", []string{"废水处理", "环保"}},
	{"废气", []string{"废气处理", "环保"}},
	{"废料", []string{"废料处理", "环保"}},
}

type featureTag struct {
	pattern *regexp.Regexp
	tag     string
}

var featureTags = []featureTag{
	{regexp.MustCompile(`\d+\s*[%℃°]`), "数据"},
	{regexp.MustCompile(`[A-Z][a-z]?\d*\s*(?:\+|→|=)`), "化学反应"},
	{regexp.MustCompile(`[1-9]\.|[①-⑳]|[a-z]\)|•`), "列表"},
	{regexp.MustCompile(`\d+\s*(?:分钟|分|秒|小时|天)|时间|(?i:duration)`), "时间"},
	{regexp.MustCompile(`\d+\s*(?:℃|°C|K\b|MPa|kPa|Pa)`), "工艺条件"},
	{regexp.MustCompile(`\d+\s*(?:%|mol/L|g/L)|浓度|含量`), "浓度"},
	{regexp.MustCompile(`反应器|蒸馏塔|换热器|泵|阀门|管道`), "设备"},
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)

// RecommendTags 基于领域关键词与文本特征推荐标签，按首次出现顺序去重后截断到 maxTags
func RecommendTags(text string, maxTags int) []string {
	if maxTags <= 0 {
		return []string{}
	}
	lower := strings.ToLower(text)

	seen := make(map[string]struct{})
	out := make([]string, 0, maxTags)
	add := func(tag string) bool {
		if _, ok := seen[tag]; ok {
			return len(out) < maxTags
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		return len(out) < maxTags
	}

	for _, kt := range domainKeywords {
		if !strings.Contains(lower, kt.keyword) {
			continue
		}
		for _, tag := range kt.tags {
			if !add(tag) {
				return out
			}
		}
	}
	for _, ft := range featureTags {
		if ft.pattern.MatchString(text) && !add(ft.tag) {
			return out
		}
	}
	return out
}

// ExtractKeywords 去标点后按空白切词，过滤过短与纯数字词，按词频降序取前 n 个，同频按首次出现顺序
func ExtractKeywords(text string, n int) []string {
	if n <= 0 {
		return []string{}
	}
	words := strings.Fields(nonWord.ReplaceAllString(text, " "))

	freq := make(map[string]int)
	firstSeen := make(map[string]int)
	var order []string
	for _, w := range words {
		if runeLen(w) < 2 || isDigits(w) {
			continue
		}
		if _, ok := freq[w]; !ok {
			firstSeen[w] = len(order)
			order = append(order, w)
		}
		freq[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		fi, fj := freq[order[i]], freq[order[j]]
		if fi != fj {
			return fi > fj
		}
		return firstSeen[order[i]] < firstSeen[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// Similarity 两段文本小写词集合的 Jaccard 相似度
func Similarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
