// Package format 把模型输出规整为带标签的结构化分段，供前端展示。
// 契约：模型输出内嵌 **Header** 标记（与 internal/prompt 的格式契约配套）。
// 不匹配分段语法的内容原样保留为一个无类型块，绝不丢弃。
package format

import (
	"regexp"
	"strings"
)

// Kind 标识分段的展示类型。
type Kind string

const (
	KindProblem  Kind = "problem"
	KindAnalysis Kind = "analysis"
	KindSolution Kind = "solution"
	KindSafety   Kind = "safety"
	KindGeneral  Kind = "general"
)

// Section 是模型响应中的一个展示分段。
// Label 为空表示该分段没有标题（未结构化内容的兜底块）。
type Section struct {
	Kind    Kind   `json:"kind"`
	Label   string `json:"label"`
	Content string `json:"content"`
}

// headerPattern 匹配 **Header** 形式的分段标记。
var headerPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// ParseSections 按 **Header** 标记切分内容。
// 已知标题映射到对应类型，未识别的标题归为 general；
// 完全没有标记的内容返回单个无标题 general 分段。
func ParseSections(content string) []Section {
	matches := headerPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return []Section{{Kind: KindGeneral, Content: content}}
	}

	var sections []Section

	// 第一个标记之前的内容保留为无标题分段
	if lead := strings.TrimSpace(content[:matches[0][0]]); lead != "" {
		sections = append(sections, Section{Kind: KindGeneral, Content: lead})
	}

	for i, m := range matches {
		label := strings.TrimSpace(content[m[2]:m[3]])
		bodyStart := m[1]
		bodyEnd := len(content)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		body := strings.TrimSpace(content[bodyStart:bodyEnd])
		sections = append(sections, Section{
			Kind:    classify(label),
			Label:   label,
			Content: body,
		})
	}

	return sections
}

// classify 把分段标题映射到展示类型，未识别的标题使用通用类型。
func classify(label string) Kind {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "problem"):
		return KindProblem
	case strings.Contains(l, "solution"), strings.Contains(l, "recommendation"):
		return KindSolution
	case strings.Contains(l, "analysis"):
		return KindAnalysis
	case strings.Contains(l, "safety"), strings.Contains(l, "best practices"):
		return KindSafety
	default:
		return KindGeneral
	}
}
