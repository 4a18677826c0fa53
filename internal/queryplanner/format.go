package queryplanner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ragdiary/diaryengine/internal/diarystore"
	"github.com/ragdiary/diaryengine/internal/metathink"
	"github.com/ragdiary/diaryengine/internal/semgroup"
	"github.com/ragdiary/diaryengine/internal/tagindex"
	"github.com/ragdiary/diaryengine/internal/timeparse"
)

// Fixed substitution strings for failures. These are stable on the wire;
// downstream consumers match on them.
const (
	substRagFailed      = "[RAG处理失败]"
	circularRefTemplate = `[检测到循环引用，已跳过"%s日记本"的解析]`
	failureTemplate     = "[处理失败: %s]"
	chainMissingTemplate = `[错误: 未找到"%s"思维链定义]`
	chainFailedTemplate  = "[VCP元思考链处理失败: %s]"
)

const dateLayout = "2006-01-02"

// formatStandard renders the standard RAG framing: a header naming the
// diary, one bullet per hit, and a closing marker.
func formatStandard(name string, results []diarystore.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[--- 从\"%s日记本\"中检索到的相关记忆片段 ---]\n", name)
	for _, r := range results {
		fmt.Fprintf(&b, "* %s\n", strings.TrimSpace(r.Text))
	}
	b.WriteString("\n[--- 记忆片段结束 ---]\n")
	return b.String()
}

// formatTimeAware renders the combined semantic + time-range framing: one
// header line per range, a single merged-range statistics line, semantic
// bullets, then time-range bullets sorted date-descending.
func formatTimeAware(name string, ranges []timeparse.Range, results []diarystore.SearchResult) string {
	var semantic, timed []diarystore.SearchResult
	for _, r := range results {
		if hasSource(r, "rag") {
			semantic = append(semantic, r)
		}
		if hasSource(r, "time") && !hasSource(r, "rag") {
			timed = append(timed, r)
		}
	}
	sort.SliceStable(timed, func(i, j int) bool {
		ti, tj := timed[i].Timestamp, timed[j].Timestamp
		if ti != nil && tj != nil {
			return ti.After(*tj)
		}
		return ti != nil
	})

	var b strings.Builder
	fmt.Fprintf(&b, "\n[--- \"%s日记本\" 多时间感知检索结果 ---]\n", name)
	spans := make([]string, 0, len(ranges))
	for _, r := range ranges {
		span := fmt.Sprintf("%s 至 %s", r.Start.Format(dateLayout), r.End.AddDate(0, 0, -1).Format(dateLayout))
		fmt.Fprintf(&b, "[时间范围: %s]\n", span)
		spans = append(spans, span)
	}
	fmt.Fprintf(&b, "[合并查询的时间范围: %s | 语义相关 %d 条, 时间范围 %d 条]\n",
		strings.Join(spans, "、"), len(semantic), len(timed))

	b.WriteString("【语义相关记忆】\n")
	for _, r := range semantic {
		fmt.Fprintf(&b, "* %s\n", strings.TrimSpace(r.Text))
	}
	b.WriteString("【时间范围记忆】\n")
	for _, r := range timed {
		if r.Timestamp != nil {
			fmt.Fprintf(&b, "* [%s] %s\n", r.Timestamp.Format(dateLayout), strings.TrimSpace(r.Text))
		} else {
			fmt.Fprintf(&b, "* %s\n", strings.TrimSpace(r.Text))
		}
	}
	b.WriteString("[--- 检索结束 ---]\n")
	return b.String()
}

// formatGroupEnhanced renders the semantic-group framing with the
// activated-groups block before the hits.
func formatGroupEnhanced(name string, activations []semgroup.Activation, results []diarystore.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[--- \"%s日记本\" 语义组增强检索结果 ---]\n", name)
	b.WriteString("[激活的语义组:]\n")
	for _, a := range activations {
		fmt.Fprintf(&b, "* %s (%.0f%%): %s\n", a.Group, a.Strength*100, strings.Join(a.MatchedWords, ", "))
	}
	for _, r := range results {
		fmt.Fprintf(&b, "* %s\n", strings.TrimSpace(r.Text))
	}
	b.WriteString("[--- 检索结束 ---]\n")
	return b.String()
}

// formatMetaReport renders a per-stage meta-thinking chain report.
func formatMetaReport(report *metathink.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[--- VCP元思考链: \"%s\" 共%d阶段 ---]\n", report.ChainName, len(report.Stages))
	for i, stage := range report.Stages {
		fmt.Fprintf(&b, "【阶段%d: %s】", i+1, stage.Cluster)
		if stage.Degraded {
			b.WriteString(" [降级模式]")
		}
		b.WriteString("\n")
		if stage.Err != nil {
			fmt.Fprintf(&b, "* 阶段错误: %s\n", stage.Err)
			continue
		}
		for _, r := range stage.Results {
			fmt.Fprintf(&b, "* %s\n", strings.TrimSpace(r.Text))
		}
	}
	b.WriteString("[--- 元思考链结束 ---]\n")
	return b.String()
}

// formatAIMemo renders the aggregated tag-memo block appended after the
// first AIMemo-bearing placeholder's expansion.
func formatAIMemo(similar []tagindex.SimilarTagResult, expanded []tagindex.ExpansionResult) string {
	var b strings.Builder
	b.WriteString("\n[--- AI记忆标签联想 ---]\n")
	for _, s := range similar {
		fmt.Fprintf(&b, "* %s (相关度 %.2f, 出现 %d 次)\n", s.Tag, s.Score, s.Frequency)
	}
	if len(expanded) > 0 {
		b.WriteString("[扩展标签:]\n")
		for _, e := range expanded {
			fmt.Fprintf(&b, "* %s (共现权重 %d)\n", e.Tag, e.Weight)
		}
	}
	b.WriteString("[--- 标签联想结束 ---]\n")
	return b.String()
}

// aiMemoCrossRef is the substitution suffix for AIMemo placeholders after
// the first: the aggregated result is emitted once, later placeholders
// point back to it.
const aiMemoCrossRef = "\n[AI记忆标签联想结果见前文]\n"

func hasSource(r diarystore.SearchResult, source string) bool {
	for _, s := range r.Source {
		if s == source {
			return true
		}
	}
	return false
}
