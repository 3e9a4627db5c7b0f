package rag

import (
	"fmt"
	"strings"

	"github.com/PauloHFS/guidebot/internal/vector"
)

const (
	DefaultSystemPrompt = `당신은 어나더클래스 학원 관리 시스템의 고객 지원 AI입니다.

다음 원칙을 반드시 지키세요.
1. 제공된 [참고 문서]의 내용만을 근거로 답변하세요. 문서에 없는 내용을 추측하거나 지어내지 마세요.
2. 참고 문서로 답할 수 없는 질문에는 "제공된 문서에서 해당 정보를 찾을 수 없습니다"라고 답변하세요.
3. 문서끼리 내용이 다르면 최종 수정일이 가장 최근인 문서를 우선하세요.
4. 학원 운영자와 선생님이 이해하기 쉽도록 친절한 존댓말로 답변하세요.
5. 설정 방법을 묻는 질문에는 메뉴 경로와 순서를 단계별로 안내하세요.`

	DefaultNoContext = "(검색된 참고 문서가 없습니다)"
	DefaultFallback  = "답변을 생성할 수 없습니다."

	contextSeparator = "\n\n---\n\n"
)

// BuildContext renders the retrieved documents in index order, most similar
// first.
func BuildContext(results []vector.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s]\n", r.Title)
		if !r.UpdatedAt.IsZero() {
			fmt.Fprintf(&b, "최종 수정: %s\n", r.UpdatedAt.Format("2006-01-02"))
		}
		b.WriteString(r.Content)
		parts = append(parts, b.String())
	}
	return strings.Join(parts, contextSeparator)
}

func buildUserMessage(context, question string) string {
	return fmt.Sprintf("다음 문서들을 참고하여 질문에 답변해주세요.\n\n[참고 문서]\n%s\n\n[질문]\n%s", context, question)
}
