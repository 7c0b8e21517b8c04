package council

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/council/internal/ranking"
	"github.com/Iron-Ham/council/internal/record"
)

// Stage1PromptTemplate asks a member for an independent answer.
const Stage1PromptTemplate = `You are a council member answering the following request independently.
%s
## Request
%s

Provide your individual response. Be thorough and accurate, and consider more than one perspective.`

// CodeStage1PromptTemplate asks a member to change the code in its workspace.
const CodeStage1PromptTemplate = `You are a council member working on the following code task.
%s
## Task
%s

## Working Directory
%s

Make the necessary code changes directly in the working directory. Only edit files inside it.
When you are done, reply with:
1. Your analysis of what needed to be done
2. A summary of the changes you made
3. Your reasoning for these changes`

// Stage2PromptTemplate asks a member to rank the anonymized answers.
const Stage2PromptTemplate = `You are evaluating different responses to the following question.

## Question
%s

## Responses
The responses are anonymized. Refer to them only by their labels (%s).

%s

## Your Task
1. Briefly evaluate each response. You may wrap the evaluation of each one in <critique label="Response X">...</critique>.
2. End your reply with your ranking, best first, in EXACTLY this format:

` + ranking.FinalRankingMarker + `
%s

Every label must appear exactly once. Do not use any other labels or any model names.`

// CodeStage2PromptTemplate asks a member to rank the anonymized proposals.
const CodeStage2PromptTemplate = `You are reviewing different code change proposals for the following task.

## Task
%s

## Proposals
The proposals are anonymized. Refer to them only by their labels (%s).

%s

## Your Task
1. Briefly evaluate each proposal for correctness, code quality, and completeness. You may wrap the evaluation of each one in <critique label="Response X">...</critique>.
2. End your reply with your ranking, best first, in EXACTLY this format:

` + ranking.FinalRankingMarker + `
%s

Every label must appear exactly once. Do not use any other labels or any model names.`

// Stage3PromptTemplate asks the chairman for the final answer.
const Stage3PromptTemplate = `You are the Chairman of a council of models. Each member answered the question below, then every member ranked the anonymized answers.
%s
## Original Question
%s

## Stage 1: Individual Responses
%s

## Stage 2: Peer Reviews
%s

## Aggregate Ranking
%s

## Your Task
Synthesize all of this into a single, accurate answer to the original question. Consider the insights in each response, what the peer rankings reveal about quality, and where the members agree or disagree.

Provide a clear, well-reasoned final answer that represents the council's collective judgment.`

// CodeStage3PromptTemplate asks the chairman to judge the code proposals.
const CodeStage3PromptTemplate = `You are the Chairman of a council of models reviewing code. Each member proposed changes for the task below, then every member ranked the anonymized proposals.
%s
## Original Task
%s

## Stage 1: Individual Proposals
%s

## Stage 2: Peer Reviews
%s

## Aggregate Ranking
%s

## Your Task
Explain which proposal should be applied and why, drawing on the strengths of each proposal and the issues the reviewers identified. Call out anything the winning proposal still needs.`

// TitlePromptTemplate asks for a short conversation title.
const TitlePromptTemplate = `Write a short title (at most six words) for a conversation that starts with the request below. Reply with the title only, without quotes or punctuation at the end.

%s`

// maxTitleLength bounds titles, generated or truncated.
const maxTitleLength = 60

// historyBlock renders prior rounds as context for a follow-up.
func historyBlock(history []*record.SessionRecord) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n## Conversation So Far\n")
	for i, rec := range history {
		fmt.Fprintf(&sb, "\n### Round %d\nQuestion: %s\n", i+1, rec.Query)
		if rec.Synthesis != nil && rec.Synthesis.Content != "" {
			fmt.Fprintf(&sb, "Council answer: %s\n", rec.Synthesis.Content)
		}
	}
	return sb.String()
}

func stage1Prompt(query string, mode record.Mode, workDir string, history []*record.SessionRecord) string {
	if mode == record.ModeCode {
		return fmt.Sprintf(CodeStage1PromptTemplate, historyBlock(history), query, workDir)
	}
	return fmt.Sprintf(Stage1PromptTemplate, historyBlock(history), query)
}

func stage2Prompt(query string, mode record.Mode, views []AnonymizedResponse) string {
	labels := make([]string, len(views))
	example := make([]string, len(views))
	blocks := make([]string, len(views))
	for i, v := range views {
		labels[i] = v.Label
		example[i] = fmt.Sprintf("%d. %s", i+1, v.Label)
		blocks[i] = formatView(v, mode)
	}
	tmpl := Stage2PromptTemplate
	if mode == record.ModeCode {
		tmpl = CodeStage2PromptTemplate
	}
	return fmt.Sprintf(tmpl,
		query,
		strings.Join(labels, ", "),
		strings.Join(blocks, "\n\n"),
		strings.Join(example, "\n"),
	)
}

func formatView(v AnonymizedResponse, mode record.Mode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s\n", v.Label)
	if mode == record.ModeCode {
		if v.Diff == "" {
			sb.WriteString("(no file changes)\n")
		} else {
			fmt.Fprintf(&sb, "Files changed: %s (+%d -%d)\n```diff\n%s\n```\n",
				strings.Join(v.Files, ", "), v.Additions, v.Deletions, strings.TrimRight(v.Diff, "\n"))
		}
		if v.Content != "" {
			fmt.Fprintf(&sb, "Summary:\n%s\n", v.Content)
		}
		return sb.String()
	}
	sb.WriteString(v.Content)
	return sb.String()
}

// stage3Prompt gives the chairman the de-anonymized material.
func stage3Prompt(query string, mode record.Mode, responses []record.Response, reviews []record.Review, r ranking.Ranking, history []*record.SessionRecord) string {
	var s1 strings.Builder
	for _, resp := range responses {
		if !resp.Success {
			continue
		}
		fmt.Fprintf(&s1, "### %s (%s)\n", resp.MemberID, resp.Label)
		if mode == record.ModeCode && !resp.Diff.Empty() {
			fmt.Fprintf(&s1, "```diff\n%s\n```\n", strings.TrimRight(resp.Diff.Content, "\n"))
		}
		fmt.Fprintf(&s1, "%s\n\n", resp.Content)
	}

	var s2 strings.Builder
	for _, rev := range reviews {
		if !rev.Success {
			continue
		}
		fmt.Fprintf(&s2, "### Review by %s\n%s\n\n", rev.ReviewerID, rev.Raw)
	}
	if s2.Len() == 0 {
		s2.WriteString("(no peer reviews were collected)\n")
	}

	var s3 strings.Builder
	for _, e := range r.Entries {
		member, _ := r.MemberFor(e.Label)
		fmt.Fprintf(&s3, "%d. %s (%s): %d points", e.Position, e.Label, member, e.Score)
		if r.Ballots > 0 {
			fmt.Fprintf(&s3, ", average rank %.2f", e.AverageRank)
		}
		s3.WriteString("\n")
	}

	tmpl := Stage3PromptTemplate
	if mode == record.ModeCode {
		tmpl = CodeStage3PromptTemplate
	}
	return fmt.Sprintf(tmpl,
		historyBlock(history),
		query,
		strings.TrimSpace(s1.String()),
		strings.TrimSpace(s2.String()),
		strings.TrimSpace(s3.String()),
	)
}

// FallbackTitle derives a title from the query when no title model is set.
func FallbackTitle(query string) string {
	title := strings.Join(strings.Fields(query), " ")
	if len([]rune(title)) <= maxTitleLength {
		return title
	}
	runes := []rune(title)[:maxTitleLength-3]
	if i := strings.LastIndex(string(runes), " "); i > maxTitleLength/2 {
		return string(runes)[:i] + "..."
	}
	return string(runes) + "..."
}

// cleanTitle normalizes a generated title.
func cleanTitle(raw string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(raw), "\n", 2)[0])
	line = strings.Trim(line, "\"'`*# ")
	line = strings.TrimPrefix(line, "Title:")
	line = strings.TrimSpace(strings.TrimRight(line, "."))
	if line == "" {
		return ""
	}
	return FallbackTitle(line)
}
