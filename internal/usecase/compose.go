package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

const (
	noControlData   = "No data available."
	noChatHistory   = "No prior chat history available."
	noDocumentFound = "No document content found."

	defaultHistoryBudget = 6000
)

// PromptComposer renders evaluation and chat prompts. It is a pure function
// of its inputs; the only policy it applies is the chat history token budget.
type PromptComposer struct {
	Tokens        domain.TokenCounter
	Model         string
	HistoryBudget int
}

// NewPromptComposer constructs a PromptComposer. A nil counter falls back to
// a four-characters-per-token estimate.
func NewPromptComposer(tc domain.TokenCounter, model string, historyBudget int) PromptComposer {
	if historyBudget <= 0 {
		historyBudget = defaultHistoryBudget
	}
	return PromptComposer{Tokens: tc, Model: model, HistoryBudget: historyBudget}
}

// ComposeEvaluation builds the Judge prompt from the control record, its chat
// history and the freshly extracted document text, in that order.
func (c PromptComposer) ComposeEvaluation(rec domain.ControlRecord, history []domain.ChatEntry, document string) string {
	if strings.TrimSpace(document) == "" {
		document = noDocumentFound
	}
	var b strings.Builder
	b.WriteString("You are a compliance auditor evaluating evidence uploaded by a user against one audit control. ")
	b.WriteString("Use the control data, the conversation so far and the document summary below. ")
	b.WriteString("Your answer must follow the output contract exactly.\n\n")

	b.WriteString("Control data:\n")
	b.WriteString(c.controlBlock(rec))
	b.WriteString("\n\n----\n\n")

	b.WriteString("Previous chat history:\n")
	b.WriteString(c.RenderHistory(history))
	b.WriteString("\n\n----\n\n")

	b.WriteString("Document summary for the uploaded evidence:\n")
	b.WriteString(document)
	b.WriteString("\n\n----\n\n")

	b.WriteString(evaluationRules(rec))
	return b.String()
}

// ComposeChat builds the system prompt for a free-form conversation about
// one control.
func (c PromptComposer) ComposeChat(rec domain.ControlRecord, history []domain.ChatEntry) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant guiding a user through the corporate governance requirements of a single audit control. ")
	b.WriteString("Only discuss this control. The user completes it by uploading evidence; every evaluation appends an entry ")
	b.WriteString("with score, remark and files to upload_history. Help the user raise the score to 100 by naming the evidence still missing.\n\n")
	b.WriteString("Control data:\n")
	b.WriteString(c.controlBlock(rec))
	b.WriteString("\n\n----\n\nPrevious chat history:\n")
	b.WriteString(c.RenderHistory(history))
	b.WriteString("\n\n----\n\n")
	b.WriteString("Be supportive, concise and concrete about the next steps. Now answer the user's message.")
	return b.String()
}

func (c PromptComposer) controlBlock(rec domain.ControlRecord) string {
	if rec.ControlID == "" {
		return noControlData
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return noControlData
	}
	var b strings.Builder
	b.Write(data)
	fmt.Fprintf(&b, "\n\nThis control has %d prior evaluation(s). Current score: %d. Current result: %s.",
		len(rec.UploadHistory), rec.Score, rec.Result)
	if latest, ok := rec.LatestUpload(); ok {
		fmt.Fprintf(&b, " Most recent upload: %s.", strings.Join(domain.FileNameSet(latest.Files), ", "))
	}
	return b.String()
}

// RenderHistory renders chat entries oldest first as "User: "/"Bot: " lines
// joined by blank lines. When the rendering exceeds the token budget the
// oldest entries are dropped.
func (c PromptComposer) RenderHistory(history []domain.ChatEntry) string {
	if len(history) == 0 {
		return noChatHistory
	}
	lines := make([]string, len(history))
	for i, e := range history {
		lines[i] = renderChatLine(e)
	}

	budget := c.HistoryBudget
	if budget <= 0 {
		budget = defaultHistoryBudget
	}
	start := len(lines)
	used := 0
	for i := len(lines) - 1; i >= 0; i-- {
		n := c.count(lines[i]) + 1
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	kept := lines[start:]
	if len(kept) == 0 {
		// Always keep the newest turn, truncated to the budget.
		kept = []string{truncateToChars(lines[len(lines)-1], budget*4)}
		start = len(lines) - 1
	}
	out := strings.Join(kept, "\n\n")
	if start > 0 {
		out = fmt.Sprintf("[%d earlier message(s) omitted]\n\n%s", start, out)
	}
	return out
}

func renderChatLine(e domain.ChatEntry) string {
	who := "Bot"
	if e.Type == domain.ChatUser {
		who = "User"
	}
	return who + ": " + e.Text
}

func (c PromptComposer) count(s string) int {
	if c.Tokens != nil {
		if n, err := c.Tokens.CountTokens(s, c.Model); err == nil {
			return n
		}
	}
	return (len(s) + 3) / 4
}

func truncateToChars(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func evaluationRules(rec domain.ControlRecord) string {
	var b strings.Builder
	b.WriteString("Output contract: respond with one JSON object and nothing else, no markdown and no code fences:\n")
	fmt.Fprintf(&b, `{"compliant_result": "%s", "score": <integer 0-100>, "remarks": "<compliance status and what is needed to improve it>"}`, strings.Join(domain.Strings(), `" | "`))
	b.WriteString("\n\nRubric:\n")
	for _, l := range domain.Labels {
		lo, hi := l.Range()
		fmt.Fprintf(&b, "- %s for scores %d-%d: %s\n", l, lo, hi, l.Describe())
	}
	b.WriteString("\nRules:\n")
	fmt.Fprintf(&b, "1. The score must not decrease from the current score of %d.\n", rec.Score)
	b.WriteString("2. If the same files were already submitted (see upload_history), do not increase the score.\n")
	b.WriteString("3. For new evidence, raise the score in proportion to how relevant and complete it is against the Suggested Test Guidance.\n")
	b.WriteString("4. Be lenient: evidence that establishes the core requirement is acceptable even without exhaustive detail. Do not demand perfect documents unless the control explicitly requires it.\n")
	b.WriteString("5. A signature rendered as \"Illegible signature\" counts as valid evidence.\n")
	b.WriteString("6. In remarks, state what the evidence shows and what is still needed.\n")
	return b.String()
}
