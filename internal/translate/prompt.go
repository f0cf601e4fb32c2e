package translate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nlquery/nlquery/internal/db"
	"github.com/nlquery/nlquery/internal/schema"
)

// Exchange is one prior question/SQL pair carried as conversation context.
type Exchange struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

// Prompt is the fully rendered translation request. Building it is pure:
// the same snapshot, question, and history always produce identical bytes.
type Prompt struct {
	System string
	User   string
}

// PromptBuilder renders prompts under a schema size budget. When the full
// schema does not fit, tables with keyword overlap against the question are
// kept ahead of unrelated ones.
type PromptBuilder struct {
	Dialect      db.Dialect
	SchemaBudget int
}

func (b PromptBuilder) Build(snapshot *schema.Snapshot, question string, history []Exchange) Prompt {
	return Prompt{
		System: b.systemPrompt(snapshot, question),
		User:   b.userPrompt(question, history),
	}
}

func (b PromptBuilder) systemPrompt(snapshot *schema.Snapshot, question string) string {
	var rules strings.Builder
	rules.WriteString("Rules:\n")
	rules.WriteString("- Output ONLY the SQL query, no explanations or markdown\n")
	fmt.Fprintf(&rules, "- Use proper SQL syntax for the %s dialect\n", b.Dialect)
	rules.WriteString("- Be precise with table and column names from the schema\n")
	rules.WriteString("- For SELECT queries, be specific about columns when possible\n")
	if b.Dialect == db.DialectPostgres {
		rules.WriteString("- Cast timestamp/date columns to text (e.g., created_at::text)\n")
	}
	rules.WriteString("- Add a reasonable LIMIT if none specified (max 100 rows)\n")
	rules.WriteString("- Output a single SQL statement only")

	return fmt.Sprintf(
		"You are a SQL query generator. Given a natural language request, generate a valid SQL query.\n\nDatabase schema:\n%s\n\n%s",
		b.schemaContext(snapshot, question),
		rules.String(),
	)
}

func (b PromptBuilder) userPrompt(question string, history []Exchange) string {
	if len(history) == 0 {
		return strings.TrimSpace(question)
	}
	var builder strings.Builder
	builder.WriteString("Earlier in this conversation:\n")
	for _, exchange := range history {
		fmt.Fprintf(&builder, "Q: %s\nSQL: %s\n", strings.TrimSpace(exchange.Question), strings.TrimSpace(exchange.SQL))
	}
	builder.WriteString("\n")
	builder.WriteString(strings.TrimSpace(question))
	return builder.String()
}

// schemaContext renders the snapshot, trimming to the budget when needed.
// Within budget the snapshot's lexical order is preserved; over budget,
// tables are re-ranked by keyword overlap with the question (ties stay
// lexical) and emitted until the budget is spent.
func (b PromptBuilder) schemaContext(snapshot *schema.Snapshot, question string) string {
	if snapshot == nil || len(snapshot.Tables) == 0 {
		return "(no tables)"
	}
	full := snapshot.Render()
	if b.SchemaBudget <= 0 || len(full) <= b.SchemaBudget {
		return full
	}

	ranked := make([]schema.TableInfo, len(snapshot.Tables))
	copy(ranked, snapshot.Tables)
	scores := make(map[string]int, len(ranked))
	tokens := questionTokens(question)
	for _, table := range ranked {
		scores[table.Name] = overlapScore(table, tokens)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].Name], scores[ranked[j].Name]
		if si != sj {
			return si > sj
		}
		return ranked[i].Name < ranked[j].Name
	})

	var builder strings.Builder
	for _, table := range ranked {
		block := schema.RenderTable(table)
		if builder.Len() > 0 && builder.Len()+len(block)+2 > b.SchemaBudget {
			break
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(block)
	}
	return builder.String()
}

func questionTokens(question string) map[string]bool {
	tokens := map[string]bool{}
	for _, field := range strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '_'
	}) {
		tokens[field] = true
		tokens[strings.TrimSuffix(field, "s")] = true
	}
	delete(tokens, "")
	return tokens
}

func overlapScore(table schema.TableInfo, tokens map[string]bool) int {
	score := 0
	name := strings.ToLower(table.Name)
	if tokens[name] || tokens[strings.TrimSuffix(name, "s")] {
		score += 2
	}
	for _, column := range table.Columns {
		columnName := strings.ToLower(column.Name)
		if tokens[columnName] || tokens[strings.TrimSuffix(columnName, "s")] {
			score++
		}
	}
	return score
}
