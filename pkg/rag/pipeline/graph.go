package pipeline

import (
	"context"
	"fmt"
	"strings"

	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/pkg/esearch"
	"compliance-rag-be/pkg/graph"
	"compliance-rag-be/pkg/llm"
	"compliance-rag-be/pkg/rag"
	"compliance-rag-be/pkg/rag/frame"
)

type GraphSettings struct {
	Intent  ModelParams
	Cypher  ModelParams
	Summary ModelParams

	IntentPrompt  string
	CypherPrompt  string
	SummaryPrompt string
	SchemaHint    string

	ExamplesIndex string
	ExampleTopK   int
	RowLimit      int
}

// GraphPipeline answers from the business graph. Five stages: parse the
// question into intent items, match few-shot Cypher examples for each,
// generate a batch of Cypher statements, execute them, then stream a
// summary of the rows. Everything up to the summary runs inside one
// think block. Stage failures other than cancellation degrade to a
// well-formed empty stream instead of surfacing to the caller.
type GraphPipeline struct {
	provider llm.LLMProvider
	search   esearch.ISearchClient
	engine   graph.IGraphClient
	settings GraphSettings
	log      logger.ILogger
}

var _ IPipeline = (*GraphPipeline)(nil)

func NewGraphPipeline(provider llm.LLMProvider, search esearch.ISearchClient, engine graph.IGraphClient, settings GraphSettings, log logger.ILogger) *GraphPipeline {
	if settings.ExampleTopK <= 0 {
		settings.ExampleTopK = 1
	}
	if settings.RowLimit <= 0 {
		settings.RowLimit = 100
	}
	return &GraphPipeline{
		provider: provider,
		search:   search,
		engine:   engine,
		settings: settings,
		log:      log,
	}
}

type cypherExample struct {
	Question string
	Cypher   string
}

type intentExamples struct {
	Intent   string
	Examples []cypherExample
}

func (p *GraphPipeline) Run(ctx context.Context, question string, history []rag.Message, emit frame.Emitter) error {
	if err := emit(frame.Think("<think>\n")); err != nil {
		return err
	}

	intents, err := p.parseIntents(ctx, question, emit)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		p.log.Warn("GraphPipeline", "intent parse failed", map[string]interface{}{"error": err.Error()})
		return p.finishEmpty("意图解析失败", emit)
	}
	if len(intents) == 0 {
		return p.finishEmpty("未能识别有效的查询意图", emit)
	}

	matched := p.matchExamples(ctx, intents)
	if countExamples(matched) == 0 {
		return p.finishEmpty("未找到匹配的查询示例", emit)
	}

	statements, err := p.generateCypher(ctx, question, matched, emit)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		p.log.Warn("GraphPipeline", "cypher generation failed", map[string]interface{}{"error": err.Error()})
		return p.finishEmpty("Cypher生成失败", emit)
	}
	if err := emit(frame.Think("\nCypher生成完成。\n</think>\n")); err != nil {
		return err
	}

	rows := p.executeStatements(ctx, statements)

	if err := emit(frame.Data(frame.DataOpen)); err != nil {
		return err
	}
	if len(rows) == 0 {
		if err := emit(frame.Data("未检索到相关信息\n")); err != nil {
			return err
		}
	} else if err := p.streamSummary(ctx, question, rows, emit); err != nil {
		if ctx.Err() != nil {
			return err
		}
		p.log.Warn("GraphPipeline", "summary generation failed", map[string]interface{}{"error": err.Error()})
		if err := emit(frame.Data("\n未能生成查询结果总结\n")); err != nil {
			return err
		}
	}
	if err := emit(frame.Data("\n</data>\n")); err != nil {
		return err
	}

	if len(rows) > 0 {
		return emit(frame.Knowledge(fmt.Sprintf("<knowledge>\n检索到%d条相关信息\n</knowledge>\n", len(rows))))
	}
	return nil
}

// finishEmpty closes the think block with a note and emits an empty
// data block, so a degraded run still produces a well-formed stream.
func (p *GraphPipeline) finishEmpty(note string, emit frame.Emitter) error {
	if err := emit(frame.Think("\n" + note + "\n</think>\n")); err != nil {
		return err
	}
	if err := emit(frame.Data(frame.DataOpen)); err != nil {
		return err
	}
	if err := emit(frame.Data("未检索到相关信息\n")); err != nil {
		return err
	}
	return emit(frame.Data("\n</data>\n"))
}

func (p *GraphPipeline) parseIntents(ctx context.Context, question string, emit frame.Emitter) ([]string, error) {
	raw, err := p.streamThink(ctx, p.settings.IntentPrompt, "[用户问题]\n"+question+"\n\n", p.settings.Intent, emit)
	if err != nil {
		return nil, err
	}
	arr, ok := extractJSONArray(raw)
	if !ok {
		p.log.Warn("GraphPipeline", "no intent list in model output", map[string]interface{}{"output_len": len(raw)})
		return nil, nil
	}
	return decodeIntentItems(arr), nil
}

// matchExamples looks up few-shot question/cypher pairs for each intent
// item. Whitespace is stripped from stored statements, matching how the
// example corpus is indexed.
func (p *GraphPipeline) matchExamples(ctx context.Context, intents []string) []intentExamples {
	matched := make([]intentExamples, 0, len(intents))
	for _, intent := range intents {
		entry := intentExamples{Intent: intent}
		hits, err := p.search.Search(ctx, p.settings.ExamplesIndex, map[string]interface{}{
			"match": map[string]interface{}{"question": intent},
		}, p.settings.ExampleTopK)
		if err != nil {
			p.log.Warn("GraphPipeline", "example lookup failed", map[string]interface{}{"intent": intent, "error": err.Error()})
			matched = append(matched, entry)
			continue
		}
		for _, hit := range hits {
			q, _ := hit.Source["question"].(string)
			c, _ := hit.Source["cypher"].(string)
			if c == "" {
				c, _ = hit.Source["answer"].(string)
			}
			c = strings.ReplaceAll(strings.TrimSpace(c), " ", "")
			if q == "" || c == "" {
				continue
			}
			entry.Examples = append(entry.Examples, cypherExample{Question: q, Cypher: c})
		}
		matched = append(matched, entry)
	}
	return matched
}

func countExamples(matched []intentExamples) int {
	total := 0
	for _, entry := range matched {
		total += len(entry.Examples)
	}
	return total
}

func (p *GraphPipeline) generateCypher(ctx context.Context, question string, matched []intentExamples, emit frame.Emitter) ([]string, error) {
	var intentsText strings.Builder
	for i, entry := range matched {
		fmt.Fprintf(&intentsText, "意图%d: %s\n参考示例:\n", i+1, entry.Intent)
		for j, ex := range entry.Examples {
			fmt.Fprintf(&intentsText, "  示例%d:\n  问题: %s\n  Cypher: %s\n\n", j+1, ex.Question, ex.Cypher)
		}
		intentsText.WriteString("\n")
	}

	user := "[用户原始问题]\n" + question + "\n\n" +
		"[需要生成Cypher的意图列表]\n" + intentsText.String() +
		p.settings.SchemaHint +
		"请为每个意图生成对应的Cypher查询语句。"

	raw, err := p.streamThink(ctx, p.settings.CypherPrompt, user, p.settings.Cypher, emit)
	if err != nil {
		return nil, err
	}
	return parseCypherStatements(raw), nil
}

func (p *GraphPipeline) executeStatements(ctx context.Context, statements []string) []map[string]interface{} {
	if p.engine == nil {
		p.log.Warn("GraphPipeline", "graph engine disabled, skipping execution", nil)
		return nil
	}
	var rows []map[string]interface{}
	for _, stmt := range statements {
		if len(rows) >= p.settings.RowLimit {
			break
		}
		result, err := p.engine.Execute(ctx, stmt, nil)
		if err != nil {
			p.log.Warn("GraphPipeline", "statement execution failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		remaining := p.settings.RowLimit - len(rows)
		if len(result) > remaining {
			result = result[:remaining]
		}
		rows = append(rows, result...)
	}
	return rows
}

func (p *GraphPipeline) streamSummary(ctx context.Context, question string, rows []map[string]interface{}, emit frame.Emitter) error {
	user := "以下是业务专员查到的结果：\n" + formatRows(rows) +
		"\n\n以下是你的领导的问题，请结合查询结果作出回答：\n" + question

	messages := []llm.Message{
		{Role: "system", Content: p.settings.SummaryPrompt},
		{Role: "user", Content: user},
	}
	return p.provider.StreamChat(ctx, messages, func(delta string) error {
		return emit(frame.Data(delta))
	}, p.settings.Summary.Options()...)
}

// streamThink runs one streamed model call forwarding deltas as think
// frames and returning the accumulated output.
func (p *GraphPipeline) streamThink(ctx context.Context, system, user string, params ModelParams, emit frame.Emitter) (string, error) {
	var sb strings.Builder
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	err := p.provider.StreamChat(ctx, messages, func(delta string) error {
		sb.WriteString(delta)
		return emit(frame.Think(delta))
	}, params.Options()...)
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
