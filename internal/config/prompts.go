package config

// PromptConfig collects every prompt template used by the retrieval
// pipelines. Each template can be overridden through a PROMPT_* variable;
// the defaults below are the production prompts.
type PromptConfig struct {
	System            string
	IntentRecognition string
	KnowledgeEnhanced string
	SummaryGeneration string
	KnowledgeMatching string
	Router            string
	RouterSystem      string
	GraphIntent       string
	GraphCypher       string
	GraphSummary      string
	GraphSchema       string
}

func loadPrompts() PromptConfig {
	return PromptConfig{
		System:            getEnv("PROMPT_SYSTEM_PROMPT", defaultSystemPrompt),
		IntentRecognition: getEnv("PROMPT_INTENT_RECOGNITION_PROMPT", defaultIntentRecognitionPrompt),
		KnowledgeEnhanced: getEnv("PROMPT_KNOWLEDGE_ENHANCED_PROMPT_TEMPLATE", defaultKnowledgeEnhancedPrompt),
		SummaryGeneration: getEnv("PROMPT_SUMMARY_GENERATION_PROMPT", defaultSummaryGenerationPrompt),
		KnowledgeMatching: getEnv("PROMPT_KNOWLEDGE_MATCHING_PROMPT", defaultKnowledgeMatchingPrompt),
		Router:            getEnv("PROMPT_LLM_ROUTER_PROMPT", defaultRouterPrompt),
		RouterSystem:      getEnv("PROMPT_LLM_ROUTER_SYSTEM_PROMPT", defaultRouterSystemPrompt),
		GraphIntent:       getEnv("PROMPT_GRAPH_INTENT_PROMPT", defaultGraphIntentPrompt),
		GraphCypher:       getEnv("PROMPT_GRAPH_CYPHER_PROMPT", defaultGraphCypherPrompt),
		GraphSummary:      getEnv("PROMPT_GRAPH_SUMMARY_PROMPT", defaultGraphSummaryPrompt),
		GraphSchema:       getEnv("PROMPT_GRAPH_SCHEMA", defaultGraphSchema),
	}
}

const defaultSystemPrompt = `你是一个专业的AI助手，致力于为用户提供准确、有用的回答。

请遵循以下原则：
1. 基于提供的参考知识进行回答，确保准确性
2. 如果参考知识不足以回答问题，请诚实地说明
3. 保持回答简洁明了，避免冗余
4. 使用友好、专业的语气
5. 如果涉及专业术语，请适当解释

回答时请：
- 优先使用参考知识中的信息
- 如需引用，请标注来源
- 对不确定的内容，明确表达不确定性`

const defaultIntentRecognitionPrompt = `你是一个意图识别专家。请分析用户的查询，判断其意图类型。

可能的意图类型：
1. es_query - 通用知识查询（法规、标准、概念等）
2. neo4j_query - 图数据库查询（关系、路径、层级、网络拓扑等）
3. hybrid_query - 混合查询

用户查询: {query}

请判断意图类型，并给出置信度（0-1）。
只输出JSON格式: {"intent_type": "xxx", "confidence": 0.xx}`

const defaultKnowledgeEnhancedPrompt = `{system_prompt}

以下是历史对话，请基于上下文回答用户的新问题。

--- 历史对话开始 ---
{history}
--- 历史对话结束 ---

--- 相关知识 ---
{knowledge}
--- 知识结束 ---

用户: {query}

助手:`

const defaultSummaryGenerationPrompt = `请为以下对话生成简洁的摘要（不超过50字）：

{conversation}

摘要:`

const defaultKnowledgeMatchingPrompt = `请分析LLM的回答，找出其中引用的知识点，并与提供的知识库进行匹配。

LLM回答:
{llm_output}

知识库:
{knowledge_base}

请返回匹配的知识ID列表（JSON格式）。
格式: {"matched_ids": ["id1", "id2", ...]}`

const defaultRouterPrompt = `你是一个智能意图路由器，需要判断用户的查询应该要参考哪个知识库来回答。

知识库数据源说明：
1. neo4j：包含具体的业务数据，为业务图谱库，如某个单位的网络架构、系统配置、安全产品部署等具体信息
2. es：包含网络安全相关的法规、标准、规范、条款等权威文档，为法规知识库
3. hybrid：需要同时使用业务数据和法规标准进行对比分析
4. none：不需要检索任何知识库，可以直接回答的问题（如问候语、闲聊、一般性问题等）

历史对话上下文：
{history_context}

当前用户查询：{user_query}

请分析这个查询的特点，判断应该使用哪个数据源：
- 如果查询涉及具体的单位、网络、系统、设备等业务实体信息，选择"neo4j"
- 如果查询涉及法规条款、标准要求、规范内容等，选择"es"
- 如果查询需要将具体业务情况与法规要求进行对比分析，选择"hybrid"
- 如果查询是问候语、闲聊、一般性问题或不涉及专业知识的简单问题，选择"none"

请按照以下JSON格式输出你的决策：
{
  "decision": "neo4j/es/hybrid/none",
  "reasoning": "详细的决策理由",
  "confidence": 0.9
}`

const defaultRouterSystemPrompt = `你是一个专业的意图路由分析器，请仔细分析用户查询的特点并按照JSON格式输出路由判断。`

const defaultGraphIntentPrompt = `你是Neo4j图数据库的'智能意图解析器'。
请根据输入的上下文，完成Neo4j查询的意图拆解，并对每个意图进行详细分析。
你需要进行流式输出，其中分析思路需要展示到前端页面。
请先详细说明你的分析思路，分析思路请完全以流利的中文自然语言进行描述，然后输出最终严格的JSON结果。
最后的JSON结果，必须严格按照以下格式输出标识符（不要有任何变化）：
'3.以下是json格式的解析结果：'
[{"intent_item": "意图描述字符串"}, {"intent_item": "意图描述字符串"}, ...]
说明:
- intent_item: Neo4j查询的意图拆解的意图描述
- 最多给出3个意图；若用户问题非常明确，则仅输出1个意图，能不拆分的尽量不拆分。

在流式输出时，请按以下格式组织你的回答：
1. 首先分析用户问题可以拆分成哪几个意图
2. 以流利的中文输出每个意图的具体含义
3. 最后输出完整的JSON结果。（在JSON之前必须输出标识符）。`

const defaultGraphCypherPrompt = `你是Neo4j图数据库的Cypher查询生成专家。
请根据多个用户意图和提供的示例，为每个意图生成一条完整可执行的Cypher查询语句。
要求：
1. 为每个意图生成对应的Cypher语句，必须可以直接执行
2. 参考每个意图对应的示例中的Cypher语法和模式
3. 输出格式必须为严格的JSON格式，标识符为：'3.以下是json格式的解析结果：'
4. JSON格式：[{"intent_item": "意图描述", "cypher": "Cypher语句"}, ...]
5. 如果某个意图不明确或无法生成有效的Cypher，该意图的cypher字段返回空字符串
6. 请先简要说明分析思路，然后输出JSON结果（在JSON之前必须输出标识符）`

const defaultGraphSummaryPrompt = `请关闭思考模式，直接使用业务专员查到的结果对你的领导的问题作出回答，业务专员的结果不需要进行筛选，也不需要逐条分析，微小的错误请忽略，名称不统一也请忽略，回答的方式是先生成100个字的总结摘要，然后再进行详细回答。请参考以下模板回答。
以下是根据涉密网业务图谱查询到的结果作出的回答：`

const defaultGraphSchema = `[Neo4j图数据库结构]
节点类型及属性:
  - Netname: 网络节点
    属性: [name, netSecretLevel, networkType]
  - Unit: 单位节点
    属性: [name, unitType]
  - SYSTEM: 系统节点
    属性: [name, systemSecretLevel]
  - Safeproduct: 安全产品
    属性: [name, safeProductCount]
  - Totalintegrations: 集成商
    属性: [name, totalIntegrationLevel]

关系类型:
  - UNIT_NET: 单位与网络的所属关系
  - OPERATIONUNIT_NET: 运维单位与网络的关系
  - OVERUNIT_NET: 上级单位与网络的关系
  - SOFTWAREUNIT_SYSTEM: 软件开发单位与系统的关系
  - SYSTEM_NET: 系统与网络的部署关系
  - SECURITY_NET: 安全产品与网络的防护关系

重要提示: 请严格按照上述定义的节点类型、节点属性和关系类型进行Cypher生成, 如果要匹配节点属性,一定要使用where 节点.属性 contains 'xx'。严禁创建或使用上述结构中没有定义的节点类型、节点属性或关系类型。如果用户问题中提到了未定义的节点/属性/关系，请忽略这些信息或将其从意图中排除。
`
