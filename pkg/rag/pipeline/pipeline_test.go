package pipeline

import (
	"reflect"
	"testing"
)

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
		wantOk bool
	}{
		{
			name:   "bare array",
			output: `[{"intent_item": "查询系统A"}]`,
			want:   `[{"intent_item": "查询系统A"}]`,
			wantOk: true,
		},
		{
			name:   "array after marker preferred",
			output: "1.分析 [无关的括号]\n2.拆解\n3.以下是json格式的解析结果：\n[\"意图一\", \"意图二\"]",
			want:   `["意图一", "意图二"]`,
			wantOk: true,
		},
		{
			name:   "nested arrays balanced",
			output: `结果：[[1,2],[3,4]] 结束`,
			want:   `[[1,2],[3,4]]`,
			wantOk: true,
		},
		{
			name:   "brackets inside strings ignored",
			output: `[{"cypher": "MATCH (n) WHERE n.name CONTAINS \"[测试]\" RETURN n"}]`,
			want:   `[{"cypher": "MATCH (n) WHERE n.name CONTAINS \"[测试]\" RETURN n"}]`,
			wantOk: true,
		},
		{
			name:   "no array present",
			output: "纯文本输出，没有结构化结果",
			wantOk: false,
		},
		{
			name:   "unterminated array",
			output: `[{"intent_item": "未闭合"`,
			wantOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSONArray(tt.output)
			if ok != tt.wantOk || got != tt.want {
				t.Errorf("extractJSONArray() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestDecodeIntentItems(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "object form",
			raw:  `[{"intent_item": "系统A接入的网络"}, {"intent_item": "网络B的安全产品"}]`,
			want: []string{"系统A接入的网络", "网络B的安全产品"},
		},
		{
			name: "bare string form",
			raw:  `["意图一", "意图二"]`,
			want: []string{"意图一", "意图二"},
		},
		{
			name: "blank items dropped",
			raw:  `[{"intent_item": "有效意图"}, {"intent_item": "  "}]`,
			want: []string{"有效意图"},
		},
		{
			name: "invalid json",
			raw:  `[{{`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeIntentItems(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decodeIntentItems(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseCypherStatements(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "object form with surrounding prose",
			raw:  "生成结果如下：\n[{\"intent_item\": \"意图\", \"cypher\": \"MATCH (n:SYSTEM) RETURN n\"}]",
			want: []string{"MATCH (n:SYSTEM) RETURN n"},
		},
		{
			name: "bare statement list",
			raw:  `["MATCH (a) RETURN a", "MATCH (b) RETURN b"]`,
			want: []string{"MATCH (a) RETURN a", "MATCH (b) RETURN b"},
		},
		{
			name: "code fence stripped",
			raw:  "[{\"cypher\": \"```cypher\\nMATCH (n) RETURN n\\n```\"}]",
			want: []string{"MATCH (n) RETURN n"},
		},
		{
			name: "no array",
			raw:  "抱歉，无法生成查询语句",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseCypherStatements(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseCypherStatements(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fence", in: "MATCH (n) RETURN n", want: "MATCH (n) RETURN n"},
		{name: "fence with language", in: "```cypher\nMATCH (n) RETURN n\n```", want: "MATCH (n) RETURN n"},
		{name: "bare fence", in: "```\nMATCH (n) RETURN n\n```", want: "MATCH (n) RETURN n"},
		{name: "fence only", in: "```", want: "```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
