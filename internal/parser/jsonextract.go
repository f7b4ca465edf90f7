package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences 去掉模型回复中包裹JSON的markdown代码栅栏
func StripCodeFences(response string) string {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// ExtractJSONCandidates 扫描文本，返回所有顶层花括号配平的JSON候选片段。
// 扫描器感知字符串字面量和转义符，括号计数只在字符串外进行，
// 因此正文里出现 "{" 字符不会污染配平结果。
func ExtractJSONCandidates(response string) []string {
	text := StripCodeFences(response)

	var candidates []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, ch := range text {
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidates = append(candidates, text[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}

// ExtractJSONObject 从模型回复中提取第一个可解析的JSON对象。
// 模型偶尔会在JSON前后附带说明文字或markdown格式，逐个候选尝试解析。
func ExtractJSONObject(response string) (map[string]interface{}, error) {
	for _, candidate := range ExtractJSONCandidates(response) {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("回复中未找到可解析的JSON对象")
}

// ExtractJSONObjectWithKeys 提取同时包含所有给定键的第一个可解析JSON对象。
// 模型回复中可能嵌着多个JSON片段（例如示例和正式输出），按键过滤避免选错。
func ExtractJSONObjectWithKeys(response string, keys ...string) (map[string]interface{}, error) {
	for _, candidate := range ExtractJSONCandidates(response) {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			continue
		}
		hasAll := true
		for _, key := range keys {
			if _, ok := obj[key]; !ok {
				hasAll = false
				break
			}
		}
		if hasAll {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("回复中未找到包含键 %v 的JSON对象", keys)
}
