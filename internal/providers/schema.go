package providers

// CleanSchemaForProvider deep-copies a tool's JSON-Schema parameters,
// stripping keywords a given provider's tool-use endpoint rejects.
// Providers diverge on which JSON Schema vocabulary they accept; this
// keeps the divergence in one place instead of inside every tool.
func CleanSchemaForProvider(providerName string, schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	cleaned := deepCopySchema(schema)
	switch providerName {
	case "anthropic":
		// input_schema rejects these JSON-Schema meta keywords.
		delete(cleaned, "$schema")
		delete(cleaned, "additionalProperties")
	case "gemini", "openrouter":
		stripUnsupportedFormats(cleaned)
	}
	return cleaned
}

// CleanToolSchemas renders a full OpenAI-wire tools array, applying each
// tool's provider-specific schema cleanup.
func CleanToolSchemas(providerName string, tools []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  CleanSchemaForProvider(providerName, t.Function.Parameters),
			},
		})
	}
	return out
}

func deepCopySchema(v map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(v))
	for k, val := range v {
		if m, ok := val.(map[string]interface{}); ok {
			out[k] = deepCopySchema(m)
		} else {
			out[k] = val
		}
	}
	return out
}

// stripUnsupportedFormats removes "format" values Gemini's function-calling
// schema doesn't recognize — it only honors "enum" and "date-time" — and
// recurses into nested object/array schemas.
func stripUnsupportedFormats(schema map[string]interface{}) {
	if format, ok := schema["format"].(string); ok && format != "enum" && format != "date-time" {
		delete(schema, "format")
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				stripUnsupportedFormats(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		stripUnsupportedFormats(items)
	}
}
