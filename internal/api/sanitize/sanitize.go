package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	markdownPolicyOnce sync.Once
	markdownPolicy     *bluemonday.Policy
)

func Text(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}

func TextPtr(input *string) *string {
	if input == nil {
		return nil
	}
	value := Text(*input)
	return &value
}

func StringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	out := make([]string, 0, len(values))
	for _, item := range values {
		escaped := Text(item)
		if escaped == "" {
			continue
		}
		out = append(out, escaped)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// Metadata escapes every string value of a free-form object, recursing into nested objects and lists.
func Metadata(input map[string]interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}

	out := make(map[string]interface{}, len(input))
	for key, value := range input {
		out[Text(key)] = metadataValue(value)
	}
	return out
}

func metadataValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case string:
		return Text(typed)
	case map[string]interface{}:
		return Metadata(typed)
	case []interface{}:
		out := make([]interface{}, 0, len(typed))
		for _, item := range typed {
			out = append(out, metadataValue(item))
		}
		return out
	default:
		return typed
	}
}

func Markdown(input string) string {
	value := strings.TrimSpace(input)
	if value == "" {
		return ""
	}
	return getMarkdownPolicy().Sanitize(value)
}

func MarkdownPtr(input *string) *string {
	if input == nil {
		return nil
	}
	value := Markdown(*input)
	return &value
}

func getMarkdownPolicy() *bluemonday.Policy {
	markdownPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowElements("p", "pre", "code", "blockquote")
		markdownPolicy = policy
	})

	return markdownPolicy
}
