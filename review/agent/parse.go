package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Models frequently wrap JSON in markdown fences or prose despite
// instructions. ExtractJSONObject tries a direct unmarshal first, then falls
// back to the outermost {...} span.
func ExtractJSONObject(text string, v interface{}) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in response")
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// ExtractJSONArray is the array counterpart of ExtractJSONObject.
func ExtractJSONArray(text string, v interface{}) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON array found in response")
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
