package importer

import (
	"encoding/json"
	"io"
)

// ParseJSON reads an upload holding a JSON array of problem objects.
// Non-object items and non-string fields fail row validation.
func (v *Validator) ParseJSON(r io.Reader) Result {
	data, err := io.ReadAll(r)
	if err != nil {
		return failed("File reading error")
	}

	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return failed("JSON parsing error: " + err.Error())
	}

	items, ok := payload.([]interface{})
	if !ok {
		return failed("JSON parsing error: JSON must be an array of problems")
	}

	rows := make([]Row, len(items))
	for i, item := range items {
		obj, _ := item.(map[string]interface{})
		rows[i] = Row(obj)
	}
	return v.Validate(rows, "Item")
}
