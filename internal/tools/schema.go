// Package tools defines the fixed tool surface advertised to the model and
// dispatches validated calls against per-conversation session state.
package tools

import (
	"encoding/json"

	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
)

// Tool names as advertised to the model.
const (
	NameGetDatasetList = "get_dataset_list"
	NameLoadDataset    = "load_dataset"
	NameGetDataPreview = "get_data_preview"
	NameGetDataInfo    = "get_data_info"
	NameRunScript      = "run_script"
)

const noParams = `{
	"type": "object",
	"properties": {},
	"required": [],
	"additionalProperties": false
}`

const loadDatasetParams = `{
	"type": "object",
	"properties": {
		"filename": {
			"type": "string",
			"description": "The name of the CSV file to load"
		}
	},
	"required": ["filename"],
	"additionalProperties": false
}`

const runScriptParams = `{
	"type": "object",
	"properties": {
		"analysis_request": {
			"type": "string",
			"description": "The user's natural language request for what analysis to perform"
		}
	},
	"required": ["analysis_request"],
	"additionalProperties": false
}`

var catalogue = []llm.ToolDef{
	{
		Type:        "function",
		Name:        NameGetDatasetList,
		Description: "List all available CSV datasets in the datasets directory",
		Strict:      true,
		Parameters:  json.RawMessage(noParams),
	},
	{
		Type:        "function",
		Name:        NameLoadDataset,
		Description: "Load a specific dataset by filename",
		Strict:      true,
		Parameters:  json.RawMessage(loadDatasetParams),
	},
	{
		Type:        "function",
		Name:        NameGetDataPreview,
		Description: "Get a preview of the currently loaded dataset",
		Strict:      true,
		Parameters:  json.RawMessage(noParams),
	},
	{
		Type:        "function",
		Name:        NameGetDataInfo,
		Description: "Get detailed information about the currently loaded dataset",
		Strict:      true,
		Parameters:  json.RawMessage(noParams),
	},
	{
		Type:        "function",
		Name:        NameRunScript,
		Description: "Generate and execute Python code to analyze the dataset based on user request",
		Strict:      true,
		Parameters:  json.RawMessage(runScriptParams),
	},
}

// Defs returns the tool definitions included in every model exchange. The
// returned slice is a copy; the catalogue itself never changes at runtime.
func Defs() []llm.ToolDef {
	defs := make([]llm.ToolDef, len(catalogue))
	copy(defs, catalogue)
	return defs
}

// SchemaFor returns the parameter schema for a tool name.
func SchemaFor(name string) (json.RawMessage, bool) {
	for _, def := range catalogue {
		if def.Name == name {
			return def.Parameters, true
		}
	}
	return nil, false
}
