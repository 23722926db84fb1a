package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrUnknownTool reports a call to a name outside the catalogue.
var ErrUnknownTool = errors.New("unknown tool")

// ErrInvalidArguments reports arguments that fail the tool's schema.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Command is one validated tool invocation. Implementations are the value
// types below, one per catalogue entry; a Command only exists after its raw
// arguments passed the tool's schema.
type Command interface {
	ToolName() string
}

// GetDatasetList lists the CSV files in the dataset directory.
type GetDatasetList struct{}

// LoadDataset loads a dataset by filename into the session.
type LoadDataset struct {
	Filename string `json:"filename"`
}

// GetDataPreview returns the head of the loaded dataset.
type GetDataPreview struct{}

// GetDataInfo returns shape, columns, dtypes and summary statistics.
type GetDataInfo struct{}

// RunScript generates and executes an analysis script.
type RunScript struct {
	AnalysisRequest string `json:"analysis_request"`
}

func (GetDatasetList) ToolName() string { return NameGetDatasetList }
func (LoadDataset) ToolName() string    { return NameLoadDataset }
func (GetDataPreview) ToolName() string { return NameGetDataPreview }
func (GetDataInfo) ToolName() string    { return NameGetDataInfo }
func (RunScript) ToolName() string      { return NameRunScript }

// ParseCall validates raw call arguments against the named tool's schema and
// returns the typed command. Empty arguments are treated as an empty object,
// which some models send for parameterless tools.
func ParseCall(name, arguments string) (Command, error) {
	schema, ok := SchemaFor(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	raw := strings.TrimSpace(arguments)
	if raw == "" {
		raw = "{}"
	}
	if err := validate(schema, []byte(raw)); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidArguments, name, err)
	}

	switch name {
	case NameGetDatasetList:
		return GetDatasetList{}, nil
	case NameLoadDataset:
		var cmd LoadDataset
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidArguments, name, err)
		}
		return cmd, nil
	case NameGetDataPreview:
		return GetDataPreview{}, nil
	case NameGetDataInfo:
		return GetDataInfo{}, nil
	case NameRunScript:
		var cmd RunScript
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidArguments, name, err)
		}
		return cmd, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

func validate(schema, document []byte) error {
	if !json.Valid(document) {
		return errors.New("arguments are not valid JSON")
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(document),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			reasons = append(reasons, re.String())
		}
		return errors.New(strings.Join(reasons, "; "))
	}
	return nil
}
