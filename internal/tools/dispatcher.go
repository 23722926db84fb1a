package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/R2i2Labs/fin-agent-ui/internal/dataset"
	"github.com/R2i2Labs/fin-agent-ui/internal/observability"
	"github.com/R2i2Labs/fin-agent-ui/internal/sandbox"
	"github.com/R2i2Labs/fin-agent-ui/internal/script"
)

// Dispatcher executes validated tool commands against a session. Tool
// failures are never returned as Go errors; every call produces a structured
// result the model can read, matching the dict-always contract of the tool
// surface.
type Dispatcher struct {
	datasets  *dataset.Store
	synth     *script.Synthesizer
	executor  *sandbox.Executor
	artifacts *script.Artifacts
	metrics   *observability.Metrics
	logger    *zap.Logger

	loadRows    int
	previewRows int
}

// NewDispatcher wires the dispatcher's collaborators. scriptsDir is the slot
// generated scripts and their requirements files are written to before
// execution; each run overwrites the previous one.
func NewDispatcher(datasets *dataset.Store, synth *script.Synthesizer, executor *sandbox.Executor,
	scriptsDir string, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	if scriptsDir == "" {
		scriptsDir = "generated_scripts"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		datasets:    datasets,
		synth:       synth,
		executor:    executor,
		artifacts:   script.NewArtifacts(scriptsDir),
		metrics:     metrics,
		logger:      logger,
		loadRows:    10,
		previewRows: 5,
	}
}

// SetPreviewRows overrides how many rows load_dataset and get_data_preview
// return. Non-positive values keep the defaults.
func (d *Dispatcher) SetPreviewRows(loadRows, previewRows int) {
	if loadRows > 0 {
		d.loadRows = loadRows
	}
	if previewRows > 0 {
		d.previewRows = previewRows
	}
}

// HandleCall parses, validates and dispatches one raw model tool call.
// Unknown names and schema violations become structured error results; the
// model sees them as the function call output and can correct itself.
func (d *Dispatcher) HandleCall(ctx context.Context, sess *Session, name, callID, arguments string) Result {
	cmd, err := ParseCall(name, arguments)
	if err != nil {
		var res Result
		if errors.Is(err, ErrUnknownTool) {
			res = errorResult(name, fmt.Sprintf("Unknown tool: %s", name))
		} else {
			res = errorResult(name, err.Error())
		}
		res.CallID = callID
		d.logger.Warn("tool call rejected", zap.String("tool", name), zap.Error(err))
		d.metrics.RecordToolCall(name, res.Status())
		return res
	}
	res := d.Dispatch(ctx, sess, cmd)
	res.CallID = callID
	return res
}

// Dispatch runs one typed command against the session.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, cmd Command) Result {
	var res Result
	switch c := cmd.(type) {
	case GetDatasetList:
		res = d.listDatasets()
	case LoadDataset:
		res = d.loadDataset(sess, c)
	case GetDataPreview:
		res = d.dataPreview(sess)
	case GetDataInfo:
		res = d.dataInfo(sess)
	case RunScript:
		res = d.runScript(ctx, sess, c)
	default:
		res = errorResult(cmd.ToolName(), fmt.Sprintf("Unknown tool: %s", cmd.ToolName()))
	}
	d.logger.Debug("tool dispatched",
		zap.String("tool", res.Tool), zap.String("status", res.Status()))
	d.metrics.RecordToolCall(res.Tool, res.Status())
	return res
}

func (d *Dispatcher) listDatasets() Result {
	names, err := d.datasets.List()
	switch {
	case errors.Is(err, dataset.ErrNoDatasetDir):
		return errorResult(NameGetDatasetList,
			fmt.Sprintf("Directory '%s' not found!", d.datasets.Dir()))
	case err != nil:
		return errorResult(NameGetDatasetList, fmt.Sprintf("Error listing datasets: %v", err))
	case len(names) == 0:
		return newResult(NameGetDatasetList, map[string]any{
			"status":  "empty",
			"message": fmt.Sprintf("No CSV files found in the '%s' directory.", d.datasets.Dir()),
		})
	}
	return newResult(NameGetDatasetList, map[string]any{
		"status":   "success",
		"datasets": names,
	})
}

// loadDataset replaces the session's data context only on success; a failed
// load leaves whatever was loaded before untouched.
func (d *Dispatcher) loadDataset(sess *Session, cmd LoadDataset) Result {
	frame, err := d.datasets.Load(cmd.Filename)
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		return errorResult(NameLoadDataset,
			fmt.Sprintf("File '%s' not found!", d.datasets.Path(cmd.Filename)))
	case err != nil:
		return errorResult(NameLoadDataset, fmt.Sprintf("Error loading dataset: %v", err))
	}
	sess.SetFrame(frame)
	d.logger.Info("dataset loaded",
		zap.String("filename", frame.Filename),
		zap.Int("rows", frame.Shape()[0]),
		zap.Int64("conversation_id", sess.ConversationID()))
	return newResult(NameLoadDataset, map[string]any{
		"status":   "success",
		"filename": frame.Filename,
		"shape":    frame.Shape(),
		"columns":  frame.Columns(),
		"preview":  frame.Head(d.loadRows),
	})
}

func (d *Dispatcher) dataPreview(sess *Session) Result {
	frame := sess.Frame()
	if frame == nil {
		return errorResult(NameGetDataPreview, "No dataset loaded yet.")
	}
	return newResult(NameGetDataPreview, map[string]any{
		"status":   "success",
		"filename": frame.Filename,
		"preview":  frame.Head(d.previewRows),
	})
}

func (d *Dispatcher) dataInfo(sess *Session) Result {
	frame := sess.Frame()
	if frame == nil {
		return errorResult(NameGetDataInfo, "No dataset loaded yet.")
	}
	return newResult(NameGetDataInfo, map[string]any{
		"status":   "success",
		"filename": frame.Filename,
		"shape":    frame.Shape(),
		"columns":  frame.Columns(),
		"dtypes":   frame.Dtypes(),
		"summary":  frame.Describe(),
	})
}

// runScript generates a standalone analysis script for the loaded dataset,
// writes it with its requirements to the scripts slot and executes it in the
// sandbox. The rich payload carries the script source, packages, artifact
// paths and the full execution result for API callers; the model echo is
// reduced to the execution outcome.
func (d *Dispatcher) runScript(ctx context.Context, sess *Session, cmd RunScript) Result {
	frame := sess.Frame()
	if frame == nil {
		return errorResult(NameRunScript, "No dataset loaded. Please load a dataset first.")
	}

	gen, err := d.synth.Generate(ctx, script.PromptInput{
		DataFile:       frame.Filename,
		DatasetPath:    d.datasets.Path(frame.Filename),
		Shape:          frame.Shape(),
		Columns:        frame.Columns(),
		DtypeSample:    frame.DtypeSample(5),
		ConversationID: sess.ConversationID(),
		UserQuery:      cmd.AnalysisRequest,
	})
	if err != nil || gen.Script == "" {
		d.logger.Warn("script generation failed",
			zap.Int64("conversation_id", sess.ConversationID()), zap.Error(err))
		return errorResult(NameRunScript, "Failed to generate analysis script.")
	}

	scriptPath, requirementsPath, err := d.artifacts.Write(gen)
	if err != nil {
		return errorResult(NameRunScript, fmt.Sprintf("Error saving script: %v", err))
	}

	started := time.Now()
	execution := d.executor.Execute(ctx, scriptPath, requirementsPath)
	d.metrics.RecordSandboxRun(execution.Status, time.Since(started))

	status := "error"
	if execution.Status == sandbox.StatusSuccess {
		status = "success"
	}
	message := execution.Message
	if message == "" {
		message = "Script execution complete."
	}
	res := newResult(NameRunScript, map[string]any{
		"status":            status,
		"script":            gen.Script,
		"required_packages": gen.Packages,
		"script_path":       scriptPath,
		"requirements_path": requirementsPath,
		"execution_result":  execution,
		"message":           message,
	})
	res.Echo = scriptEcho(execution)
	return res
}
