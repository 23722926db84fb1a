package script

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
)

const generationTemplate = `
   You are a financial data analysis assistant. Generate a standalone Python script to analyze the dataset based on the user's request.

   Dataset information:
   - Filename: {data_file}
   - Path: {dataset_path}
   - Shape: {shape}
   - Columns: {columns}
   - Sample data types: {dtypes}

    IMPORTANT: Follow these rules:
    1. Create a FULLY STANDALONE script that:
       - Imports all necessary libraries (numpy, pandas, matplotlib, etc.)
       - Loads the dataset from the correct path
       - Performs the requested analysis
       - Displays results visually when appropriate (using matplotlib)
       - Prints results in a clear, formatted way

    2. Structure requirements:
       - Do NOT include triple backticks (` + "```" + `)
       - Use correct Python syntax
       - Include proper error handling with try/except
       - Print results rather than just storing them
       - All visualizations must be saved as PNG files using ` + "`plt.savefig(\"output.png\")`" + ` or a relevant filename

    3. Visual output guidelines:
       - For time series: use line plots
       - For distributions: use histograms or box plots
       - For comparisons: use bar charts
       - For relationships: use scatter plots or heatmaps
       - Save all plots using ` + "`plt.savefig('output.png')`" + ` (use specific filenames and store it in the directory named with the generated_assets/conversation_id ` + "`generated_assets/{conversation_id}`" + `)
       - Do NOT use ` + "`plt.show()`" + ` unless debugging; rely on saved figures

    4. REQUIRED: At the beginning of your response, BEFORE the script, list ALL required Python packages that need to be installed in this format:
       PACKAGES: package1, package2, package3

       For example: "PACKAGES: numpy, pandas, matplotlib, seaborn, scipy"

    5. Always give the file path of any generated assets i.e. plots or images or any asset that you think will be created separately in the output

    User request: {user_query}
`

const packagesMarker = "PACKAGES:"

// DefaultPackages is installed when the model does not declare a package
// list of its own.
var DefaultPackages = []string{"numpy", "pandas", "matplotlib"}

// PromptInput carries the dataset context injected into the generation
// prompt.
type PromptInput struct {
	DataFile       string
	DatasetPath    string
	Shape          [2]int
	Columns        []string
	DtypeSample    string
	ConversationID int64
	UserQuery      string
}

// Generated is a parsed model response: the Python source and the packages
// it needs installed.
type Generated struct {
	Script   string
	Packages []string
}

// Synthesizer turns an analysis request into a standalone Python script via
// one non-streamed model exchange.
type Synthesizer struct {
	provider        llm.Provider
	route           llm.ModelRoute
	maxOutputTokens int
	logger          *zap.Logger
}

// NewSynthesizer builds a synthesizer bound to one provider route.
func NewSynthesizer(provider llm.Provider, route llm.ModelRoute, maxOutputTokens int, logger *zap.Logger) *Synthesizer {
	if maxOutputTokens <= 0 {
		maxOutputTokens = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{provider: provider, route: route, maxOutputTokens: maxOutputTokens, logger: logger}
}

// Generate renders the prompt, performs the exchange and parses the result.
// The generated source is not validated; execution is where it proves out.
func (s *Synthesizer) Generate(ctx context.Context, in PromptInput) (Generated, error) {
	prompt := RenderPrompt(in)

	resp, err := s.provider.Respond(ctx, llm.Request{
		Model: s.route.Model,
		Input: []llm.Item{
			{Type: llm.ItemMessage, Role: llm.RoleUser, Content: prompt},
		},
		MaxOutputTokens: s.maxOutputTokens,
		Temperature:     s.route.Temperature,
	})
	if err != nil {
		return Generated{}, fmt.Errorf("generate script: %w", err)
	}

	generated := Parse(resp.OutputText)
	s.logger.Debug("script generated",
		zap.Int("script_bytes", len(generated.Script)),
		zap.Strings("packages", generated.Packages))
	return generated, nil
}

// RenderPrompt fills the generation template with dataset context.
func RenderPrompt(in PromptInput) string {
	return strings.NewReplacer(
		"{data_file}", in.DataFile,
		"{dataset_path}", in.DatasetPath,
		"{shape}", fmt.Sprintf("(%d, %d)", in.Shape[0], in.Shape[1]),
		"{columns}", strings.Join(in.Columns, ", "),
		"{dtypes}", in.DtypeSample,
		"{conversation_id}", ConversationLabel(in.ConversationID),
		"{user_query}", in.UserQuery,
	).Replace(generationTemplate)
}

// ConversationLabel names the per-conversation asset directory; runs outside
// a stored conversation share the adhoc slot.
func ConversationLabel(id int64) string {
	if id <= 0 {
		return "adhoc"
	}
	return strconv.FormatInt(id, 10)
}

// Parse splits a model response into the package list and the script body.
// The first PACKAGES: line wins and is removed from the script; with no such
// line the whole response is the script and DefaultPackages applies. Code
// fences are stripped either way.
func Parse(output string) Generated {
	script := output
	packages := append([]string(nil), DefaultPackages...)

	if idx := strings.Index(output, packagesMarker); idx >= 0 {
		rest := output[idx+len(packagesMarker):]
		line := rest
		tail := ""
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			line = rest[:nl]
			tail = rest[nl+1:]
		}
		if parsed := splitPackages(line); len(parsed) > 0 {
			packages = parsed
		}
		script = output[:idx] + tail
	}

	return Generated{Script: Clean(script), Packages: packages}
}

// Clean strips markdown code fences left by the model.
func Clean(script string) string {
	script = strings.ReplaceAll(script, "```python", "")
	script = strings.ReplaceAll(script, "```", "")
	return strings.TrimSpace(script)
}

func splitPackages(line string) []string {
	parts := strings.Split(line, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
