package generator

import (
	"strconv"
	"strings"

	"github.com/JonMunkholm/csvguard/internal/core"
)

// BuildPrompt renders the instruction sent to the model. The contract lines
// mirror what the corrector enforces: one entry point taking input and
// output paths, UTF-8 CSV output without an index column.
func BuildPrompt(req core.GenerationRequest) string {
	schema := "{}"
	if req.Template != nil {
		schema = req.Template.Prompt()
	}

	var b strings.Builder
	b.WriteString("You are a Senior Data Engineer. I have a CSV file with data quality issues.\n")
	b.WriteString("Your task is to generate a Python script to fix these issues and standardize the data.\n\n")

	b.WriteString("CONTEXT:\nThe CSV file has the following detected errors:\n")
	b.WriteString(strings.TrimSpace(req.ReportText))
	b.WriteString("\n\n")

	b.WriteString("TARGET SCHEMA (JSON):\n")
	b.WriteString(schema)
	b.WriteString("\n\n")

	b.WriteString("SAMPLE DATA (first lines of input):\n")
	b.WriteString(strings.TrimRight(req.Sample, "\n"))
	b.WriteString("\n\n")

	b.WriteString("INSTRUCTIONS:\n")
	for i, line := range instructions {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

var instructions = []string{
	"Write a Python script using 'pandas'.",
	"The script must define a function called '" + core.CorrectionEntryPoint + "(input_path, output_path)'.",
	"Read the CSV using 'input_path'. Handle encoding if necessary (try 'utf-8' then 'latin-1').",
	"Fix ALL mentioned errors (rename columns, convert dates to YYYY-MM-DD, clean currency symbols like 'R$', convert to float).",
	"Ensure the final DataFrame matches the 'TARGET SCHEMA' exactly.",
	"Save the result to 'output_path' (CSV, utf-8, no index).",
	"Return ONLY the raw Python code. Do NOT use markdown blocks. Do NOT add explanations.",
}

// StripFences removes markdown code fences the model adds despite being told not to.
func StripFences(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
