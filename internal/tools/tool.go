// Package tools implements C11, the tool executor: a registry of built-in
// tools gated by capability checks, allow/deny lists, and an approval gate.
package tools

import "context"

// Tool is implemented by every built-in.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	// Execute runs the tool. Args are string-valued per spec §4.9's
	// map<string,string> contract; numeric/boolean flags are passed as their
	// string representation and parsed by the tool itself.
	Execute(ctx context.Context, args map[string]string) (ToolOutput, error)
}

// ToolOutput is the contract result of every tool call (spec §4.9, §7).
type ToolOutput struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

func success(output string) ToolOutput { return ToolOutput{Success: true, Output: output} }
func fail(output string) ToolOutput    { return ToolOutput{Success: false, Output: output} }

// ToolSpec is the LLM-facing tool definition (named "spec()" in spec §9's
// redesign notes).
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}
