package tools

import (
	"context"
	"fmt"
)

// Registry holds every registered tool and enforces the spec §4.9 ordering:
// existence, capability gate, allow/deny lists, approval gate.
type Registry struct {
	tools    map[string]Tool
	policy   *Policy
	approval *ApprovalGate
}

// NewRegistry builds a registry with the built-in tool set registered.
func NewRegistry(policy *Policy, approval *ApprovalGate) *Registry {
	r := &Registry{
		tools:    make(map[string]Tool),
		policy:   policy,
		approval: approval,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.Register(&readTool{policy: r.policy})
	r.Register(&writeTool{policy: r.policy})
	r.Register(&editTool{policy: r.policy})
	r.Register(&globTool{})
	r.Register(&grepTool{})
	r.Register(&lsTool{})
	r.Register(newRunShellTool(r.policy))
	r.Register(&webFetchTool{policy: r.policy})
	r.Register(&webSearchTool{})
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Specs returns the LLM-facing definitions for every enabled tool.
func (r *Registry) Specs() []ToolSpec {
	var specs []ToolSpec
	for _, t := range r.tools {
		if !r.policy.IsToolEnabled(t.Name()) {
			continue
		}
		specs = append(specs, ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return specs
}

// Run executes name with args, applying the full spec §4.9 check order.
// It never returns a Go error for policy/tool failures — those surface as
// ToolOutput{Success:false}, matching the "never panics the daemon"
// invariant; a non-nil error return is reserved for context cancellation.
func (r *Registry) Run(ctx context.Context, name string, args map[string]string) (ToolOutput, error) {
	t := r.Get(name)
	if t == nil {
		return fail(fmt.Sprintf("unknown tool: %s", name)), nil
	}

	if allowed, reason := r.policy.CheckCapability(name); !allowed {
		return fail(reason), nil
	}

	if r.policy.RequiresApproval(name) {
		decision, err := r.approval.Ask(ctx, name, args)
		if err != nil {
			if ctx.Err() != nil {
				return ToolOutput{}, err
			}
			return fail(err.Error()), nil
		}
		if decision != Approve {
			return fail(fmt.Sprintf("%s was not approved", name)), nil
		}
	}

	out, err := t.Execute(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return ToolOutput{}, err
		}
		return fail(err.Error()), nil
	}
	return out, nil
}
