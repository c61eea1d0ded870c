package rag

import (
	"context"
	"fmt"

	"github.com/Protocol-Lattice/course-agent/src/models"
)

// ToolManager is a name-keyed tool registry. Registration order is
// preserved: definitions are advertised and sources consulted in the order
// tools were registered.
type ToolManager struct {
	tools map[string]Tool
	order []string
}

func NewToolManager() *ToolManager {
	return &ToolManager{tools: map[string]Tool{}}
}

// Register stores a tool under its advertised name. A definition without a
// name is a configuration error.
func (m *ToolManager) Register(tool Tool) error {
	name := tool.Definition().Name
	if name == "" {
		return fmt.Errorf("tool must have a name in its definition")
	}
	if _, exists := m.tools[name]; !exists {
		m.order = append(m.order, name)
	}
	m.tools[name] = tool
	return nil
}

// Definitions returns every registered tool definition, ready to advertise
// to the model.
func (m *ToolManager) Definitions() []models.ToolDefinition {
	defs := make([]models.ToolDefinition, 0, len(m.order))
	for _, name := range m.order {
		defs = append(defs, m.tools[name].Definition())
	}
	return defs
}

// Execute dispatches to the named tool. An unknown name is reported as text
// rather than an error so the model can see it and adapt.
func (m *ToolManager) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, ok := m.tools[name]
	if !ok {
		return fmt.Sprintf("Tool '%s' not found", name), nil
	}
	return tool.Execute(ctx, args)
}

// LastSources returns the first non-empty source list among registered
// tools, consulted in registration order.
func (m *ToolManager) LastSources() []Source {
	for _, name := range m.order {
		if tracker, ok := m.tools[name].(SourceTracker); ok {
			if sources := tracker.LastSources(); len(sources) > 0 {
				return sources
			}
		}
	}
	return nil
}

// ResetSources clears source state on every tracking tool.
func (m *ToolManager) ResetSources() {
	for _, tool := range m.tools {
		if tracker, ok := tool.(SourceTracker); ok {
			tracker.ResetSources()
		}
	}
}
