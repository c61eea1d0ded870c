package rag

import (
	"context"
	"fmt"
	"strings"

	utcp "github.com/universal-tool-calling-protocol/go-utcp"
	"github.com/universal-tool-calling-protocol/go-utcp/src/providers/base"
	"github.com/universal-tool-calling-protocol/go-utcp/src/providers/cli"
	"github.com/universal-tool-calling-protocol/go-utcp/src/repository"
	"github.com/universal-tool-calling-protocol/go-utcp/src/tools"
	"github.com/universal-tool-calling-protocol/go-utcp/src/transports"
)

// ragCLITransport routes UTCP CallTool invocations for in-process providers
// straight to their registered handlers, delegating everything else to the
// transport it wrapped.
type ragCLITransport struct {
	inner repository.ClientTransport
	tools map[string][]tools.Tool
}

func (t *ragCLITransport) RegisterToolProvider(ctx context.Context, prov base.Provider) ([]tools.Tool, error) {
	p, ok := prov.(*cli.CliProvider)
	if !ok {
		if t.inner != nil {
			return t.inner.RegisterToolProvider(ctx, prov)
		}
		return nil, fmt.Errorf("unsupported provider type %T", prov)
	}
	if t.tools == nil {
		t.tools = make(map[string][]tools.Tool)
	}
	list, ok := t.tools[p.Name]
	if !ok {
		if t.inner != nil {
			return t.inner.RegisterToolProvider(ctx, prov)
		}
		return nil, fmt.Errorf("tools not found for provider %s", p.Name)
	}
	return list, nil
}

func (t *ragCLITransport) DeregisterToolProvider(ctx context.Context, prov base.Provider) error {
	if p, ok := prov.(*cli.CliProvider); ok {
		if _, ok := t.tools[p.Name]; ok {
			delete(t.tools, p.Name)
			return nil
		}
	}
	if t.inner != nil {
		return t.inner.DeregisterToolProvider(ctx, prov)
	}
	return nil
}

func (t *ragCLITransport) CallTool(ctx context.Context, toolName string, args map[string]any, prov base.Provider, _ *string) (any, error) {
	if p, ok := prov.(*cli.CliProvider); ok {
		if list, ok := t.tools[p.Name]; ok {
			for _, tool := range list {
				if tool.Name == toolName || strings.HasSuffix(tool.Name, "."+toolName) {
					if tool.Handler == nil {
						return nil, fmt.Errorf("tool %s has no handler", toolName)
					}
					return tool.Handler(ctx, args)
				}
			}
		}
		if t.inner != nil {
			return t.inner.CallTool(ctx, toolName, args, prov, nil)
		}
		return nil, fmt.Errorf("tool %s not found for provider %s", toolName, p.Name)
	}
	if t.inner != nil {
		return t.inner.CallTool(ctx, toolName, args, prov, nil)
	}
	return nil, fmt.Errorf("unsupported provider type %T", prov)
}

func (t *ragCLITransport) CallToolStream(ctx context.Context, toolName string, args map[string]any, prov base.Provider) (transports.StreamResult, error) {
	if p, ok := prov.(*cli.CliProvider); ok {
		if _, ok := t.tools[p.Name]; ok {
			return nil, fmt.Errorf("streaming not supported for tool %s (provider %s)", toolName, p.Name)
		}
	}
	if t.inner != nil {
		return t.inner.CallToolStream(ctx, toolName, args, prov)
	}
	return nil, fmt.Errorf("unsupported provider type %T", prov)
}

// AsUTCPTool exposes the whole query pipeline as one UTCP tool with an
// in-process handler. Inputs: query (required), session_id (optional).
func (r *RAGSystem) AsUTCPTool(name, description string) tools.Tool {
	providerName := strings.TrimSpace(name)
	if parts := strings.Split(name, "."); len(parts) > 1 {
		providerName = parts[0]
	}
	return tools.Tool{
		Name:        name,
		Description: description,
		Provider: &base.BaseProvider{
			Name:         providerName,
			ProviderType: base.ProviderCLI,
		},
		Inputs: tools.ToolInputOutputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Question about the indexed course materials.",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Optional session id for conversation continuity.",
				},
			},
			Required: []string{"query"},
		},
		Outputs: tools.ToolInputOutputSchema{
			Type: "object",
			Properties: map[string]any{
				"answer":  map[string]any{"type": "string"},
				"sources": map[string]any{"type": "array"},
			},
		},
		Handler: tools.ToolHandler(func(ctx context.Context, inputs map[string]interface{}) (any, error) {
			query, ok := inputs["query"].(string)
			if !ok || strings.TrimSpace(query) == "" {
				return nil, fmt.Errorf("missing or invalid 'query'")
			}
			sessionID, _ := inputs["session_id"].(string)

			if ctx == nil {
				ctx = context.Background()
			}
			answer, sources, err := r.Query(ctx, query, strings.TrimSpace(sessionID))
			if err != nil {
				return nil, err
			}
			return map[string]any{"answer": answer, "sources": sources}, nil
		}),
	}
}

// RegisterAsUTCPProvider registers the system as a UTCP tool on the given
// client, installing the in-process transport shim when needed.
func (r *RAGSystem) RegisterAsUTCPProvider(ctx context.Context, client utcp.UtcpClientInterface, name, description string) error {
	if client == nil {
		return fmt.Errorf("utcp client is nil")
	}

	tool := r.AsUTCPTool(name, description)
	providerName := strings.TrimSpace(name)
	if parts := strings.Split(name, "."); len(parts) > 1 {
		providerName = parts[0]
	}

	tp := &cli.CliProvider{
		BaseProvider: base.BaseProvider{
			Name:         providerName,
			ProviderType: base.ProviderCLI,
		},
	}

	transportsMap := client.GetTransports()
	if transportsMap == nil {
		return fmt.Errorf("utcp client transports map is nil")
	}

	existing := transportsMap[string(base.ProviderCLI)]
	var shim *ragCLITransport
	if maybe, ok := existing.(*ragCLITransport); ok {
		shim = maybe
	} else {
		shim = &ragCLITransport{inner: existing}
		transportsMap[string(base.ProviderCLI)] = shim
	}
	if shim.tools == nil {
		shim.tools = make(map[string][]tools.Tool)
	}
	shim.tools[tp.Name] = []tools.Tool{tool}

	_, err := client.RegisterToolProvider(ctx, tp)
	return err
}
