package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/api/option"

	"github.com/carebot/carebot/internal/log"
)

// Gemini implements Generator and Embedder on the Google Gemini API.
type Gemini struct {
	client         *genai.Client
	model          string
	embeddingModel string
	logger         log.Logger
}

// NewGemini creates a Gemini-backed provider.
func NewGemini(ctx context.Context, apiKey, model, embeddingModel string, logger log.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		logger:         logger,
	}, nil
}

// Close releases the underlying client connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Generate implements Generator via the Gemini chat API.
//
// Gemini has no tool-call identifiers; function responses correlate by
// function name, so tool messages must carry ToolName.
func (g *Gemini) Generate(ctx context.Context, req *GenerateRequest) (*Reply, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("gemini generate: empty message history")
	}

	model := g.client.GenerativeModel(g.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema, err := toGeminiSchema(t.Parameters)
			if err != nil {
				return nil, fmt.Errorf("tool %q schema: %w", t.Name, err)
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	history := make([]*genai.Content, 0, len(req.Messages)-1)
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		content, err := toGeminiContent(msg)
		if err != nil {
			return nil, err
		}
		history = append(history, content)
	}

	last, err := toGeminiContent(req.Messages[len(req.Messages)-1])
	if err != nil {
		return nil, err
	}

	session := model.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini send message: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini send message: no candidates returned")
	}

	reply := &Reply{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			reply.Text += string(p)
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return nil, fmt.Errorf("marshal function call args: %w", err)
			}
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				Name:      p.Name,
				Arguments: args,
			})
		}
	}

	g.logger.Debug("gemini completion",
		"model", g.model,
		"tool_calls", len(reply.ToolCalls),
	)
	return reply, nil
}

// toGeminiContent converts a provider-neutral message to Gemini content.
func toGeminiContent(msg Message) (*genai.Content, error) {
	switch msg.Role {
	case RoleUser:
		return &genai.Content{
			Role:  "user",
			Parts: []genai.Part{genai.Text(msg.Content)},
		}, nil
	case RoleAssistant:
		parts := make([]genai.Part, 0, len(msg.ToolCalls)+1)
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if len(tc.Arguments) > 0 {
				if err := json.Unmarshal(tc.Arguments, &args); err != nil {
					return nil, fmt.Errorf("unmarshal tool call args: %w", err)
				}
			}
			parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
		}
		if len(parts) == 0 {
			parts = append(parts, genai.Text(""))
		}
		return &genai.Content{Role: "model", Parts: parts}, nil
	case RoleTool:
		var result map[string]any
		if err := json.Unmarshal([]byte(msg.Content), &result); err != nil {
			// Non-object result payloads are wrapped so the API accepts them.
			result = map[string]any{"result": msg.Content}
		}
		return &genai.Content{
			Role:  "function",
			Parts: []genai.Part{genai.FunctionResponse{Name: msg.ToolName, Response: result}},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported message role %q", msg.Role)
	}
}

// toGeminiSchema converts a JSON schema into Gemini's schema type. Only the
// subset Gemini supports is mapped: type, description, enum, properties,
// required, and items.
func toGeminiSchema(s *jsonschema.Schema) (*genai.Schema, error) {
	if s == nil {
		return nil, nil
	}

	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
	}

	switch s.Type {
	case "object", "":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		return nil, fmt.Errorf("unsupported schema type %q", s.Type)
	}

	for _, v := range s.Enum {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unsupported non-string enum value %v", v)
		}
		out.Enum = append(out.Enum, str)
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			converted, err := toGeminiSchema(prop)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			out.Properties[name] = converted
		}
	}

	if s.Items != nil {
		items, err := toGeminiSchema(s.Items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		out.Items = items
	}

	return out, nil
}

// Embed implements Embedder via the Gemini embedding API. The API embeds one
// text per call, so inputs are processed sequentially.
func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.embeddingModel)
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, fmt.Errorf("embed content %d: %w", i, err)
		}
		if res.Embedding == nil {
			return nil, fmt.Errorf("embed content %d: empty embedding", i)
		}
		vectors[i] = res.Embedding.Values
	}
	return vectors, nil
}
