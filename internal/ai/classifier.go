// Package ai turns free-text demand lists into structured, prioritized
// tasks using the Claude Messages API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/psepar/demandboard/internal/model"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
	apiURL           = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"
)

// systemPrompt is the fixed prioritization rubric. Output is constrained
// to the board's priority levels and categories.
const systemPrompt = `Você é um Gerente de Projetos Sênior. Sua função é transformar listas desorganizadas de demandas em um plano de ação estruturado.

Siga rigorosamente esta MATRIZ DE PRIORIZAÇÃO:

PRIORIDADE ALTA (CRÍTICA):
- Bugs que impedem o funcionamento de sistemas em produção.
- Demandas com prazos legais/judiciais rígidos.
- Solicitações da direção ou que afetam usuários em massa.
- Segurança de dados ou vazamento de informações.

PRIORIDADE MÉDIA (IMPORTANTE):
- Desenvolvimento de novas features já planejadas.
- Melhoria na acurácia de modelos existentes.
- Documentação técnica e relatórios gerenciais.
- Integrações de API que não bloqueiam o sistema principal.

PRIORIDADE BAIXA (DESEJÁVEL):
- Pesquisa e estudo (POCs) de novas tecnologias sem aplicação imediata.
- Refatoração estética de código ou interfaces internas.
- Ideias "nice to have" sem solicitante definido.

Responda APENAS com um objeto JSON no formato:
{"tasks": [{"id": string, "task": string, "category": "Dev"|"Dados"|"Infra"|"Pesquisa", "priority": "ALTA"|"MEDIA"|"BAIXA", "justification": string}], "blockers": [string]}

A lista "blockers" contém itens que precisam de mais informação antes de virar tarefa.`

// Classifier calls the Claude API to prioritize demand lists.
type Classifier struct {
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// New creates a classifier with the given configuration.
func New(apiKey, modelName string, maxTokens int) *Classifier {
	if modelName == "" {
		modelName = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Classifier{
		apiKey:    apiKey,
		model:     modelName,
		maxTokens: maxTokens,
		client:    &http.Client{},
	}
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze sends the demand list and decodes the structured result.
func (c *Classifier) Analyze(ctx context.Context, input string) (*model.PrioritizationResult, error) {
	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages:  []apiMessage{{Role: "user", Content: input}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, apiURL, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return ParseResult(text.String())
}

// ParseResult decodes the classifier's JSON payload, tolerating markdown
// code fences around it, and validates category and priority values.
func ParseResult(text string) (*model.PrioritizationResult, error) {
	payload := strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(payload, "```json"); ok {
		payload = after
	} else if after, ok := strings.CutPrefix(payload, "```"); ok {
		payload = after
	}
	payload = strings.TrimSuffix(strings.TrimSpace(payload), "```")

	var result model.PrioritizationResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decoding prioritization result: %w", err)
	}

	for _, item := range result.Tasks {
		if !model.ValidCategory(item.Category) {
			return nil, fmt.Errorf("unknown category %q for task %q", item.Category, item.Task)
		}
		if !model.ValidPriority(item.Priority) {
			return nil, fmt.Errorf("unknown priority %q for task %q", item.Priority, item.Task)
		}
	}

	return &result, nil
}
