package valuations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"valuation-backend/internal/llm"
)

// AnalysisErrorKind classifies why an analysis could not produce a result.
type AnalysisErrorKind string

const (
	// ErrKindMalformed means the model's output was not parseable JSON.
	ErrKindMalformed AnalysisErrorKind = "malformed_response"
	// ErrKindIncomplete means required fields were missing from the payload.
	ErrKindIncomplete AnalysisErrorKind = "incomplete_response"
	// ErrKindProvider means a transport, configuration, or safety failure.
	ErrKindProvider AnalysisErrorKind = "provider_failure"
	// ErrKindModelReported means the model itself declined to compute.
	ErrKindModelReported AnalysisErrorKind = "model_reported"
)

// AnalysisError is a terminal analysis failure. Task 1 records it on the
// valuation instead of retrying.
type AnalysisError struct {
	Kind   AnalysisErrorKind
	Detail string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s: %s", e.Kind, e.Detail)
}

// Payload returns the error in the shape stored as the record's result.
func (e *AnalysisError) Payload() map[string]any {
	return map[string]any{
		"error":      e.Detail,
		"error_kind": string(e.Kind),
	}
}

// AnalysisResult is the validated output of a successful analysis.
type AnalysisResult struct {
	ValuationAmount    float64
	Methodology        string
	StructuredSummary  map[string]any
	PresentationPrompt string
	// Raw holds the full parsed payload, stored verbatim as the record's
	// result so additional model fields survive round trips.
	Raw map[string]any
}

var requiredAnalysisFields = []string{
	"valuation_amount",
	"methodology",
	"structured_summary",
	"presentation_prompt",
}

// Analyzer turns validated inputs into a structured valuation by prompting a
// generative model. It performs no record mutation.
type Analyzer struct {
	LLM llm.Client
}

func NewAnalyzer(client llm.Client) *Analyzer {
	return &Analyzer{LLM: client}
}

// Analyze prompts the model and defensively parses its response. Errors are
// always *AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, inputs Inputs, subjectName string) (AnalysisResult, error) {
	prompt := buildAnalysisPrompt(inputs, subjectName)

	raw, err := a.LLM.Complete(ctx, prompt)
	if err != nil {
		detail := fmt.Sprintf("model call failed: %v", err)
		if strings.Contains(err.Error(), "blocked") {
			detail = fmt.Sprintf("model rejected the prompt (safety filter): %v", err)
		}
		return AnalysisResult{}, &AnalysisError{Kind: ErrKindProvider, Detail: detail}
	}

	cleaned := stripCodeFences(raw)

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return AnalysisResult{}, &AnalysisError{
			Kind:   ErrKindMalformed,
			Detail: fmt.Sprintf("response is not valid JSON: %v", err),
		}
	}

	// The model self-reporting an input problem is not a success.
	if msg, ok := payload["error"].(string); ok && strings.TrimSpace(msg) != "" {
		return AnalysisResult{}, &AnalysisError{Kind: ErrKindModelReported, Detail: msg}
	}

	var missing []string
	for _, field := range requiredAnalysisFields {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return AnalysisResult{}, &AnalysisError{
			Kind:   ErrKindIncomplete,
			Detail: fmt.Sprintf("response missing fields: %s", strings.Join(missing, ", ")),
		}
	}

	amount, ok := payload["valuation_amount"].(float64)
	if !ok {
		return AnalysisResult{}, &AnalysisError{
			Kind:   ErrKindIncomplete,
			Detail: "valuation_amount is not a number",
		}
	}
	methodology, ok := payload["methodology"].(string)
	if !ok {
		return AnalysisResult{}, &AnalysisError{
			Kind:   ErrKindIncomplete,
			Detail: "methodology is not a string",
		}
	}
	summary, ok := payload["structured_summary"].(map[string]any)
	if !ok {
		return AnalysisResult{}, &AnalysisError{
			Kind:   ErrKindIncomplete,
			Detail: "structured_summary is not an object",
		}
	}
	presentationPrompt, ok := payload["presentation_prompt"].(string)
	if !ok {
		return AnalysisResult{}, &AnalysisError{
			Kind:   ErrKindIncomplete,
			Detail: "presentation_prompt is not a string",
		}
	}

	return AnalysisResult{
		ValuationAmount:    amount,
		Methodology:        methodology,
		StructuredSummary:  summary,
		PresentationPrompt: presentationPrompt,
		Raw:                payload,
	}, nil
}

// stripCodeFences removes a leading ```json / ``` fence and a trailing ```
// from model output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func buildAnalysisPrompt(inputs Inputs, subjectName string) string {
	var sb strings.Builder
	sb.WriteString("You are a financial analysis assistant specializing in simplified valuations for small and medium businesses.\n")
	fmt.Fprintf(&sb, "Analyze the following data provided for the company %q:\n\n", subjectName)

	fmt.Fprintf(&sb, "- Annual revenue: %.2f\n", inputs.AnnualRevenue)
	fmt.Fprintf(&sb, "- Monthly operating costs: %.2f\n", inputs.MonthlyCosts)
	fmt.Fprintf(&sb, "- Tax rate on profit (%%): %.2f\n", inputs.TaxRate)
	fmt.Fprintf(&sb, "- Growth projection (%%): %.2f\n", inputs.GrowthProjection)
	fmt.Fprintf(&sb, "- Sector: %s\n", inputs.Sector)
	fmt.Fprintf(&sb, "- Years in operation: %d\n", inputs.YearsInOperation)
	fmt.Fprintf(&sb, "- Competitive differentiator: %s\n\n", inputs.Differentiator)

	sb.WriteString(`Your task is to perform the following steps and reply STRICTLY in the JSON format specified below:

1. Estimate annual net profit: annual revenue minus monthly operating costs times 12, adjusted by the tax rate on profit.
2. Estimate the valuation using a revenue-multiple method. Choose a reasonable multiple from the sector table below, adjusted upward for higher growth projection and longer operating history. Valuation = annual revenue * chosen multiple, rounded to 2 decimal places.
   Sector multiples: Varejo 0.5-1.0x, Servicos 1.0-2.0x, Tecnologia 2.0-5.0x, Industria 0.8-1.5x, Alimentacao 0.6-1.2x, Saude 1.5-3.0x.
3. Produce a structured summary with the key points.
4. Produce a text prompt optimized for a presentation-generation service to build a 5-7 slide deck about the company and its valuation.

MANDATORY JSON response format:
{
    "valuation_amount": <float>,
    "methodology": "Revenue Multiple (Sector: [sector], Multiple: [X.Yx])",
    "structured_summary": {
        "company_name": "...",
        "sector": "...",
        "years_in_operation": "...",
        "differentiator": "...",
        "financial_snapshot": "Annual revenue: R$ [formatted], Estimated annual net profit: R$ [formatted]",
        "estimated_valuation": "R$ [formatted]",
        "methodology_summary": "...",
        "key_drivers": "...",
        "strengths": "...",
        "risks": "..."
    },
    "presentation_prompt": "..."
}

Additional instructions:
- Be realistic when choosing the multiple.
- Format monetary values as "R$ X.XXX.XXX,XX".
- Write the structured summary and presentation prompt in Brazilian Portuguese.
- If any required data is missing or invalid for the calculation, return {"error": "<reason>"} instead.
- Do NOT include any explanation outside the JSON. Your reply must be ONLY the JSON object.
`)
	return sb.String()
}
