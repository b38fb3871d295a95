// Package assistant wraps the free-text generation service used for drug
// lookups and inventory Q&A. This boundary has no error taxonomy: every
// failure degrades to a user-visible apology string.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"pharmacare/m/domain"
)

const (
	flashModel = "gemini-2.5-flash"
	proModel   = "gemini-2.5-pro"

	apologyDrugInfo     = "Sorry, I couldn't fetch information for this drug at the moment. Please ensure your API key is configured correctly."
	apologyInteractions = "Sorry, I couldn't check for interactions at this time. Please ensure your API key is configured correctly."
	apologyInventory    = "Sorry, I couldn't analyze the inventory at this time. Please ensure your API key is configured correctly."
)

// Client calls a Gemini-style generateContent endpoint.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	log     *zap.Logger
}

// New constructs a Client. baseURL is the API root without a trailing
// slash, e.g. "https://generativelanguage.googleapis.com/v1beta".
func New(baseURL, apiKey string, log *zap.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		log:     log,
	}
}

// DrugInformation returns a patient-friendly summary for one drug.
func (c *Client) DrugInformation(ctx context.Context, drugName string) string {
	prompt := fmt.Sprintf(`Provide a concise, easy-to-understand summary for the drug %q. Include its primary use, common side effects, and any major warnings. Format it in simple paragraphs suitable for a patient.`, drugName)
	return c.generate(ctx, flashModel, prompt, apologyDrugInfo)
}

// DrugInteractions analyzes a list of drugs for interactions. Fewer than
// two drugs is answered locally.
func (c *Client) DrugInteractions(ctx context.Context, drugs []string) string {
	if len(drugs) < 2 {
		return "Please provide at least two drugs to check for interactions."
	}
	prompt := fmt.Sprintf(`Analyze potential drug-drug interactions for the following list: %s.
Provide a summary of any significant interactions, categorized by severity (e.g., High, Moderate, Low).
IMPORTANT: Start your response with a clear, bold disclaimer: "**This is an AI-generated analysis and not a substitute for professional medical advice. Always consult a healthcare provider.**"`,
		strings.Join(drugs, ", "))
	return c.generate(ctx, proModel, prompt, apologyInteractions)
}

// QueryInventory answers a free-text question against serialized medicine
// and sales snapshots. Only the last 20 sales are included for context.
func (c *Client) QueryInventory(ctx context.Context, query string, meds []domain.Medicine, sales []domain.Sale) string {
	type batchSummary struct {
		Expiry string `json:"expiry"`
		Qty    int    `json:"qty"`
	}
	type medicineSummary struct {
		Name      string           `json:"name"`
		Stock     int              `json:"stock"`
		Warehouse domain.Warehouse `json:"warehouse"`
		Batches   []batchSummary   `json:"batches"`
	}
	type saleSummary struct {
		Date  time.Time `json:"date"`
		Total float64   `json:"total"`
		Items []string  `json:"items"`
	}

	inventory := make([]medicineSummary, 0, len(meds))
	for _, med := range meds {
		ms := medicineSummary{Name: med.Name, Stock: med.Stock, Warehouse: med.Warehouse}
		for _, b := range med.Batches {
			ms.Batches = append(ms.Batches, batchSummary{Expiry: b.ExpiryDate, Qty: b.Quantity})
		}
		inventory = append(inventory, ms)
	}

	if len(sales) > 20 {
		sales = sales[len(sales)-20:]
	}
	recent := make([]saleSummary, 0, len(sales))
	for _, sale := range sales {
		ss := saleSummary{Date: sale.Date, Total: sale.TotalAmount}
		for _, item := range sale.Items {
			ss.Items = append(ss.Items, item.Name)
		}
		recent = append(recent, ss)
	}

	inventoryJSON, err := json.Marshal(inventory)
	if err != nil {
		return apologyInventory
	}
	salesJSON, err := json.Marshal(recent)
	if err != nil {
		return apologyInventory
	}

	prompt := fmt.Sprintf(`You are a pharmacy inventory analysis AI. Based on the following data, answer the user's question.

User Question: %q

Inventory Data (JSON):
%s

Recent Sales Data (JSON):
%s

Provide a clear, concise answer based *only* on the data provided. If the data doesn't support an answer, say so.`,
		query, inventoryJSON, salesJSON)
	return c.generate(ctx, flashModel, prompt, apologyInventory)
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, model, prompt, apology string) string {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return apology
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apology
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("assistant request failed", zap.String("model", model), zap.Error(err))
		return apology
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("assistant returned non-OK status", zap.String("model", model), zap.Int("status", resp.StatusCode))
		return apology
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.Warn("assistant response decode failed", zap.Error(err))
		return apology
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return apology
	}

	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String()
}
