package handlers

import (
	"context"
	"unicode/utf8"
)

// CopilotQuery accepts an assistant question. Answering is done elsewhere.
func CopilotQuery(_ context.Context, req *CopilotQueryRequest) (*CopilotQueryResponse, error) {
	resp := &CopilotQueryResponse{}
	resp.Body.Accepted = true
	resp.Body.PromptLength = utf8.RuneCountInString(req.Body.Prompt)

	return resp, nil
}

// ConfirmBilling confirms a pending charge.
func ConfirmBilling(_ context.Context, req *ConfirmBillingRequest) (*ConfirmBillingResponse, error) {
	resp := &ConfirmBillingResponse{}
	resp.Body.ChargeID = req.Body.ChargeID
	resp.Body.Result = "confirmed"

	return resp, nil
}
