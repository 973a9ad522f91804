// internal/pkg/payple/client.go
package payple

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result codes Payple uses as success sentinels. Auth, account and billing
// endpoints answer with A-codes, the transfer endpoints with T-codes.
const (
	ResultAuthSuccess     = "A0000"
	ResultTransferSuccess = "T0000"
)

// Client talks to the Payple settlement and billing APIs. Every call is
// synchronous request/response with a result code plus message; the caller
// decides what a non-success code means.
type Client struct {
	BaseURL    string
	CustID     string
	CustKey    string
	HTTPClient *http.Client
}

// NewClient creates a Payple API client with a bounded request timeout so
// a hanging PG call cannot stall a payout chain.
func NewClient(baseURL, custID, custKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		CustID:  custID,
		CustKey: custKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PartnerAuthResult is the response to a partner authentication request.
type PartnerAuthResult struct {
	Result      string `json:"result"`
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// AccountVerifyRequest verifies a payee bank account and issues the
// billing key used for transfers to that account.
type AccountVerifyRequest struct {
	BankCode      string `json:"bank_code_std"`
	AccountNumber string `json:"account_num"`
	AccountHolder string `json:"account_holder_info"`
	SubID         string `json:"sub_id,omitempty"`
}

// AccountVerifyResult carries the billing key on success.
type AccountVerifyResult struct {
	Result     string `json:"result"`
	Message    string `json:"message"`
	BillingKey string `json:"billing_tran_id"`
}

// TransferStandbyRequest stages a transfer against a verified account.
type TransferStandbyRequest struct {
	BillingKey string `json:"billing_tran_id"`
	Amount     int64  `json:"tran_amt"`
	Purpose    string `json:"print_content"`
}

// TransferStandbyResult carries the group key required to execute the
// staged transfer.
type TransferStandbyResult struct {
	Result   string `json:"result"`
	Message  string `json:"message"`
	GroupKey string `json:"group_key"`
}

// TransferExecuteRequest executes a staged transfer.
type TransferExecuteRequest struct {
	BillingKey   string `json:"billing_tran_id"`
	GroupKey     string `json:"group_key"`
	SettlementID string `json:"sub_id"`
	Amount       int64  `json:"tran_amt"`
}

// TransferExecuteResult is the synchronous answer to a transfer execution.
// The authoritative confirmation may still arrive later via webhook.
type TransferExecuteResult struct {
	Result     string `json:"result"`
	Message    string `json:"message"`
	TransferID string `json:"api_tran_id"`
	Amount     int64  `json:"tran_amt"`
}

// BillingChargeRequest charges a buyer's billing key for one recurring
// cycle.
type BillingChargeRequest struct {
	BillingKey string `json:"billing_key"`
	Amount     int64  `json:"pay_total"`
	OrderName  string `json:"pay_goods"`
	OrderRef   string `json:"pay_oid"`
}

// BillingChargeResult reports the charge outcome. A decline is a result
// with a non-success code, not a transport error.
type BillingChargeResult struct {
	Result    string `json:"result"`
	Message   string `json:"message"`
	PaymentID string `json:"pay_reqkey"`
	PaidAt    string `json:"pay_time"`
}

// APIError is a non-2xx answer from Payple.
type APIError struct {
	StatusCode int
	Result     string `json:"result"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payple api error (status %d): %s - %s", e.StatusCode, e.Result, e.Message)
	}
	return fmt.Sprintf("payple api error (status %d)", e.StatusCode)
}

// PartnerAuth exchanges the partner credentials for an access token.
func (c *Client) PartnerAuth(ctx context.Context) (*PartnerAuthResult, error) {
	payload := map[string]string{
		"cst_id":     c.CustID,
		"custKey":    c.CustKey,
		"grant_type": "client_credentials",
	}

	var out PartnerAuthResult
	if err := c.post(ctx, "/gpay/oauth/1.0/token", "", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyAccount verifies the payee bank account, authenticated with the
// token from PartnerAuth.
func (c *Client) VerifyAccount(ctx context.Context, token string, req AccountVerifyRequest) (*AccountVerifyResult, error) {
	var out AccountVerifyResult
	if err := c.post(ctx, "/inquiry/real_name", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransferStandby stages a transfer and returns the group key.
func (c *Client) TransferStandby(ctx context.Context, token string, req TransferStandbyRequest) (*TransferStandbyResult, error) {
	var out TransferStandbyResult
	if err := c.post(ctx, "/transfer/request", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransferExecute executes a staged transfer.
func (c *Client) TransferExecute(ctx context.Context, token string, req TransferExecuteRequest) (*TransferExecuteResult, error) {
	var out TransferExecuteResult
	if err := c.post(ctx, "/transfer/execute", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChargeBillingKey charges a recurring subscription cycle.
func (c *Client) ChargeBillingKey(ctx context.Context, req BillingChargeRequest) (*BillingChargeResult, error) {
	var out BillingChargeResult
	if err := c.post(ctx, "/cpay/billing", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path, token string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payple request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create payple request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute payple request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read payple response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, apiErr); err != nil {
			return fmt.Errorf("payple returned status %d with unparsable body", resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode payple response: %w", err)
	}

	return nil
}
