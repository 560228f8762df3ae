package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/values"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// TelnyxClient implements Client against the Telnyx v2 API. Telnyx is
// the provider whose regulated zones require a requirement group to be
// attached before an order can complete.
type TelnyxClient struct {
	config      TelnyxConfig
	client      *http.Client
	rateLimiter *rate.Limiter
}

// TelnyxConfig contains configuration for the Telnyx client
type TelnyxConfig struct {
	BaseURL      string        `json:"base_url"`
	APIKey       string        `json:"api_key"`
	Timeout      time.Duration `json:"timeout"`
	RateLimitRPS int           `json:"rate_limit_rps"`
}

func NewTelnyxClient(config TelnyxConfig) *TelnyxClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telnyx.com"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = 10
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &TelnyxClient{
		config:      config,
		client:      httpClient,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimitRPS), config.RateLimitRPS*2),
	}
}

func (c *TelnyxClient) Provider() string { return "telnyx" }

type telnyxSearchResponse struct {
	Data []struct {
		PhoneNumber string `json:"phone_number"`
		RegionInformation []struct {
			RegionType string `json:"region_type"`
			RegionName string `json:"region_name"`
		} `json:"region_information"`
		Features []struct {
			Name string `json:"name"`
		} `json:"features"`
		CostInformation struct {
			MonthlyCost string `json:"monthly_cost"`
		} `json:"cost_information"`
	} `json:"data"`
}

func (c *TelnyxClient) SearchAvailable(ctx context.Context, countryCode string, limit int) ([]CandidateNumber, error) {
	q := url.Values{}
	q.Set("filter[country_code]", countryCode)
	q.Set("filter[limit]", strconv.Itoa(limit))

	var resp telnyxSearchResponse
	if err := c.do(ctx, http.MethodGet, "/v2/available_phone_numbers?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	candidates := make([]CandidateNumber, 0, len(resp.Data))
	for _, d := range resp.Data {
		phone, err := values.NewPhoneNumberE164(d.PhoneNumber)
		if err != nil {
			// Skip anything the carrier reports in a shape we cannot trust.
			continue
		}

		cand := CandidateNumber{
			Phone:       phone,
			CountryCode: countryCode,
		}
		for _, r := range d.RegionInformation {
			if r.RegionType == "state" || r.RegionType == "location" {
				cand.Region = r.RegionName
			}
		}
		// An empty feature list means "not yet populated", not "supports
		// nothing": leave the flags unknown in that case.
		if len(d.Features) > 0 {
			voice, sms, mms := false, false, false
			for _, f := range d.Features {
				switch f.Name {
				case "voice":
					voice = true
				case "sms":
					sms = true
				case "mms":
					mms = true
				}
			}
			cand.Capabilities = Capabilities{Voice: &voice, SMS: &sms, MMS: &mms}
		}
		if d.CostInformation.MonthlyCost != "" {
			if cost, err := decimal.NewFromString(d.CostInformation.MonthlyCost); err == nil {
				cand.MonthlyCost = decimal.NewNullDecimal(cost)
			}
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

type telnyxOrderResponse struct {
	Data struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		PhoneNumbers []struct {
			ID              string   `json:"id"`
			PhoneNumber     string   `json:"phone_number"`
			Status          string   `json:"status"`
			RequirementsMet bool     `json:"requirements_met"`
			RequiredFields  []string `json:"required_fields"`
		} `json:"phone_numbers"`
		RequirementsDeadline *time.Time `json:"requirements_deadline"`
		CostInformation      struct {
			MonthlyCost string `json:"monthly_cost"`
		} `json:"cost_information"`
	} `json:"data"`
}

func (c *TelnyxClient) Purchase(ctx context.Context, req PurchaseRequest) (*OrderResult, error) {
	type orderNumber struct {
		PhoneNumber        string `json:"phone_number"`
		RequirementGroupID string `json:"requirement_group_id,omitempty"`
	}
	body := map[string]interface{}{
		"phone_numbers": []orderNumber{{
			PhoneNumber:        req.Phone.E164(),
			RequirementGroupID: req.RequirementGroupExternalID,
		}},
	}

	var resp telnyxOrderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/number_orders", body, &resp); err != nil {
		return nil, err
	}

	result := &OrderResult{
		OrderID:  resp.Data.ID,
		Status:   OrderStatusPending,
		Deadline: resp.Data.RequirementsDeadline,
	}
	switch resp.Data.Status {
	case "success", "completed":
		result.Status = OrderStatusCompleted
	case "failed":
		result.Status = OrderStatusFailed
	}
	for _, n := range resp.Data.PhoneNumbers {
		if n.PhoneNumber != req.Phone.E164() {
			continue
		}
		result.ExternalNumberID = n.ID
		if !n.RequirementsMet && len(n.RequiredFields) > 0 {
			result.Status = OrderStatusRequirements
			result.RequiredFields = n.RequiredFields
		}
	}
	if resp.Data.CostInformation.MonthlyCost != "" {
		if cost, err := decimal.NewFromString(resp.Data.CostInformation.MonthlyCost); err == nil {
			result.MonthlyCost = decimal.NewNullDecimal(cost)
		}
	}
	return result, nil
}

type telnyxGroupResponse struct {
	Data struct {
		ID                     string `json:"id"`
		CountryCode            string `json:"country_code"`
		RegulatoryRequirements []struct {
			FieldName string `json:"field_name"`
			FieldType string `json:"field_type"`
			Mandatory bool   `json:"mandatory"`
		} `json:"regulatory_requirements"`
	} `json:"data"`
}

func (c *TelnyxClient) CreateRequirementGroup(ctx context.Context, zone string) (*ExternalGroup, error) {
	body := map[string]interface{}{
		"country_code":      zone,
		"phone_number_type": "local",
		"action":            "ordering",
	}

	var resp telnyxGroupResponse
	if err := c.do(ctx, http.MethodPost, "/v2/requirement_groups", body, &resp); err != nil {
		return nil, err
	}

	group := &ExternalGroup{ID: resp.Data.ID, Zone: resp.Data.CountryCode}
	if group.Zone == "" {
		group.Zone = zone
	}
	for _, r := range resp.Data.RegulatoryRequirements {
		group.Fields = append(group.Fields, GroupField{
			Name:      r.FieldName,
			Type:      r.FieldType,
			Mandatory: r.Mandatory,
		})
	}
	return group, nil
}

func (c *TelnyxClient) UpdateRequirementGroup(ctx context.Context, groupID string, fields map[string]string) error {
	type fieldValue struct {
		FieldName  string `json:"field_name"`
		FieldValue string `json:"field_value"`
	}
	reqs := make([]fieldValue, 0, len(fields))
	for name, value := range fields {
		reqs = append(reqs, fieldValue{FieldName: name, FieldValue: value})
	}
	body := map[string]interface{}{"regulatory_requirements": reqs}

	return c.do(ctx, http.MethodPatch, "/v2/requirement_groups/"+url.PathEscape(groupID), body, nil)
}

type telnyxErrorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Telnyx error codes this adapter reacts to specifically.
const (
	telnyxCodeNumberUnavailable   = "85002"
	telnyxCodeInsufficientBalance = "85004"
	telnyxCodeDuplicateGroup      = "85010"
)

func (c *TelnyxClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return errors.NewInternalError("rate limiter interrupted").WithCause(err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternalError("encoding telnyx request").WithCause(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return errors.NewInternalError("building telnyx request").WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewExternalError("telnyx", "request failed").WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewExternalError("telnyx", "reading response").WithCause(err)
	}

	if resp.StatusCode >= 400 {
		return c.classifyError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.NewExternalError("telnyx", "decoding response").WithCause(err)
		}
	}
	return nil
}

// classifyError maps Telnyx's error vocabulary into the shared taxonomy
// so callers can distinguish credential failures from scarcity from
// duplicates without inspecting message text.
func (c *TelnyxClient) classifyError(status int, body []byte) error {
	var parsed telnyxErrorResponse
	_ = json.Unmarshal(body, &parsed)

	detail := fmt.Sprintf("telnyx returned HTTP %d", status)
	code := ""
	if len(parsed.Errors) > 0 {
		code = parsed.Errors[0].Code
		if parsed.Errors[0].Detail != "" {
			detail = parsed.Errors[0].Detail
		} else if parsed.Errors[0].Title != "" {
			detail = parsed.Errors[0].Title
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.NewAuthenticationError("telnyx", detail)
	case code == telnyxCodeNumberUnavailable:
		return errors.NewUnavailableError("NUMBER_UNAVAILABLE", detail)
	case code == telnyxCodeInsufficientBalance || status == http.StatusPaymentRequired:
		return errors.NewUnavailableError("INSUFFICIENT_BALANCE", detail)
	case code == telnyxCodeDuplicateGroup || status == http.StatusConflict:
		return errors.NewConflictError(detail)
	case status == http.StatusNotFound:
		return errors.NewNotFoundError("telnyx resource")
	case status == http.StatusUnprocessableEntity:
		return errors.NewValidationError("CARRIER_REJECTED_REQUEST", detail)
	default:
		return errors.NewExternalError("telnyx", detail)
	}
}
