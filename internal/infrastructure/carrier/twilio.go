package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/values"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// TwilioClient implements Client against the Twilio REST API. Twilio
// calls its compliance bundles "regulatory bundles"; this adapter maps
// them onto the shared requirement-group surface.
type TwilioClient struct {
	config      TwilioConfig
	client      *http.Client
	rateLimiter *rate.Limiter
}

// TwilioConfig contains configuration for the Twilio client
type TwilioConfig struct {
	BaseURL      string        `json:"base_url"`
	AccountSID   string        `json:"account_sid"`
	AuthToken    string        `json:"auth_token"`
	Timeout      time.Duration `json:"timeout"`
	RateLimitRPS int           `json:"rate_limit_rps"`
}

func NewTwilioClient(config TwilioConfig) *TwilioClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.twilio.com"
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

	return &TwilioClient{
		config:      config,
		client:      httpClient,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimitRPS), config.RateLimitRPS*2),
	}
}

func (c *TwilioClient) Provider() string { return "twilio" }

type twilioSearchResponse struct {
	AvailablePhoneNumbers []struct {
		PhoneNumber  string `json:"phone_number"`
		Region       string `json:"region"`
		Capabilities map[string]bool `json:"capabilities"`
	} `json:"available_phone_numbers"`
}

func (c *TwilioClient) SearchAvailable(ctx context.Context, countryCode string, limit int) ([]CandidateNumber, error) {
	path := fmt.Sprintf("/2010-04-01/Accounts/%s/AvailablePhoneNumbers/%s/Local.json?PageSize=%d",
		url.PathEscape(c.config.AccountSID), url.PathEscape(countryCode), limit)

	var resp twilioSearchResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	candidates := make([]CandidateNumber, 0, len(resp.AvailablePhoneNumbers))
	for _, d := range resp.AvailablePhoneNumbers {
		phone, err := values.NewPhoneNumberE164(d.PhoneNumber)
		if err != nil {
			continue
		}

		cand := CandidateNumber{
			Phone:       phone,
			CountryCode: countryCode,
			Region:      d.Region,
		}
		// Twilio omits capability keys it has not evaluated; absence
		// stays unknown rather than false.
		if v, ok := d.Capabilities["voice"]; ok {
			cand.Capabilities.Voice = boolPtr(v)
		}
		if v, ok := d.Capabilities["SMS"]; ok {
			cand.Capabilities.SMS = boolPtr(v)
		}
		if v, ok := d.Capabilities["MMS"]; ok {
			cand.Capabilities.MMS = boolPtr(v)
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

type twilioPurchaseResponse struct {
	Sid          string `json:"sid"`
	Status       string `json:"status"`
	PhoneNumber  string `json:"phone_number"`
	MonthlyPrice string `json:"monthly_price"`
}

func (c *TwilioClient) Purchase(ctx context.Context, req PurchaseRequest) (*OrderResult, error) {
	form := url.Values{}
	form.Set("PhoneNumber", req.Phone.E164())
	if req.RequirementGroupExternalID != "" {
		form.Set("BundleSid", req.RequirementGroupExternalID)
	}

	path := fmt.Sprintf("/2010-04-01/Accounts/%s/IncomingPhoneNumbers.json", url.PathEscape(c.config.AccountSID))

	var resp twilioPurchaseResponse
	if err := c.doForm(ctx, path, form, &resp); err != nil {
		return nil, err
	}

	// Twilio completes most purchases synchronously; the order id doubles
	// as the number sid for reconciliation.
	result := &OrderResult{
		OrderID:          resp.Sid,
		ExternalNumberID: resp.Sid,
		Status:           OrderStatusCompleted,
	}
	if resp.Status == "pending" || resp.Status == "in-progress" {
		result.Status = OrderStatusPending
	}
	if resp.MonthlyPrice != "" {
		if cost, err := decimal.NewFromString(resp.MonthlyPrice); err == nil {
			result.MonthlyCost = decimal.NewNullDecimal(cost)
		}
	}
	return result, nil
}

type twilioBundleResponse struct {
	Sid          string `json:"sid"`
	Status       string `json:"status"`
	ItemAssignments []struct {
		ObjectType string `json:"object_type"`
		Required   bool   `json:"required"`
	} `json:"item_assignments"`
}

func (c *TwilioClient) CreateRequirementGroup(ctx context.Context, zone string) (*ExternalGroup, error) {
	form := url.Values{}
	form.Set("FriendlyName", "provisioning-"+strings.ToLower(zone))
	form.Set("IsoCountry", zone)
	form.Set("NumberType", "local")
	form.Set("EndUserType", "business")

	var resp twilioBundleResponse
	if err := c.doForm(ctx, "/v2/RegulatoryCompliance/Bundles", form, &resp); err != nil {
		return nil, err
	}

	group := &ExternalGroup{ID: resp.Sid, Zone: zone}
	for _, item := range resp.ItemAssignments {
		group.Fields = append(group.Fields, GroupField{
			Name:      item.ObjectType,
			Type:      "document",
			Mandatory: item.Required,
		})
	}
	return group, nil
}

func (c *TwilioClient) UpdateRequirementGroup(ctx context.Context, groupID string, fields map[string]string) error {
	// Twilio takes one item assignment per call.
	for name, value := range fields {
		form := url.Values{}
		form.Set("ObjectType", name)
		form.Set("ObjectValue", value)

		path := fmt.Sprintf("/v2/RegulatoryCompliance/Bundles/%s/ItemAssignments", url.PathEscape(groupID))
		if err := c.doForm(ctx, path, form, nil); err != nil {
			return err
		}
	}
	return nil
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Twilio error codes this adapter reacts to specifically.
const (
	twilioCodeAuthFailed        = 20003
	twilioCodeNumberUnavailable = 21422
	twilioCodeDuplicateBundle   = 21631
)

func (c *TwilioClient) doJSON(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return errors.NewInternalError("building twilio request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	return c.send(ctx, req, out)
}

func (c *TwilioClient) doForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.NewInternalError("building twilio request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.send(ctx, req, out)
}

func (c *TwilioClient) send(ctx context.Context, req *http.Request, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return errors.NewInternalError("rate limiter interrupted").WithCause(err)
	}
	req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewExternalError("twilio", "request failed").WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewExternalError("twilio", "reading response").WithCause(err)
	}

	if resp.StatusCode >= 400 {
		return c.classifyError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.NewExternalError("twilio", "decoding response").WithCause(err)
		}
	}
	return nil
}

// classifyError maps Twilio's numeric error codes into the shared
// taxonomy.
func (c *TwilioClient) classifyError(status int, body []byte) error {
	var parsed twilioErrorResponse
	_ = json.Unmarshal(body, &parsed)

	detail := parsed.Message
	if detail == "" {
		detail = "twilio returned HTTP " + strconv.Itoa(status)
	}

	switch {
	case parsed.Code == twilioCodeAuthFailed || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.NewAuthenticationError("twilio", detail)
	case parsed.Code == twilioCodeNumberUnavailable:
		return errors.NewUnavailableError("NUMBER_UNAVAILABLE", detail)
	case parsed.Code == twilioCodeDuplicateBundle || status == http.StatusConflict:
		return errors.NewConflictError(detail)
	case status == http.StatusPaymentRequired:
		return errors.NewUnavailableError("INSUFFICIENT_BALANCE", detail)
	case status == http.StatusNotFound:
		return errors.NewNotFoundError("twilio resource")
	case status == http.StatusBadRequest:
		return errors.NewValidationError("CARRIER_REJECTED_REQUEST", detail)
	default:
		return errors.NewExternalError("twilio", detail)
	}
}

func boolPtr(b bool) *bool { return &b }
