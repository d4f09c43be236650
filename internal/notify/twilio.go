package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
)

type TwilioProvider struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

func NewTwilioProvider(baseURL, accountSID, authToken, from string, client *http.Client) *TwilioProvider {
	return &TwilioProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     client,
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) Configured() bool {
	return p.accountSID != "" && p.authToken != "" && p.from != "" && p.baseURL != ""
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *TwilioProvider) Send(ctx context.Context, to, message string) error {
	endpoint := p.baseURL + "/2010-04-01/Accounts/" + url.PathEscape(p.accountSID) + "/Messages.json"
	form := url.Values{
		"To":   {internationalNumber(to)},
		"From": {p.from},
		"Body": {message},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "create twilio request")
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send twilio request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var apiErr twilioError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr); err == nil && apiErr.Message != "" {
		return errors.Errorf("twilio returned status %d: %d %s", resp.StatusCode, apiErr.Code, apiErr.Message)
	}
	return errors.Errorf("twilio returned status %d", resp.StatusCode)
}

// internationalNumber turns a bare Nepali mobile number into E.164.
func internationalNumber(phone string) string {
	trimmed := strings.TrimSpace(phone)
	if strings.HasPrefix(trimmed, "+") {
		return "+" + digits(trimmed)
	}
	p := digits(trimmed)
	if len(p) == 10 && strings.HasPrefix(p, "9") {
		return "+977" + p
	}
	return "+" + p
}
