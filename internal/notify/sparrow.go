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

// SparrowProvider sends through the Sparrow SMS gateway used for Nepali
// numbers.
type SparrowProvider struct {
	endpoint string
	token    string
	from     string
	client   *http.Client
}

func NewSparrowProvider(endpoint, token, from string, client *http.Client) *SparrowProvider {
	return &SparrowProvider{endpoint: endpoint, token: token, from: from, client: client}
}

func (p *SparrowProvider) Name() string { return "sparrow" }

func (p *SparrowProvider) Configured() bool {
	return p.token != "" && p.from != "" && p.endpoint != ""
}

type sparrowResponse struct {
	ResponseCode int    `json:"response_code"`
	Response     string `json:"response"`
}

func (p *SparrowProvider) Send(ctx context.Context, to, message string) error {
	form := url.Values{
		"token": {p.token},
		"from":  {p.from},
		"to":    {localNumber(to)},
		"text":  {message},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "create sparrow request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send sparrow request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return errors.Wrap(err, "read sparrow response")
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("sparrow returned status %d", resp.StatusCode)
	}

	var out sparrowResponse
	if err := json.Unmarshal(body, &out); err == nil && out.ResponseCode != 0 && out.ResponseCode != http.StatusOK {
		return errors.Errorf("sparrow rejected message: %d %s", out.ResponseCode, out.Response)
	}
	return nil
}

// localNumber strips the Nepal country code, leaving the 10 digit number
// the gateway expects.
func localNumber(phone string) string {
	p := digits(phone)
	if strings.HasPrefix(p, "977") && len(p) == 13 {
		return p[3:]
	}
	return p
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
