package prestashop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/importer/internal/domain/integration"
)

const (
	stepReachable = "url_reachable"
	stepAuth      = "authentication"
	stepEndpoint  = "languages_endpoint"
)

// CheckConnection runs three probes, cheapest first, without retries:
// the bare API URL, the API root with the key, and a one-row languages listing.
// Probe failures are reported in the result, not as an error.
func (c *Client) CheckConnection(ctx context.Context) (*integration.ConnectionReport, error) {
	report := &integration.ConnectionReport{
		BaseURL:   c.apiURL,
		MaskedKey: c.config.MaskedKey(),
	}

	reach := c.probe(ctx, stepReachable, c.apiURL, c.config.ProbeTimeout, func(code int, body []byte) (bool, string) {
		switch {
		case code == http.StatusOK && isHTML(body):
			return false, fmt.Sprintf("URL accessible but returns HTML instead of XML (%q)", htmlTitle(body))
		case code == http.StatusOK:
			return true, "URL accessible and returns XML"
		case code == http.StatusUnauthorized:
			return true, "URL accessible, authentication required"
		case code == http.StatusNotFound:
			return false, "URL returns 404 Not Found, check that the /api path is correct"
		default:
			return false, fmt.Sprintf("URL returns status %d", code)
		}
	})
	report.Steps = append(report.Steps, reach)

	auth := c.probe(ctx, stepAuth, c.apiURL+"/?ws_key="+c.config.APIKey, c.config.ProbeTimeout, func(code int, body []byte) (bool, string) {
		switch code {
		case http.StatusOK:
			if isHTML(body) {
				return false, "Authenticated request returned HTML instead of XML"
			}
			return true, "Authentication successful"
		case http.StatusUnauthorized:
			return false, "Authentication failed, check the API key"
		case http.StatusForbidden:
			return false, "Access forbidden, check the API key permissions"
		default:
			return false, fmt.Sprintf("Authentication probe returned status %d", code)
		}
	})
	report.Steps = append(report.Steps, auth)

	endpoint := c.probe(ctx, stepEndpoint, c.apiURL+"/"+string(integration.ResourceLanguages)+"?limit=1&ws_key="+c.config.APIKey, c.config.ProbeTimeout+5*time.Second,
		func(code int, body []byte) (bool, string) {
			if code == http.StatusOK && !isHTML(body) {
				return true, "Languages endpoint accessible"
			}
			return false, fmt.Sprintf("Languages endpoint failed with status %d", code)
		})
	report.Steps = append(report.Steps, endpoint)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.OK = endpoint.OK
	if !report.OK {
		report.Hint = connectionHint(report.Steps)
	}
	c.logger.Info("Connection check finished",
		zap.Bool("ok", report.OK),
		zap.String("base_url", report.BaseURL),
		zap.String("api_key", report.MaskedKey),
	)
	return report, nil
}

type probeJudge func(code int, body []byte) (bool, string)

func (c *Client) probe(ctx context.Context, name, target string, timeout time.Duration, judge probeJudge) integration.ConnectionStep {
	step := integration.ConnectionStep{Name: name}
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		step.Detail = err.Error()
		return step
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		mapped := transportError(ctx, err)
		switch {
		case errors.Is(mapped, integration.ErrSourceTimeout):
			step.Detail = "Connection timeout, the server may be slow"
		default:
			step.Detail = "Cannot connect to URL, check that the server is running"
		}
		step.Duration = time.Since(start)
		return step
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	step.StatusCode = resp.StatusCode
	step.OK, step.Detail = judge(resp.StatusCode, body)
	step.Duration = time.Since(start)
	return step
}

// connectionHint suggests a fix for the first failing probe
func connectionHint(steps []integration.ConnectionStep) string {
	for _, s := range steps {
		if s.OK {
			continue
		}
		switch {
		case s.Name == stepReachable && s.StatusCode == 0:
			return "Check that the shop is running and the base URL is correct."
		case strings.Contains(s.Detail, "HTML"):
			return "The shop answers HTML: enable URL rewriting and add " +
				"'RewriteRule ^api/?(.*)$ webservice/dispatcher.php?url=$1 [QSA,L]' to .htaccess."
		case s.StatusCode == http.StatusUnauthorized || s.StatusCode == http.StatusForbidden:
			return "Enable the webservice under Advanced Parameters > Webservice and grant the key " +
				"GET access to categories, products, stock_availables, customers, addresses and countries."
		case s.StatusCode == http.StatusNotFound:
			return "The /api path was not found; verify the base URL."
		}
	}
	return "Check the shop server logs for details."
}
