package validator

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/vigilnet/vigil/internal/domain/tick"
)

type ProbeConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	VerifyTLS       bool          `mapstructure:"verify_tls"`
}

// Probe performs one HTTP uptime check. Any transport error is a Bad
// observation, not an error: the hub wants the site's status, not ours.
type Probe struct {
	client    *http.Client
	userAgent string
}

func NewProbe(cfg ProbeConfig) *Probe {
	transport := &http.Transport{}
	if !cfg.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &Probe{client: client, userAgent: cfg.UserAgent}
}

func (p *Probe) Do(ctx context.Context, url string) (tick.Status, int64) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalizeURL(url), nil)
	if err != nil {
		return tick.StatusBad, time.Since(start).Milliseconds()
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	lat := time.Since(start).Milliseconds()
	if err != nil {
		return tick.StatusBad, lat
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 399 {
		return tick.StatusGood, lat
	}
	return tick.StatusBad, lat
}

func normalizeURL(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return t
	}
	if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
		return t
	}
	return "http://" + t
}
