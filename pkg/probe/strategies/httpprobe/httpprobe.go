package httpprobe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
)

const defaultPath = "/healthz"

type Settings struct {
	Path          string
	Scheme        string
	UserAgent     string
	TLSServerName string
	TLSSkipVerify bool
}

type HTTPProbe struct {
	address string
	client  *http.Client
	url     string
	agent   string
}

func NewFactory(settings Settings) probe.Factory {
	return func(address string, timeout time.Duration) probe.Client {
		return New(settings, address, timeout)
	}
}

func New(settings Settings, address string, timeout time.Duration) *HTTPProbe {
	transport := http.Transport{
		DisableKeepAlives: true,
	}
	targetURL := url.URL{
		Scheme: settings.Scheme,
		Path:   settings.Path,
		Host:   address,
	}
	if targetURL.Scheme == "" {
		targetURL.Scheme = "http"
	}
	if targetURL.Path == "" {
		targetURL.Path = defaultPath
	}
	if targetURL.Scheme == "https" {
		tlsConfig := new(tls.Config)
		tlsConfig.InsecureSkipVerify = settings.TLSSkipVerify
		tlsConfig.ServerName = settings.TLSServerName

		transport.TLSClientConfig = tlsConfig
		transport.TLSHandshakeTimeout = timeout
	}
	return &HTTPProbe{
		address: address,
		url:     targetURL.String(),
		agent:   settings.UserAgent,
		client: &http.Client{
			Timeout:   timeout,
			Transport: &transport,
		},
	}
}

func (p *HTTPProbe) Address() string {
	return p.address
}

func (p *HTTPProbe) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return probe.Wrap(p.address, fmt.Errorf("failed to form http request: %w", err))
	}
	if p.agent != "" {
		req.Header.Set("User-Agent", p.agent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return probe.Wrap(p.address, fmt.Errorf("request do error: %w", err))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		return nil
	}
	log.Debug().Msgf("[http-probe]: invalid status code = %d", resp.StatusCode)
	return probe.Wrap(p.address, fmt.Errorf("%w: status code %d", probe.ErrRejected, resp.StatusCode))
}
