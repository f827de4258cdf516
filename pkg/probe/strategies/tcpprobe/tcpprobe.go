package tcpprobe

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
)

type Settings struct {
	UseTLS        bool
	TLSServerName string
	TLSSkipVerify bool
}

// TcpConnProbe treats a completed connect (and TLS handshake when enabled)
// as a successful liveness check.
type TcpConnProbe struct {
	targetAddr string
	timeout    time.Duration
	tlsConfig  *tls.Config
	dialer     net.Dialer
}

func NewFactory(settings Settings) probe.Factory {
	return func(address string, timeout time.Duration) probe.Client {
		return New(settings, address, timeout)
	}
}

func New(settings Settings, address string, timeout time.Duration) *TcpConnProbe {
	var tlsConfig *tls.Config
	if settings.UseTLS {
		tlsConfig = new(tls.Config)
		tlsConfig.InsecureSkipVerify = settings.TLSSkipVerify
		tlsConfig.ServerName = settings.TLSServerName
	}
	return &TcpConnProbe{
		targetAddr: address,
		timeout:    timeout,
		tlsConfig:  tlsConfig,
		dialer: net.Dialer{
			Timeout:   timeout,
			KeepAlive: -1,
		},
	}
}

func (tc *TcpConnProbe) Address() string {
	return tc.targetAddr
}

func (tc *TcpConnProbe) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if tc.tlsConfig == nil {
		conn, err = tc.dialer.DialContext(ctx, "tcp", tc.targetAddr)
	} else {
		tlsDialer := tls.Dialer{
			NetDialer: &tc.dialer,
			Config:    tc.tlsConfig,
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", tc.targetAddr)
	}
	if err != nil {
		return probe.Wrap(tc.targetAddr, err)
	}
	_ = conn.Close()
	return nil
}
