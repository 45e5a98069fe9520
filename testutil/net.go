/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

const waitPollInterval = 10 * time.Millisecond

// GetLocalAddrWithFreeTCPPort returns 127.0.0.1:<port> with a port that was free at the moment of the call.
func GetLocalAddrWithFreeTCPPort() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().String()
}

// WaitListeningServer polls addr until it accepts a TCP connection.
func WaitListeningServer(addr string, timeout time.Duration) error {
	return poll(timeout, func() error {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return err
		}
		return conn.Close()
	})
}

// WaitPortAndListeningServer waits until getPort reports a port and then until host:port accepts connections.
func WaitPortAndListeningServer(host string, getPort func() int, timeout time.Duration) (int, error) {
	var port int
	err := poll(timeout, func() error {
		if port = getPort(); port <= 0 {
			return fmt.Errorf("port is not known yet")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return port, WaitListeningServer(net.JoinHostPort(host, fmt.Sprint(port)), timeout)
}

func poll(timeout time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = waitPollInterval
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = timeout
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return nil
}

// AssertSamplesCountInHistogram asserts how many observations the histogram has.
func AssertSamplesCountInHistogram(t assert.TestingT, hist prometheus.Histogram, want int) bool {
	helper(t)
	reg := prometheus.NewPedanticRegistry()
	if !assert.NoError(t, reg.Register(hist)) {
		return false
	}
	families, err := reg.Gather()
	if !assert.NoError(t, err) || !assert.Len(t, families, 1) {
		return false
	}
	return assert.EqualValues(t, want, families[0].GetMetric()[0].GetHistogram().GetSampleCount())
}
