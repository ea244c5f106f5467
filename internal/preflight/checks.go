package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const defaultCheckTimeout = 10 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckWritableDirectory verifies that the directory exists and accepts new entries.
func CheckWritableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.W_OK|unix.X_OK, "write ok")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// hubStatus is the subset of the Selenium Grid /status document we read.
type hubStatus struct {
	Value struct {
		Ready   bool   `json:"ready"`
		Message string `json:"message"`
	} `json:"value"`
}

// CheckSeleniumHub queries <hub>/status and requires the grid to report ready.
func CheckSeleniumHub(ctx context.Context, hubURL string, timeout time.Duration) Result {
	const name = "Selenium hub"

	base := strings.TrimRight(strings.TrimSpace(hubURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	resp, err := get(ctx, base+"/status", timeout)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("status check failed (%d)", resp.StatusCode)}
	}
	var status hubStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&status); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreadable status (%v)", err)}
	}
	if !status.Value.Ready {
		detail := "not ready"
		if msg := strings.TrimSpace(status.Value.Message); msg != "" {
			detail = fmt.Sprintf("not ready (%s)", msg)
		}
		return Result{Name: name, Detail: detail}
	}
	return Result{Name: name, Passed: true, Detail: "Ready"}
}

// CheckCDPEndpoint verifies that a Chrome DevTools endpoint answers. HTTP
// endpoints are asked for /json/version; websocket endpoints only get a TCP dial.
func CheckCDPEndpoint(ctx context.Context, endpoint string, timeout time.Duration) Result {
	const name = "CDP endpoint"

	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || parsed.Host == "" {
		return Result{Name: name, Detail: "invalid url"}
	}
	if parsed.Scheme == "ws" || parsed.Scheme == "wss" {
		return CheckTCPEndpoint(ctx, name, endpoint, timeout)
	}

	resp, err := get(ctx, strings.TrimRight(endpoint, "/")+"/json/version", timeout)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("version check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckTCPEndpoint verifies that the host behind endpoint accepts connections.
func CheckTCPEndpoint(ctx context.Context, name, endpoint string, timeout time.Duration) Result {
	address, err := dialAddress(endpoint)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout(timeout))
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(checkCtx, "tcp", address)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", address)}
}

// CheckService verifies that the unlock web page answers with a non-error status.
func CheckService(ctx context.Context, serviceURL string, timeout time.Duration) Result {
	const name = "Unlock service"

	serviceURL = strings.TrimSpace(serviceURL)
	if serviceURL == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	resp, err := get(ctx, serviceURL, timeout)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= http.StatusBadRequest {
		return Result{Name: name, Detail: fmt.Sprintf("page returned %d", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

func get(ctx context.Context, target string, timeout time.Duration) (*http.Response, error) {
	timeout = checkTimeout(timeout)
	checkCtx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func checkTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 || timeout > defaultCheckTimeout {
		return defaultCheckTimeout
	}
	return timeout
}

func dialAddress(endpoint string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || parsed.Hostname() == "" {
		return "", errors.New("invalid url")
	}
	port := parsed.Port()
	if port == "" {
		switch parsed.Scheme {
		case "https", "wss":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(parsed.Hostname(), port), nil
}

// summarizeHTTPError produces a human-readable summary for connectivity failures.
func summarizeHTTPError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out (endpoint unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (endpoint unreachable)"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Sprintf("unreachable (%v)", opErr.Err)
	}
	return err.Error()
}
