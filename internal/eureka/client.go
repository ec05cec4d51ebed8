// Package eureka registers the service with a Netflix Eureka server and
// keeps the registration alive with periodic heartbeats.
package eureka

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/config"
)

const defaultDataCenterClass = "com.netflix.appinfo.InstanceInfo$DefaultDataCenterInfo"

// Instance is the registration payload, in Eureka's JSON dialect.
type Instance struct {
	InstanceID       string         `json:"instanceId"`
	HostName         string         `json:"hostName"`
	App              string         `json:"app"`
	IPAddr           string         `json:"ipAddr"`
	VIPAddress       string         `json:"vipAddress"`
	SecureVIPAddress string         `json:"secureVipAddress"`
	Status           string         `json:"status"`
	Port             portInfo       `json:"port"`
	SecurePort       portInfo       `json:"securePort"`
	HomePageURL      string         `json:"homePageUrl"`
	StatusPageURL    string         `json:"statusPageUrl"`
	HealthCheckURL   string         `json:"healthCheckUrl"`
	DataCenterInfo   dataCenterInfo `json:"dataCenterInfo"`
}

type portInfo struct {
	Port    int    `json:"$"`
	Enabled string `json:"@enabled"`
}

type dataCenterInfo struct {
	Class string `json:"@class"`
	Name  string `json:"name"`
}

// Client talks to the Eureka REST API. A client built from a disabled
// config accepts every call and does nothing.
type Client struct {
	enabled  bool
	baseURL  string
	username string
	password string
	instance Instance
	http     *http.Client
	logger   *zap.Logger

	mu         sync.Mutex
	registered bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient builds a client for cfg.
func NewClient(cfg config.EurekaConfig, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		enabled:  cfg.Enabled,
		baseURL:  strings.TrimRight(cfg.ServerURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		instance: newInstance(cfg),
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func newInstance(cfg config.EurekaConfig) Instance {
	app := strings.ToUpper(cfg.AppName)
	home := fmt.Sprintf("http://%s:%d", cfg.InstanceHost, cfg.InstancePort)
	return Instance{
		InstanceID:       fmt.Sprintf("%s:%s:%d", cfg.InstanceHost, strings.ToLower(cfg.AppName), cfg.InstancePort),
		HostName:         cfg.InstanceHost,
		App:              app,
		IPAddr:           cfg.InstanceHost,
		VIPAddress:       strings.ToLower(cfg.AppName),
		SecureVIPAddress: strings.ToLower(cfg.AppName),
		Status:           "UP",
		Port:             portInfo{Port: cfg.InstancePort, Enabled: "true"},
		SecurePort:       portInfo{Port: 443, Enabled: "false"},
		HomePageURL:      home + "/",
		StatusPageURL:    home + "/actuator/info",
		HealthCheckURL:   home + "/actuator/health",
		DataCenterInfo:   dataCenterInfo{Class: defaultDataCenterClass, Name: "MyOwn"},
	}
}


// Registered reports whether the last Register succeeded and no Deregister
// followed.
func (c *Client) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// Register announces the instance. Registering twice is a no-op.
func (c *Client) Register(ctx context.Context) error {
	if !c.enabled {
		c.logger.Info("eureka registration is disabled")
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered {
		c.logger.Warn("already registered with eureka", zap.String("app", c.instance.App))
		return nil
	}
	if err := c.register(ctx); err != nil {
		return err
	}
	c.registered = true
	return nil
}

func (c *Client) register(ctx context.Context) error {
	c.logger.Info("registering with eureka",
		zap.String("app", c.instance.App),
		zap.String("server", c.baseURL),
		zap.String("host", c.instance.HostName),
		zap.Int("port", c.instance.Port.Port),
		zap.Bool("auth", c.hasAuth()),
	)
	body, err := json.Marshal(map[string]Instance{"instance": c.instance})
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}
	status, err := c.do(ctx, http.MethodPost, c.appURL(), body)
	if err != nil {
		return fmt.Errorf("eureka register: %w", err)
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return fmt.Errorf("eureka register: unexpected status %d", status)
	}
	c.logger.Info("registered with eureka", zap.String("instance", c.instance.InstanceID))
	return nil
}

// Heartbeat renews the lease. An instance that is not registered yet, or
// that the server forgot (404), is registered instead.
func (c *Client) Heartbeat(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registered {
		c.logger.Info("not registered with eureka, retrying registration")
		if err := c.register(ctx); err != nil {
			return err
		}
		c.registered = true
		return nil
	}

	status, err := c.do(ctx, http.MethodPut, c.instanceURL(), nil)
	if err != nil {
		return fmt.Errorf("eureka heartbeat: %w", err)
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		c.logger.Warn("eureka lost the instance, registering again", zap.String("instance", c.instance.InstanceID))
		return c.register(ctx)
	default:
		return fmt.Errorf("eureka heartbeat: unexpected status %d", status)
	}
}

// Deregister removes the instance. It is a no-op when not registered.
func (c *Client) Deregister(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registered {
		c.logger.Info("not registered with eureka")
		return nil
	}

	status, err := c.do(ctx, http.MethodDelete, c.instanceURL(), nil)
	if err != nil {
		return fmt.Errorf("eureka deregister: %w", err)
	}
	if status != http.StatusOK && status != http.StatusNoContent && status != http.StatusNotFound {
		return fmt.Errorf("eureka deregister: unexpected status %d", status)
	}
	c.registered = false
	c.logger.Info("deregistered from eureka", zap.String("instance", c.instance.InstanceID))
	return nil
}

func (c *Client) appURL() string {
	return c.baseURL + "/apps/" + c.instance.App
}

func (c *Client) instanceURL() string {
	return c.appURL() + "/" + c.instance.InstanceID
}

func (c *Client) hasAuth() bool {
	return c.username != "" && c.password != ""
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.hasAuth() {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
