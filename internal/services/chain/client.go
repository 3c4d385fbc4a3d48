package chain

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"gatepass/utils"
)

type ClientConfig struct {
	BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
	PartnerID string `json:"partnerId" mapstructure:"partner_id"`
	ClientID  string `json:"clientId" mapstructure:"client_id"`
	ClientKey string `json:"clientKey" mapstructure:"client_key"`
	HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`
}

type client struct {
	// baseURL is the base url of the chain gateway.
	baseURL string

	// partnerID identifies this deployment to the gateway.
	partnerID string

	// clientID is the api client id of the gateway.
	clientID string

	// clientKey is the api client key of the gateway.
	clientKey string

	// hmacKey signs request digests for the gateway.
	hmacKey string

	// accessToken is used to authenticate with the gateway.
	accessToken string

	// mu is used to lock access token.
	mu sync.Mutex

	// toggleTokenRefresher is used to notify token refresher to refresh token.
	toggleTokenRefresher chan struct{}

	// cb trips when the gateway keeps failing, so escrow submissions fail
	// fast instead of piling onto a dead endpoint.
	cb *utils.CircuitBreaker

	// hc is the http client.
	hc *http.Client
}

func newClient(_ context.Context, c *ClientConfig) *client {
	return &client{
		baseURL:   c.BaseURL,
		partnerID: c.PartnerID,
		clientID:  c.ClientID,
		clientKey: c.ClientKey,
		hmacKey:   c.HMACKey,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		cb: utils.NewCircuitBreaker("chain-gateway"),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// connect obtains an access token from the gateway.
func (c *client) connect(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"client_id":  c.clientID,
		"client_key": c.clientKey,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/token.service", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("partnerId", c.partnerID)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("chain gateway connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chain gateway connect: status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("chain gateway connect: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("chain gateway connect: empty access token")
	}
	return out.AccessToken, nil
}

// notifyAccessTokenExpired do infinite loop with period of time
// to perform auto renew token from the gateway with
// exponential backOff strategy.
func (c *client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		// reconnect with exponential backOff strategy
		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

// setAccessToken set access token to client.
func (c *client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

// getAccessToken get access token from client.
func (c *client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// post sends a signed JSON request through the circuit breaker and decodes
// the response into out.
func (c *client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	reqID, _ := utils.GenerateCode(8)

	_, err = c.cb.Execute(ctx, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, body, reqID)

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("chain gateway %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			// nudge the refresher; the caller retries later.
			select {
			case c.toggleTokenRefresher <- struct{}{}:
			default:
			}
			return nil, fmt.Errorf("chain gateway %s: unauthorized", path)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("chain gateway %s: status %d", path, resp.StatusCode)
		}

		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}

// setHeaders attaches the gateway's auth and request-signature headers. The
// signature covers the body digest, request target, created time, and the
// client transaction id.
func (c *client) setHeaders(req *http.Request, body []byte, reqID string) {
	now := time.Now()
	nowUnix := now.Unix()

	req.Header.Set("Authorization", c.getAccessToken())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("partnerId", c.partnerID)
	req.Header.Set("X-Client-Transaction-ID", reqID)
	req.Header.Set("X-Client-Transaction-Datetime", now.Format("2006-01-02T15:04:05.999+0700"))

	hash := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	signature := fmt.Sprintf("digest: %s\n(request-target): %s %s\n(created): %d\nx-client-transaction-id: %s",
		digest, strings.ToLower(req.Method), req.URL.Path, nowUnix, reqID)
	signature = base64.StdEncoding.EncodeToString(hmac256([]byte(c.hmacKey), []byte(signature)))
	signature = fmt.Sprintf(`keyId="%s",algorithm="hs2019",created=%d,expires=%d,headers="digest (request-target) (created) x-client-transaction-id",signature="%s"`,
		c.clientID, nowUnix, nowUnix, signature)

	req.Header.Set("Digest", digest)
	req.Header.Set("Signature", signature)
}

func hmac256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
