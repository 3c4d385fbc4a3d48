package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"

	"gatepass/internal/status"
)

type Config struct {
	BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
	PartnerID string `json:"partnerId" mapstructure:"partner_id"`
	ClientID  string `json:"clientId" mapstructure:"client_id"`
	ClientKey string `json:"clientKey" mapstructure:"client_key"`
	HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`

	PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
	PNSubSecret string `json:"pn_subsecret" mapstructure:"pn_subsecret"`
	PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
	PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
	PNCipherKey string `json:"pn_cipherKey" mapstructure:"pn_cipherkey"`
}

// Gateway talks to the escrow chain gateway over signed HTTP and receives
// asynchronous release confirmations over the gateway's PubNub channel.
type Gateway struct {
	client *client

	pnChannels []string
	sub        *subscribe
}

// New connects to the gateway, starts the token refresher, and subscribes to
// the confirmation channel.
func New(ctx context.Context, cfg *Config) (*Gateway, error) {
	cl := newClient(ctx, &ClientConfig{
		BaseURL:   cfg.BaseURL,
		PartnerID: cfg.PartnerID,
		ClientID:  cfg.ClientID,
		ClientKey: cfg.ClientKey,
		HMACKey:   cfg.HMACKey,
	})

	// Connect to the gateway. Get access token.
	token, err := cl.connect(ctx)
	if err != nil {
		return nil, err
	}
	cl.setAccessToken(token)

	// Notify access token expired.
	go cl.notifyAccessTokenExpired(ctx)

	g := &Gateway{
		client:     cl,
		pnChannels: []string{cfg.PNChannel},
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PNUUID))
	pnCfg.SubscribeKey = cfg.PNSubKey
	pnCfg.CipherKey = cfg.PNCipherKey
	pnCfg.SecretKey = cfg.PNSubSecret

	sub, err := g.newSubscription(ctx, pnCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to chain confirmation channel: %v", err)
	}

	sub.pn.AddListener(sub.lis)
	sub.pn.Subscribe().Channels(g.pnChannels).Execute()
	g.sub = sub

	return g, nil
}

func (g *Gateway) CreateAgreement(ctx context.Context, req *AgreementRequest) (*AgreementResult, error) {
	var res AgreementResult
	if err := g.client.post(ctx, "/v1/escrow/agreements.service", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (g *Gateway) ReleasePayments(ctx context.Context, req *ReleaseRequest) (*ReleaseResult, error) {
	var res ReleaseResult
	if err := g.client.post(ctx, "/v1/escrow/release.service", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (g *Gateway) SetConfirmationChannel(ch chan *status.Confirmation) {
	g.sub.setChannel(ch)
}

func (g *Gateway) Close(_ context.Context) error {
	if g.sub != nil {
		g.sub.pn.Unsubscribe().Channels(g.pnChannels).Execute()
	}
	return nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener

	// mu guards ch: the channel is attached after the subscription loop is
	// already consuming the listener.
	mu sync.Mutex
	ch chan *status.Confirmation
}

func (s *subscribe) setChannel(ch chan *status.Confirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = ch
}

func (s *subscribe) channel() chan *status.Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (g *Gateway) newSubscription(ctx context.Context, pnCfg *pubnub.Config) (*subscribe, error) {
	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}

	go sub.processSubscription(ctx)

	return sub, nil
}

func (s *subscribe) processSubscription(ctx context.Context) error {
	listener := s.lis
	for {
		select {
		case st := <-listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to chain confirmation channel")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to chain confirmation channel")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from chain confirmation channel")

			default:
				log.Printf("chain confirmation channel status: %v", st.Category)
			}

		case message := <-listener.Message:
			raw, ok := message.Message.(string)
			if !ok {
				log.Printf("chain confirmation: unexpected message type %T", message.Message)
				continue
			}

			var p confirmationPayload
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			conf, err := p.ToDomain()
			if err != nil {
				log.Println(err)
				continue
			}
			if ch := s.channel(); ch != nil {
				ch <- conf
			}

		case <-ctx.Done():
			log.Println("close chain confirmation subscription")
			return nil
		}
	}
}

type confirmationPayload struct {
	AgreementID string          `json:"agreementId"`
	ContractRef string          `json:"contractRef"`
	TxRef       string          `json:"txRef"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ConfirmedAt string          `json:"confirmedAt"`
}

func (p *confirmationPayload) ToDomain() (*status.Confirmation, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.ConfirmedAt, time.Local)
	if err != nil {
		return nil, err
	}

	return &status.Confirmation{
		AgreementID: p.AgreementID,
		ContractRef: p.ContractRef,
		TxRef:       p.TxRef,
		Amount:      p.Amount,
		Currency:    p.Currency,
		ConfirmedAt: ts,
	}, nil
}
