package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tradedesk/internal/market"
	"tradedesk/internal/portfolio"
)

var (
	ErrNotConnected       = errors.New("broker not connected")
	ErrMissingCredentials = errors.New("missing broker credentials")
	ErrRejected           = errors.New("order rejected by broker")

	// ErrUnconfirmed accompanies ErrRejected when the broker did not answer
	// in time. The order may still have been placed.
	ErrUnconfirmed = errors.New("order outcome unconfirmed")
)

type Environment string

const (
	Demo Environment = "DEMO"
	Live Environment = "LIVE"
)

func ParseEnvironment(value string) (Environment, error) {
	switch Environment(strings.ToUpper(strings.TrimSpace(value))) {
	case Demo, "":
		return Demo, nil
	case Live:
		return Live, nil
	default:
		return "", fmt.Errorf("unknown broker environment: %q", value)
	}
}

// Credentials authenticate a broker session. Adapters that use a key pair
// take the secret from Password.
type Credentials struct {
	APIKey      string
	Username    string
	Password    string
	Environment Environment
	AccountID   string
}

func (c Credentials) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "api key")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

type Order struct {
	Symbol        string
	Side          portfolio.Side
	Size          float64
	Class         market.AssetClass
	ClientOrderID string
}

// Broker forwards fills to an external venue. Submit must return within the
// adapter's own timeout; callers do not bound it further.
type Broker interface {
	Name() string
	Connect(ctx context.Context, creds Credentials) error
	Submit(ctx context.Context, order Order) error
	Disconnect()
	Connected() bool
}
