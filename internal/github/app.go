package github

import (
	"fmt"
)

// AppCredentials holds GitHub App credentials for installation token minting.
type AppCredentials struct {
	AppID          string
	InstallationID int64
	PrivateKey     []byte
}

// MintInstallationToken generates an App JWT and exchanges it for an
// installation access token. The action processes a single event per run,
// well inside the one-hour token lifetime, so no refresh tracking is needed.
func MintInstallationToken(creds AppCredentials, opts ...TokenExchangerOption) (*InstallationToken, error) {
	jwtGen, err := NewJWTGenerator(creds.AppID, creds.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT generator: %w", err)
	}

	jwt, err := jwtGen.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}

	exchanger := NewTokenExchanger(opts...)
	token, err := exchanger.ExchangeToken(jwt, creds.InstallationID)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	return token, nil
}
