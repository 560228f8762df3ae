package carrier

import (
	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
)

// Resolver hands out the configured client for a provider. Clients are
// built once at startup; a provider with no credentials still resolves,
// and its first call fails with an authentication error the services
// know how to degrade on.
type Resolver struct {
	clients map[number.ProviderType]Client
}

// NewResolver builds clients for every supported provider.
func NewResolver(twilio TwilioConfig, telnyx TelnyxConfig) *Resolver {
	return &Resolver{clients: map[number.ProviderType]Client{
		number.ProviderTwilio: NewTwilioClient(twilio),
		number.ProviderTelnyx: NewTelnyxClient(telnyx),
	}}
}

// ClientFor returns the client for a provider.
func (r *Resolver) ClientFor(provider number.ProviderType) (Client, error) {
	client, ok := r.clients[provider]
	if !ok {
		return nil, errors.NewValidationError("UNKNOWN_PROVIDER", "no client configured for provider "+provider.String())
	}
	return client, nil
}
