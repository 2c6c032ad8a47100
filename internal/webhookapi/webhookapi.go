// Package webhookapi implements the Webhook CRUD operations of spec.md
// §4.K: create, list, get, soft-delete, all tenant-scoped, with the
// create-time URL guard and one-time plaintext secret exposure.
package webhookapi

import (
	"context"

	"github.com/google/uuid"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/internal/store"
	"github.com/R3E-Network/automation-core/internal/urlguard"
	"github.com/R3E-Network/automation-core/pkg/secretutil"
)

func newID() string { return uuid.NewString() }

// Service implements the CRUD + URL guard of spec.md §4.K.
type Service struct {
	store     store.WebhookStore
	guard     *urlguard.Guard
	masterKey []byte
}

// New constructs a webhook CRUD Service.
func New(store store.WebhookStore, guard *urlguard.Guard, masterKey []byte) *Service {
	return &Service{store: store, guard: guard, masterKey: masterKey}
}

// CreateInput is the operator-supplied half of a webhook registration.
type CreateInput struct {
	TenantID string
	URL      string
	Events   []string
	FormID   *string
}

// Created is returned only from Create: it is the only moment the plaintext
// secret is ever exposed, per spec.md §4.K "create returns it once".
type Created struct {
	*domain.InboundWebhook
	Secret string `json:"secret"`
}

// Create validates the URL, generates a secret, encrypts it at rest, and
// persists the webhook.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Created, error) {
	if err := s.guard.Check(in.URL); err != nil {
		return nil, err
	}
	if len(in.Events) == 0 {
		return nil, apperr.New(apperr.KindValidation, "webhook must subscribe to at least one event type")
	}

	secret, err := secretutil.GenerateSecret()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "generate webhook secret", err)
	}

	webhook := &domain.InboundWebhook{
		ID:           newID(),
		TenantID:     in.TenantID,
		URL:          in.URL,
		Events:       in.Events,
		FormID:       in.FormID,
		Status:       domain.WebhookActive,
		HealthStatus: domain.HealthUnknown,
	}

	ciphertext, err := secretutil.Encrypt(s.masterKey, []byte(webhook.ID), "webhook-secret", []byte(secret))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "encrypt webhook secret", err)
	}
	webhook.SecretCiphertext = ciphertext

	if err := s.store.Create(ctx, webhook); err != nil {
		return nil, err
	}
	return &Created{InboundWebhook: webhook, Secret: secret}, nil
}

// Get implements spec.md §4.K's get(id, tenant): tenant scoping enforced
// here since the store's Get is keyed by id alone.
func (s *Service) Get(ctx context.Context, id, tenantID string) (*domain.InboundWebhook, error) {
	webhook, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if webhook.TenantID != tenantID {
		return nil, apperr.New(apperr.KindNotFound, "webhook not found")
	}
	return webhook, nil
}

// List implements spec.md §4.K's list(tenant, filters). Filtering beyond
// tenant scoping is left to the caller (HTTP query params), since the store
// port's List already narrows to one tenant.
func (s *Service) List(ctx context.Context, tenantID string) ([]*domain.InboundWebhook, error) {
	return s.store.List(ctx, tenantID)
}

// Delete implements spec.md §4.K's delete(id, tenant) (soft).
func (s *Service) Delete(ctx context.Context, id, tenantID string) error {
	return s.store.SoftDelete(ctx, id, tenantID)
}

// DecryptSecret recovers a webhook's plaintext secret for inbound signature
// verification and outbound delivery signing.
func (s *Service) DecryptSecret(webhook *domain.InboundWebhook) (string, error) {
	plaintext, err := secretutil.Decrypt(s.masterKey, []byte(webhook.ID), "webhook-secret", webhook.SecretCiphertext)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "decrypt webhook secret", err)
	}
	return string(plaintext), nil
}
