package provision

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"provisioner/internal/account"
	"provisioner/internal/identity"
	"provisioner/internal/platform/kafka/consumer"
	"provisioner/internal/platform/metrics"
	"provisioner/internal/sentinel"
)

// Resolver fetches a full profile for an external identifier.
type Resolver interface {
	Resolve(ctx context.Context, externalID string) (*identity.Profile, error)
}

// DeadLetterer republishes failed events for later inspection. Publishing is
// best-effort; implementations must not return errors into the pipeline.
type DeadLetterer interface {
	Publish(ctx context.Context, msg *consumer.Message, stage, reason string)
}

// Handler drives one user.created event through decode → resolve → decide →
// insert. It implements consumer.Handler.
//
// Every failure is absorbed here: Handle always returns nil so that one
// malformed or unresolvable event can never stall or crash the loop. The
// loop state after a failed event equals the state before it, modulo logs.
type Handler struct {
	resolver Resolver
	store    account.Store
	dlq      DeadLetterer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates the per-event pipeline handler.
func NewHandler(resolver Resolver, store account.Store, dlq DeadLetterer, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		store:    store,
		dlq:      dlq,
		metrics:  m,
		logger:   logger,
	}
}

// Handle processes a single event. The message value is the bare external
// user identifier as a UTF-8 string, with no JSON envelope.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	h.countConsumed()

	log := h.logger.With(
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)

	if !utf8.Valid(msg.Value) {
		log.Warn("skipping non-UTF8 message value")
		h.countSkip("invalid_payload")
		return nil
	}

	externalID := strings.TrimSpace(string(msg.Value))
	if externalID == "" {
		log.Warn("skipping empty message value")
		h.countSkip("empty_payload")
		return nil
	}
	log = log.With("external_id", externalID)

	start := time.Now()
	profile, err := h.resolver.Resolve(ctx, externalID)
	h.observeResolve(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			log.Warn("user not found on identity service, skipping provisioning")
			h.countSkip("not_found")
		case errors.Is(err, sentinel.ErrAuth):
			log.Error("token exchange failed, skipping event", "error", err)
			h.fail(ctx, msg, "auth", err)
		default:
			log.Error("identity service call failed, skipping event", "error", err)
			h.fail(ctx, msg, "resolve", err)
		}
		return nil
	}

	existsBySub, err := h.exists(func() (*account.Account, error) {
		return h.store.FindByOAuthSub(ctx, profile.ExternalID)
	})
	if err != nil {
		log.Error("account lookup by oauth_sub failed, skipping event", "error", err)
		h.fail(ctx, msg, "store", err)
		return nil
	}
	existsByEmail := false
	if profile.Email != "" {
		existsByEmail, err = h.exists(func() (*account.Account, error) {
			return h.store.FindByEmail(ctx, strings.ToLower(profile.Email))
		})
		if err != nil {
			log.Error("account lookup by email failed, skipping event", "error", err)
			h.fail(ctx, msg, "store", err)
			return nil
		}
	}

	decision := Decide(profile, existsBySub, existsByEmail)
	if !decision.Proceed {
		log.Warn("skipping provisioning",
			"reason", string(decision.Reason),
			"oauth_sub", profile.ExternalID,
		)
		h.countSkip(string(decision.Reason))
		return nil
	}

	acct := account.Account{
		Email:           decision.EmailNormalized,
		Password:        decision.GeneratedPassword,
		Name:            profile.Name,
		ProfileImageURL: profile.ProfileImageURL,
		Role:            decision.Role,
		OAuthSub:        profile.ExternalID,
	}

	if _, err := h.store.Insert(ctx, acct); err != nil {
		// A concurrent writer won the check-then-insert race; the store's
		// uniqueness guard is authoritative, so this is a duplicate skip.
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			log.Warn("account already exists, skipping provisioning",
				"reason", string(SkipDuplicate),
				"oauth_sub", profile.ExternalID,
			)
			h.countSkip(string(SkipDuplicate))
			return nil
		}
		log.Error("failed to insert account, event dropped", "error", err)
		h.fail(ctx, msg, "store", err)
		return nil
	}

	log.Info("provisioned user",
		"oauth_sub", profile.ExternalID,
		"email", decision.EmailNormalized,
		"role", string(decision.Role),
	)
	h.countProvisioned()
	return nil
}

// exists translates a store lookup into a boolean, keeping ErrNotFound out
// of the failure path.
func (h *Handler) exists(lookup func() (*account.Account, error)) (bool, error) {
	_, err := lookup()
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// fail records a scoped per-event failure and hands the event to the
// dead-letter channel. Nothing propagates upward.
func (h *Handler) fail(ctx context.Context, msg *consumer.Message, stage string, err error) {
	if h.metrics != nil {
		h.metrics.IncrementEventsFailed(stage)
	}
	if h.dlq != nil {
		h.dlq.Publish(ctx, msg, stage, err.Error())
	}
}

func (h *Handler) countConsumed() {
	if h.metrics != nil {
		h.metrics.IncrementEventsConsumed()
	}
}

func (h *Handler) countSkip(reason string) {
	if h.metrics != nil {
		h.metrics.IncrementEventsSkipped(reason)
	}
}

func (h *Handler) countProvisioned() {
	if h.metrics != nil {
		h.metrics.IncrementUsersProvisioned()
	}
}

func (h *Handler) observeResolve(seconds float64) {
	if h.metrics != nil {
		h.metrics.ObserveResolveLatency(seconds)
	}
}
