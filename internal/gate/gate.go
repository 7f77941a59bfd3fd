// Package gate implements the interactive password step: rate-limited
// verification, audit logging and access-token issuance.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pagegate-org/pagegate/internal/faults"
	"github.com/pagegate-org/pagegate/internal/models"
	"github.com/pagegate-org/pagegate/internal/resources"
	"github.com/pagegate-org/pagegate/internal/store"
	"github.com/pagegate-org/pagegate/internal/token"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AttemptLimiter is the failed-attempt counter contract; satisfied by
// ratelimit.Limiter in production and by fakes in tests.
type AttemptLimiter interface {
	Check(ctx context.Context, fingerprint, slug string) error
	RecordFailure(ctx context.Context, fingerprint, slug string) error
	Clear(ctx context.Context, fingerprint, slug string) error
}

type Grant struct {
	AccessToken    string `json:"accessToken"`
	RedirectTarget string `json:"redirectTarget"`
}

type PublicInfo struct {
	Title string `json:"title"`
}

type Gate struct {
	resources       *resources.Cache
	resourceStore   store.ResourceStore
	audit           store.AuditSink
	limiter         AttemptLimiter
	tokens          *token.Manager
	fingerprintSalt string
	log             *logrus.Entry
}

func New(logger *logrus.Logger, res *resources.Cache, rs store.ResourceStore, audit store.AuditSink, limiter AttemptLimiter, tokens *token.Manager, fingerprintSalt string) *Gate {
	return &Gate{
		resources:       res,
		resourceStore:   rs,
		audit:           audit,
		limiter:         limiter,
		tokens:          tokens,
		fingerprintSalt: fingerprintSalt,
		log:             logger.WithField("component", "access_gate"),
	}
}

// Verify runs the password check for one slug. The limiter is consulted
// before any credential comparison so an exhausted client costs neither a
// bcrypt run nor a timing signal. The returned error never distinguishes
// an unknown slug from a wrong password.
func (g *Gate) Verify(ctx context.Context, slug, password, fingerprint string) (*Grant, error) {
	log := g.log.WithField("slug", slug)

	resource, err := g.resources.Get(ctx, slug)
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			return nil, faults.ErrInvalidCredential
		}
		return nil, err
	}

	if err := g.limiter.Check(ctx, fingerprint, slug); err != nil {
		log.Info("Attempt rejected by limiter")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(resource.CredentialHash), []byte(password)); err != nil {
		if recErr := g.limiter.RecordFailure(ctx, fingerprint, slug); recErr != nil {
			log.WithError(recErr).Warn("Failed to record failed attempt")
		}
		g.appendAttempt(ctx, resource.ID, fingerprint, false)
		return nil, faults.ErrInvalidCredential
	}

	if err := g.limiter.Clear(ctx, fingerprint, slug); err != nil {
		log.WithError(err).Warn("Failed to clear attempt counter")
	}
	g.appendAttempt(ctx, resource.ID, fingerprint, true)

	// Off the critical path; exact counts are not guaranteed.
	go func(id uint) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.resourceStore.IncrementVisits(ctx, id); err != nil {
			log.WithError(err).Warn("Failed to increment visit count")
		}
	}(resource.ID)

	accessToken, err := g.tokens.Mint(resource.ID, resource.Slug)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}

	return &Grant{
		AccessToken:    accessToken,
		RedirectTarget: "/view/" + resource.Slug,
	}, nil
}

// PublicInfo returns the little that is safe to show on the password
// prompt.
func (g *Gate) PublicInfo(ctx context.Context, slug string) (*PublicInfo, error) {
	resource, err := g.resources.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &PublicInfo{Title: resource.Title}, nil
}

func (g *Gate) appendAttempt(ctx context.Context, resourceID uint, fingerprint string, succeeded bool) {
	attempt := &models.AccessAttempt{
		ResourceID:      resourceID,
		FingerprintHash: g.hashFingerprint(fingerprint),
		Succeeded:       succeeded,
		Timestamp:       time.Now(),
	}
	if err := g.audit.AppendAttempt(ctx, attempt); err != nil {
		g.log.WithError(err).Warn("Failed to append access attempt")
	}
}

func (g *Gate) hashFingerprint(fingerprint string) string {
	sum := sha256.Sum256([]byte(g.fingerprintSalt + fingerprint))
	return hex.EncodeToString(sum[:])
}
