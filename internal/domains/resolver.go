// Package domains maps verified custom hostnames onto protected-resource
// slugs before any gating runs.
package domains

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/pagegate-org/pagegate/internal/faults"
	"github.com/pagegate-org/pagegate/internal/store"
	"github.com/sirupsen/logrus"
)

type Resolver struct {
	bindings       store.DomainStore
	resources      store.ResourceStore
	canonicalHosts map[string]struct{}
	log            *logrus.Entry
}

func NewResolver(logger *logrus.Logger, bindings store.DomainStore, resources store.ResourceStore, canonicalHosts []string) *Resolver {
	canonical := make(map[string]struct{}, len(canonicalHosts))
	for _, host := range canonicalHosts {
		canonical[strings.ToLower(host)] = struct{}{}
	}
	return &Resolver{
		bindings:       bindings,
		resources:      resources,
		canonicalHosts: canonical,
		log:            logger.WithField("component", "domain_resolver"),
	}
}

// Resolve maps a hostname to a slug. Only verified bindings resolve;
// anything else is a pass-through signalled by ErrNotFound. The lookup has
// no side effects and performs no gating.
func (r *Resolver) Resolve(ctx context.Context, hostname string) (string, error) {
	binding, err := r.bindings.GetByHostname(ctx, strings.ToLower(hostname))
	if err != nil {
		return "", err
	}
	if !binding.Verified {
		return "", faults.ErrNotFound
	}

	resource, err := r.resources.GetByID(ctx, binding.ResourceID)
	if err != nil {
		return "", err
	}
	return resource.Slug, nil
}

// Middleware rewrites requests arriving on a non-canonical verified
// hostname to the bound slug's render route. Unbound or unverified hosts
// fall through untouched.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		host := requestHost(req)
		if _, ok := r.canonicalHosts[host]; ok || host == "" {
			next.ServeHTTP(w, req)
			return
		}

		slug, err := r.Resolve(req.Context(), host)
		if err != nil {
			if !errors.Is(err, faults.ErrNotFound) {
				r.log.WithError(err).WithField("host", host).Warn("Domain resolution failed")
			}
			next.ServeHTTP(w, req)
			return
		}

		if req.URL.Path == "/" || req.URL.Path == "" {
			req.URL.Path = "/view/" + slug
		}
		next.ServeHTTP(w, req)
	})
}

func requestHost(req *http.Request) string {
	host := req.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}
