package handlers

import (
	"github.com/pagegate-org/pagegate/internal/config"
	"github.com/pagegate-org/pagegate/internal/gate"
	"github.com/pagegate-org/pagegate/internal/relay"
	"github.com/pagegate-org/pagegate/internal/rewrite"
	"github.com/sirupsen/logrus"
)

// GatewayHandler holds the wired components behind the HTTP surface.
type GatewayHandler struct {
	cfg     *config.Config
	gate    *gate.Gate
	content *rewrite.ContentEngine
	scripts *rewrite.ScriptEngine
	relay   *relay.Relay
	log     *logrus.Entry
}

func NewGatewayHandler(logger *logrus.Logger, cfg *config.Config, g *gate.Gate, content *rewrite.ContentEngine, scripts *rewrite.ScriptEngine, assetRelay *relay.Relay) *GatewayHandler {
	return &GatewayHandler{
		cfg:     cfg,
		gate:    g,
		content: content,
		scripts: scripts,
		relay:   assetRelay,
		log:     logger.WithField("component", "gateway_handler"),
	}
}
