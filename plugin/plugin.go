// Package plugin is the entry point of the WebRTC bridge: the host hands its
// façade to Load, which validates compatibility, creates the core context
// and registers the server-side callbacks. One host process may load several
// bridge instances; the registry tracks them until unload.
package plugin

import (
	"github.com/Masterminds/semver/v3"

	"github.com/pomelo-net/webrtc-plugin/bridge"
	"github.com/pomelo-net/webrtc-plugin/config"
	"github.com/pomelo-net/webrtc-plugin/errors"
	"github.com/pomelo-net/webrtc-plugin/host"
	"github.com/pomelo-net/webrtc-plugin/logger"
)

// Version is the bridge plugin version.
const Version = "1.2.0"

// HostVersionConstraint is the range of host façade versions this plugin
// can serve.
const HostVersionConstraint = ">= 1.0.0, < 2.0.0"

// validateHostVersion checks the host façade version against the plugin's
// constraint. An empty version is accepted for development hosts.
func validateHostVersion(version string) error {
	if version == "" {
		return nil
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrapf(err, "invalid host version %q", version)
	}

	constraint, err := semver.NewConstraint(HostVersionConstraint)
	if err != nil {
		return errors.Wrap(err, "invalid host version constraint")
	}
	if !constraint.Check(v) {
		return errors.Newf("host version %s outside supported range %s",
			version, HostVersionConstraint)
	}
	return nil
}

// Load is the plugin entry: validate the host, create the core and register
// callbacks. The returned context is also stored in the instance registry.
func Load(hostPlugin host.Plugin, cfg *config.Config) (*bridge.Context, error) {
	if hostPlugin == nil {
		return nil, errors.New("plugin: host façade is required")
	}
	if err := validateHostVersion(hostPlugin.Version()); err != nil {
		return nil, err
	}

	ctx, err := bridge.NewContext(hostPlugin, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bridge context")
	}

	id := defaultRegistry.register(ctx)
	logger.Logger.Infow("webrtc bridge loaded",
		"instance", id, "version", Version, "host_version", hostPlugin.Version())
	return ctx, nil
}

// Unload destroys a loaded bridge instance and removes it from the
// registry. Removing a context that was never registered is a no-op; the
// context is destroyed in either case.
func Unload(ctx *bridge.Context) {
	if ctx == nil {
		return
	}
	defaultRegistry.deregister(ctx)
	ctx.Destroy()
}
