// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package precompileconfig defines the upgrade configuration interface
// shared by all stateful precompiles.
package precompileconfig

// Config is the interface each precompile's upgrade configuration
// implements. Configs are compared when validating upgrade files.
type Config interface {
	// Key returns the json key used to specify this config.
	Key() string
	// Timestamp returns the activation time, or nil if never active.
	Timestamp() *uint64
	// IsDisabled reports whether this upgrade deactivates the precompile.
	IsDisabled() bool
	Equal(Config) bool
	Verify(ChainConfig) error
}

// ChainConfig exposes the chain-level facts a precompile config may need
// to verify itself against.
type ChainConfig interface {
	IsDurango(time uint64) bool
}

// Upgrade is the embeddable activation block common to all precompile
// configs.
type Upgrade struct {
	BlockTimestamp *uint64 `json:"blockTimestamp"`
	Disable        bool    `json:"disable,omitempty"`
}

func (u *Upgrade) Timestamp() *uint64 {
	return u.BlockTimestamp
}

func (u *Upgrade) Equal(other *Upgrade) bool {
	if other == nil {
		return false
	}
	if u.Disable != other.Disable {
		return false
	}
	if (u.BlockTimestamp == nil) != (other.BlockTimestamp == nil) {
		return false
	}
	return u.BlockTimestamp == nil || *u.BlockTimestamp == *other.BlockTimestamp
}
