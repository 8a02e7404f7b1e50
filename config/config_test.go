package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spectrum-network/spectrum/peer"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.validate())
}

func TestThresholdComputesFraction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThresholdNum, cfg.ThresholdDenom = 2, 3
	require.InDelta(t, 2.0/3.0, cfg.Threshold(), 1e-9)
}

func TestAllocationPoliciesParsesEachKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProtocolsAllocation = []string{"0:max", "1:bounded:50", "2:zero"}

	policies, err := cfg.AllocationPolicies()
	require.NoError(t, err)
	require.Len(t, policies, 3)

	require.Equal(t, peer.Max, policies[0].Kind)
	require.Equal(t, peer.Bounded, policies[1].Kind)
	require.Equal(t, 50, policies[1].Pct)
	require.Equal(t, peer.Zero, policies[2].Kind)
}

func TestAllocationPoliciesRejectsMalformedEntries(t *testing.T) {
	cfg := DefaultConfig()

	cfg.ProtocolsAllocation = []string{"notanumber:max"}
	_, err := cfg.AllocationPolicies()
	require.Error(t, err)

	cfg.ProtocolsAllocation = []string{"0:bounded"} // missing pct
	_, err = cfg.AllocationPolicies()
	require.Error(t, err)

	cfg.ProtocolsAllocation = []string{"0:unknown"}
	_, err = cfg.AllocationPolicies()
	require.Error(t, err)
}

func TestPeerManagerConfigProjectsFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProtocolsAllocation = []string{"0:max"}

	pmCfg, err := cfg.PeerManagerConfig()
	require.NoError(t, err)
	require.Equal(t, cfg.MinOutbound, pmCfg.MinOutbound)
	require.Equal(t, cfg.MaxInbound, pmCfg.MaxInbound)
	require.Len(t, pmCfg.ProtocolsAllocation, 1)
}

func TestValidateRejectsInvertedOutboundBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinOutbound = cfg.MaxOutbound + 1
	require.Error(t, cfg.validate())
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThresholdNum = cfg.ThresholdDenom + 1
	require.Error(t, cfg.validate())
}
