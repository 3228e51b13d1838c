// Package ethapi exposes a development node over JSON-RPC.
//
// The services follow the namespaces tooling expects from a local node:
// anvil_* and evm_* for chain manipulation, trace_callMany, debug_storageRangeAt
// and a subset of eth_*. Every error a service returns is an *inter.Error, so
// clients receive a stable error code.
package ethapi

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rony4d/go-opera-devnode/integration"
)

const (
	// ClientIdentifier names the node in web3_clientVersion.
	ClientIdentifier = "opera-devnode"
	// Version is the node version.
	Version = "0.1.0"
)

// GetAPIs returns the RPC services of a node.
func GetAPIs(n *integration.Node) []rpc.API {
	return []rpc.API{
		{
			Namespace: "eth",
			Version:   "1.0",
			Service:   NewPublicEthAPI(n),
			Public:    true,
		}, {
			Namespace: "anvil",
			Version:   "1.0",
			Service:   NewAnvilAPI(n),
			Public:    true,
		}, {
			Namespace: "evm",
			Version:   "1.0",
			Service:   NewEvmAPI(n),
			Public:    true,
		}, {
			Namespace: "trace",
			Version:   "1.0",
			Service:   NewTraceAPI(n),
			Public:    true,
		}, {
			Namespace: "debug",
			Version:   "1.0",
			Service:   NewDebugAPI(n),
			Public:    true,
		}, {
			Namespace: "net",
			Version:   "1.0",
			Service:   NewPublicNetAPI(n),
			Public:    true,
		}, {
			Namespace: "web3",
			Version:   "1.0",
			Service:   NewPublicWeb3API(),
			Public:    true,
		},
	}
}

// NewServer registers the services of the given namespaces on a new RPC
// server. An empty list registers every namespace.
func NewServer(n *integration.Node, namespaces []string) (*rpc.Server, error) {
	allowed := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		allowed[ns] = true
	}
	srv := rpc.NewServer()
	for _, api := range GetAPIs(n) {
		if len(allowed) != 0 && !allowed[api.Namespace] {
			continue
		}
		if err := srv.RegisterName(api.Namespace, api.Service); err != nil {
			srv.Stop()
			return nil, err
		}
		log.Debug("Registered RPC service", "namespace", api.Namespace)
	}
	return srv, nil
}
