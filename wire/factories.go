package wire

import "fmt"

// DiscoveryFactory dispatches on MessageType within the discovery
// protocol's namespace, mirroring lnwire.makeEmptyMessage.
func DiscoveryFactory(t MessageType) (Message, error) {
	switch t {
	case MsgGetPeers:
		return &GetPeers{}, nil
	case MsgPeers:
		return &Peers{}, nil
	default:
		return nil, fmt.Errorf("wire: unknown discovery message type %d", t)
	}
}

// DiffusionFactory dispatches on MessageType within the diffusion
// protocol's namespace.
func DiffusionFactory(t MessageType) (Message, error) {
	switch t {
	case MsgSyncStatus:
		return &SyncStatus{}, nil
	case MsgGetModifiers:
		return &GetModifiers{}, nil
	case MsgModifiers:
		return &Modifiers{}, nil
	case MsgBlockRequest:
		return &BlockRequest{}, nil
	case MsgBlockResponse:
		return &BlockResponse{}, nil
	default:
		return nil, fmt.Errorf("wire: unknown diffusion message type %d", t)
	}
}

// AggregationFactory dispatches on MessageType within the aggregation
// protocol's namespace.
func AggregationFactory(t MessageType) (Message, error) {
	switch t {
	case MsgAggRequest:
		return &Request{}, nil
	case MsgAggResponse:
		return &Response{}, nil
	default:
		return nil, fmt.Errorf("wire: unknown aggregation message type %d", t)
	}
}

// MulticastFactory dispatches on MessageType within the multicast
// protocol's namespace.
func MulticastFactory(t MessageType) (Message, error) {
	switch t {
	case MsgStatement:
		return &Statement{}, nil
	case MsgStatementAck:
		return &StatementAck{}, nil
	default:
		return nil, fmt.Errorf("wire: unknown multicast message type %d", t)
	}
}
