package client

import (
	"context"

	"github.com/accordlabs/accord/lib/syncmgr"
	"github.com/accordlabs/accord/remote/codec"
	"github.com/accordlabs/accord/remote/common"
	"github.com/accordlabs/accord/remote/transport"
	"github.com/google/uuid"
)

// NewEndpoint creates a new remote endpoint
// The function takes a config, a transport and a codec as parameters
// It returns an Endpoint and an error
func NewEndpoint(
	config common.ClientConfig,
	transport transport.ClientTransport,
	codec codec.Codec,
) (*Endpoint, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	// Create the endpoint
	return &Endpoint{
		config:    config,
		transport: transport,
		codec:     codec,
	}, nil
}

// Endpoint ships change batches to a remote sync server. It implements the
// syncmgr.Transport interface.
type Endpoint struct {
	config    common.ClientConfig
	transport transport.ClientTransport
	codec     codec.Codec
}

var _ syncmgr.Transport = (*Endpoint)(nil)

// --------------------------------------------------------------------------
// Interface Methods (docu see syncmgr.Transport)
// --------------------------------------------------------------------------

func (e *Endpoint) SendBatch(ctx context.Context, batch []syncmgr.Change) (syncmgr.BatchResult, error) {
	req := common.NewSyncRequest(uuid.NewString(), common.WireChanges(batch))
	resp, err := invoke(ctx, req, e.transport, e.codec)
	if err != nil {
		return syncmgr.BatchResult{}, err
	}
	return resp.BatchResult(), nil
}

// --------------------------------------------------------------------------
// Additional Methods
// --------------------------------------------------------------------------

// Ping checks whether the remote server answers.
func (e *Endpoint) Ping(ctx context.Context) error {
	_, err := invoke(ctx, common.NewPingRequest(), e.transport, e.codec)
	return err
}

// Get reads one entry from the remote server. The boolean indicates whether
// the key exists there.
func (e *Endpoint) Get(ctx context.Context, key string) (common.WireChange, bool, error) {
	resp, err := invoke(ctx, common.NewGetRequest(key), e.transport, e.codec)
	if err != nil {
		return common.WireChange{}, false, err
	}
	if len(resp.Changes) == 0 {
		return common.WireChange{}, false, nil
	}
	return resp.Changes[0], true, nil
}

// Close closes the underlying transport connection.
func (e *Endpoint) Close() error {
	return e.transport.Close()
}
