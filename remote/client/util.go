package client

import (
	"context"
	"fmt"

	"github.com/accordlabs/accord/remote/codec"
	"github.com/accordlabs/accord/remote/common"
	"github.com/accordlabs/accord/remote/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("remote")
)

// invoke is a helper function used to send one request over the transport
// It takes a request message, a transport layer and a codec as parameters
// It returns the response message and an error if any occurs
// This method also checks if the response is an error response and if the type of the response is the expected type
func invoke(ctx context.Context, req *common.Message, transport transport.ClientTransport, c codec.Codec) (*common.Message, error) {
	// The transport layer handles its own timeouts, a cancelled context
	// only stops new requests from going out
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Encode the request
	reqBytes, err := c.Encode(req)
	if err != nil {
		return nil, err
	}

	// Ship it
	respBytes, err := transport.Send(reqBytes)
	if err != nil {
		return nil, err
	}

	// Decode the response
	resp := &common.Message{}
	if err := c.Decode(respBytes, resp); err != nil {
		return nil, fmt.Errorf("remote endpoint - error: %s", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, fmt.Errorf("remote endpoint - error: %s", resp.Err)
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("remote endpoint - unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	// Return the response
	return resp, nil
}
