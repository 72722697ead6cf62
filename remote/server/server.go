package server

import (
	"fmt"

	"github.com/accordlabs/accord/lib/state"
	"github.com/accordlabs/accord/remote/codec"
	"github.com/accordlabs/accord/remote/common"
	"github.com/accordlabs/accord/remote/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("remote")

// NewSyncServer creates a new sync server around a server-owned store
// It takes a config, the store, a transport and a codec as parameters
//
// Usage:
//
//	s := server.NewSyncServer(
//		config,
//		store,
//		httpt.NewHTTPServerTransport(),
//		codec.NewJSONCodec(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewSyncServer(
	config common.ServerConfig,
	store *state.Store,
	transport transport.ServerTransport,
	codec codec.Codec,
) *SyncServer {
	s := &SyncServer{
		config:    config,
		store:     store,
		transport: transport,
		codec:     codec,
	}

	// Configure the transport layer
	s.registerTransportHandler()

	return s
}

// SyncServer answers sync requests against its own store.
type SyncServer struct {
	config    common.ServerConfig
	store     *state.Store
	transport transport.ServerTransport
	codec     codec.Codec
}

// registerTransportHandler wires the decode/handle/encode pipeline into the
// transport layer.
func (s *SyncServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Decode the request
		if err := s.codec.Decode(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to decode request: %s", err))
		} else {
			// Let the adapter handle the request
			respMsg = s.handle(&msg)
		}

		// Encode the result
		val, err := s.codec.Encode(respMsg)
		if err != nil {
			val, _ = s.codec.Encode(common.NewErrorResponse(fmt.Sprintf("failed to encode response: %s", err)))
		}
		return val
	})
}

// Serve starts the sync server
// This function initializes the loggers and starts the transport layer
func (s *SyncServer) Serve() error {
	common.InitLoggers(s.config.LogLevel)

	Logger.Infof("Created sync server")
	Logger.Infof(s.config.String())

	return s.transport.Listen(s.config)
}
