package grpcserver

import (
	"context"
	"encoding/json"
	"errors"

	"lobcast/domain/orderbook"
	"lobcast/service"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server adapts the engine to gRPC.
type Server struct {
	engine       *service.Engine
	defaultDepth int
	log          zerolog.Logger
}

func NewServer(engine *service.Engine, defaultDepth int, log zerolog.Logger) *Server {
	return &Server{
		engine:       engine,
		defaultDepth: defaultDepth,
		log:          log.With().Str("component", "grpc").Logger(),
	}
}

// -------------------- Queries --------------------

func (s *Server) GetBook(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	fields := req.GetFields()
	id := orderbook.InstrumentID(fields["instrument_id"].GetStringValue())
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "instrument_id is required")
	}
	depth := s.defaultDepth
	if d, ok := fields["depth"]; ok {
		depth = int(d.GetNumberValue())
	}

	view, err := s.engine.SnapshotView(id, depth)
	if err != nil {
		return nil, toStatus(err)
	}
	b, err := json.Marshal(view)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.log.Debug().Str("instrument", string(id)).Int("depth", depth).Msg("GetBook")
	return wrapperspb.Bytes(b), nil
}

// -------------------- Streams --------------------

// Subscribe streams full-depth messages until the client goes away or
// falls too far behind.
func (s *Server) Subscribe(req *wrapperspb.StringValue, stream MarketData_SubscribeServer) error {
	id := orderbook.InstrumentID(req.GetValue())
	if id == "" {
		return status.Error(codes.InvalidArgument, "instrument id is required")
	}
	sub, err := s.engine.Subscribe(id)
	if err != nil {
		return toStatus(err)
	}
	defer s.engine.Unsubscribe(sub)
	s.log.Info().Str("instrument", string(id)).Str("subscription", sub.ID()).Msg("stream opened")

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Str("subscription", sub.ID()).Msg("stream closed by client")
			return nil
		case m, ok := <-sub.C():
			if !ok {
				if errors.Is(sub.Err(), service.ErrSubscriberOverrun) {
					return status.Error(codes.ResourceExhausted, "subscriber fell behind; resubscribe")
				}
				return status.Error(codes.Unavailable, "subscription ended")
			}
			b, err := json.Marshal(m)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(wrapperspb.Bytes(b)); err != nil {
				s.log.Warn().Err(err).Str("subscription", sub.ID()).Msg("stream send failed")
				return err
			}
		}
	}
}

// -------------------- Converters --------------------

func toStatus(err error) error {
	switch {
	case errors.Is(err, orderbook.ErrUnknownInstrument):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, orderbook.ErrInvalidUpdate):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
