package grpcserver

import (
	"context"
	"encoding/json"
	"fmt"

	"lobcast/domain/orderbook"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is the consumer side of the MarketData service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetBook(ctx context.Context, id orderbook.InstrumentID, depth int) (orderbook.View, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"instrument_id": string(id),
		"depth":         depth,
	})
	if err != nil {
		return orderbook.View{}, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, getBookMethod, req, out); err != nil {
		return orderbook.View{}, err
	}
	var v orderbook.View
	if err := json.Unmarshal(out.GetValue(), &v); err != nil {
		return orderbook.View{}, fmt.Errorf("decode view: %w", err)
	}
	return v, nil
}

// Stream is an open subscription.
type Stream struct {
	stream grpc.ClientStream
}

func (c *Client) Subscribe(ctx context.Context, id orderbook.InstrumentID) (*Stream, error) {
	cs, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(wrapperspb.String(string(id))); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &Stream{stream: cs}, nil
}

func (s *Stream) Recv() (orderbook.Message, error) {
	in := new(wrapperspb.BytesValue)
	if err := s.stream.RecvMsg(in); err != nil {
		return orderbook.Message{}, err
	}
	var m orderbook.Message
	if err := json.Unmarshal(in.GetValue(), &m); err != nil {
		return orderbook.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
