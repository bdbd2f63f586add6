package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// AdminClient calls the admin service.
type AdminClient struct {
	token     string
	getStatus *connect.Client[emptypb.Empty, structpb.Struct]
	stop      *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	skip      *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue]
	watch     *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewAdminClient creates a client for the admin service at baseURL.
func NewAdminClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *AdminClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &AdminClient{
		token:     token,
		getStatus: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+AdminGetStatusProcedure, opts...),
		stop:      connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+AdminStopProcedure, opts...),
		skip:      connect.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](httpClient, baseURL+AdminSkipProcedure, opts...),
		watch:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+AdminWatchProcedure, opts...),
	}
}

func authed[T any](msg *T, token string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set(AdminTokenHeader, token)
	return req
}

// GetStatus returns the per-guild status document.
func (c *AdminClient) GetStatus(ctx context.Context) (*structpb.Struct, error) {
	resp, err := c.getStatus.CallUnary(ctx, authed(&emptypb.Empty{}, c.token))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// StopGuild stops playback in the guild.
func (c *AdminClient) StopGuild(ctx context.Context, guildID string) error {
	_, err := c.stop.CallUnary(ctx, authed(wrapperspb.String(guildID), c.token))
	return err
}

// SkipGuild skips the guild's current track and returns the next title.
func (c *AdminClient) SkipGuild(ctx context.Context, guildID string) (string, error) {
	resp, err := c.skip.CallUnary(ctx, authed(wrapperspb.String(guildID), c.token))
	if err != nil {
		return "", err
	}
	return resp.Msg.GetValue(), nil
}

// WatchEvents calls fn for every streamed event until ctx ends or fn fails.
func (c *AdminClient) WatchEvents(ctx context.Context, fn func(*structpb.Struct) error) error {
	stream, err := c.watch.CallServerStream(ctx, authed(&emptypb.Empty{}, c.token))
	if err != nil {
		return err
	}
	defer stream.Close()
	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	return stream.Err()
}
