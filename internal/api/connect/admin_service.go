package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/vcbox/internal/app/notification"
	"github.com/osa030/vcbox/internal/app/session"
	"github.com/osa030/vcbox/internal/app/session/registry"
	"github.com/osa030/vcbox/internal/domain/guild"
)

// Admin service procedure paths.
const (
	AdminServiceName        = "vcbox.admin.v1.AdminService"
	AdminGetStatusProcedure = "/" + AdminServiceName + "/GetStatus"
	AdminStopProcedure      = "/" + AdminServiceName + "/StopGuild"
	AdminSkipProcedure      = "/" + AdminServiceName + "/SkipGuild"
	AdminWatchProcedure     = "/" + AdminServiceName + "/WatchEvents"
)

// watchBuffer bounds events queued for one WatchEvents stream.
const watchBuffer = 32

// AdminService implements the admin RPCs against the session manager.
type AdminService struct {
	session  *session.Manager
	notifier *notification.Manager
}

// NewAdminService creates a new AdminService.
func NewAdminService(session *session.Manager, notifier *notification.Manager) *AdminService {
	return &AdminService{
		session:  session,
		notifier: notifier,
	}
}

// NewAdminHandler mounts the service behind token authentication. The
// returned path is the mux prefix.
func NewAdminHandler(svc *AdminService, token string, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithInterceptors(NewAdminAuthInterceptor(token))}, opts...)

	mux := http.NewServeMux()
	mux.Handle(AdminGetStatusProcedure, connect.NewUnaryHandler(AdminGetStatusProcedure, svc.GetStatus, opts...))
	mux.Handle(AdminStopProcedure, connect.NewUnaryHandler(AdminStopProcedure, svc.StopGuild, opts...))
	mux.Handle(AdminSkipProcedure, connect.NewUnaryHandler(AdminSkipProcedure, svc.SkipGuild, opts...))
	mux.Handle(AdminWatchProcedure, connect.NewServerStreamHandler(AdminWatchProcedure, svc.WatchEvents, opts...))
	return "/" + AdminServiceName + "/", mux
}

// GetStatus returns every guild holding session state.
func (s *AdminService) GetStatus(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	guilds := make([]any, 0)
	for _, st := range s.session.Status() {
		guilds = append(guilds, guildStatus(st))
	}

	msg, err := structpb.NewStruct(map[string]any{"guilds": guilds})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func guildStatus(st session.GuildStatus) map[string]any {
	queue := make([]any, 0, len(st.Queue))
	for _, t := range st.Queue {
		queue = append(queue, t.String())
	}
	out := map[string]any{
		"guild":        st.Guild.String(),
		"channel":      st.ChannelID,
		"connected":    st.Connected,
		"reconnecting": st.Reconnecting,
		"monitor":      st.MonitorID,
		"repeat":       st.Repeat.String(),
		"state":        st.Player.State().String(),
		"volume":       st.Player.Volume,
		"queue":        queue,
	}
	if t := st.Player.Track; t != nil {
		out["current"] = t.String()
		out["position"] = st.Player.Position.Seconds()
	}
	return out
}

// StopGuild stops playback in a guild and leaves its voice channel.
func (s *AdminService) StopGuild(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	g, err := guild.ParseID(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.session.Stop(ctx, g); err != nil {
		return nil, toConnectError(err)
	}
	zlog.Info().Msgf("guild %s stopped by admin", g)
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// SkipGuild skips to the next queued track and returns its title.
func (s *AdminService) SkipGuild(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	g, err := guild.ParseID(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	res, err := s.session.Skip(ctx, g)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(wrapperspb.String(res.Next.Title)), nil
}

// WatchEvents streams playback events until the client disconnects.
func (s *AdminService) WatchEvents(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	events := make(chan *notification.Notification, watchBuffer)
	id := s.notifier.Subscribe(notification.StreamFunc(func(n *notification.Notification) error {
		select {
		case events <- n:
			return nil
		default:
			return errors.New("watch stream is behind")
		}
	}))
	defer s.notifier.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-events:
			msg, err := structpb.NewStruct(eventFields(n))
			if err != nil {
				return connect.NewError(connect.CodeInternal, err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func eventFields(n *notification.Notification) map[string]any {
	e := n.Event
	out := map[string]any{
		"seq":   float64(n.SequenceNo),
		"at":    n.At.Format("2006-01-02T15:04:05.000Z07:00"),
		"type":  e.Type.String(),
		"guild": e.Guild.String(),
	}
	if e.MonitorID != "" {
		out["monitor"] = e.MonitorID
	}
	if e.Track != nil {
		out["track"] = e.Track.String()
	}
	if e.Err != nil {
		out["error"] = e.Err.Error()
	}
	return out
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrEmptyQueue),
		errors.Is(err, session.ErrNothingPlaying):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, session.ErrNodeUnavailable), errors.Is(err, registry.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
