package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"minewatch/internal/api"
	"minewatch/internal/daemon"
	"minewatch/internal/daterange"
	"minewatch/internal/logging"
	"minewatch/internal/logs"
)

// ServiceName is the RPC receiver name registered by the server.
const ServiceName = "Minewatch"

// Server exposes daemon operations via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: logger, ctx: serverCtx, now: time.Now}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the server is closed.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Open client
// connections finish their in-flight call before the codec exits.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	now    func() time.Time
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	st := s.daemon.Status()
	resp.Status = api.DaemonStatus{
		Running:      st.Running,
		PID:          st.PID,
		DatabasePath: st.DatabasePath,
		LockFilePath: st.LockFilePath,
		LogPath:      st.LogPath,
		Provider:     st.Provider,
		Mines:        st.Mines,
		Workflow:     api.FromSummary(st.Workflow),
	}
	resp.APIAddress = s.daemon.APIAddress()
	return nil
}

func (s *service) Submit(req PipelineRequest, resp *TaskResponse) error {
	pr, err := req.ToRequest()
	if err != nil {
		return err
	}
	task, err := s.daemon.Submit(pr)
	if err != nil {
		return err
	}
	resp.Task = api.FromTask(task)
	s.logger.Info("task submitted via IPC",
		logging.String(logging.FieldTaskID, task.ID),
		logging.Int64(logging.FieldMineID, task.MineID),
		logging.String(logging.FieldEventType, "ipc_submit"),
	)
	return nil
}

// Run blocks until the task finishes. A task that was registered and then
// failed is returned without an RPC error; its Error field carries the cause.
func (s *service) Run(req PipelineRequest, resp *TaskResponse) error {
	pr, err := req.ToRequest()
	if err != nil {
		return err
	}
	task, err := s.daemon.Run(s.ctx, pr)
	if err != nil && task.ID == "" {
		return err
	}
	resp.Task = api.FromTask(task)
	return nil
}

func (s *service) Task(req TaskRequest, resp *TaskResponse) error {
	task, err := s.daemon.Task(req.ID)
	if err != nil {
		return err
	}
	resp.Task = api.FromTask(task)
	return nil
}

func (s *service) Tasks(_ TasksRequest, resp *TasksResponse) error {
	resp.Tasks = api.FromTasks(s.daemon.Tasks())
	return nil
}

func (s *service) window(q MineQuery, fallback daterange.Range) (daterange.Range, error) {
	if q.MineID <= 0 {
		return daterange.Range{}, fmt.Errorf("invalid mine id %d", q.MineID)
	}
	return api.ParseWindow(q.StartDate, q.EndDate, fallback)
}

func (s *service) Pixels(q MineQuery, resp *PixelsResponse) error {
	window, err := s.window(q, api.LastDays(s.now(), api.DefaultPixelWindowDays))
	if err != nil {
		return err
	}
	out, err := s.daemon.Mines().Pixels(s.ctx, q.MineID, window)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) KPI(q MineQuery, resp *KPIResponse) error {
	window, err := s.window(q, daterange.Range{})
	if err != nil {
		return err
	}
	out, err := s.daemon.Mines().KPI(s.ctx, q.MineID, window)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) Alerts(q MineQuery, resp *AlertsResponse) error {
	window, err := s.window(q, daterange.Range{})
	if err != nil {
		return err
	}
	out, err := s.daemon.Mines().Alerts(s.ctx, q.MineID, window)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) Violations(q MineQuery, resp *ViolationsResponse) error {
	window, err := s.window(q, daterange.Range{})
	if err != nil {
		return err
	}
	out, err := s.daemon.Mines().Violations(s.ctx, q.MineID, window)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) Zones(q MineQuery, resp *ZonesResponse) error {
	window, err := s.window(q, daterange.Range{})
	if err != nil {
		return err
	}
	fc, err := s.daemon.Mines().Zones(s.ctx, q.MineID, window)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode zones: %w", err)
	}
	resp.MineID = q.MineID
	resp.GeoJSON = data
	resp.Count = len(fc.Features)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := strings.TrimSpace(s.daemon.LogPath())
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset:   req.Offset,
		Limit:    req.Limit,
		Follow:   req.Follow,
		Wait:     wait,
		Contains: req.Contains,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
