package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[T any](c *Client, method string, req any) (*T, error) {
	var resp T
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Submit queues a pipeline invocation and returns immediately.
func (c *Client) Submit(req PipelineRequest) (*TaskResponse, error) {
	return call[TaskResponse](c, "Submit", req)
}

// Run executes a pipeline invocation and waits for it to finish.
func (c *Client) Run(req PipelineRequest) (*TaskResponse, error) {
	return call[TaskResponse](c, "Run", req)
}

// Task returns one task snapshot.
func (c *Client) Task(id string) (*TaskResponse, error) {
	return call[TaskResponse](c, "Task", TaskRequest{ID: id})
}

// Tasks lists tracked tasks.
func (c *Client) Tasks() (*TasksResponse, error) {
	return call[TasksResponse](c, "Tasks", TasksRequest{})
}

// Pixels lists stored observations for a mine.
func (c *Client) Pixels(q MineQuery) (*PixelsResponse, error) {
	return call[PixelsResponse](c, "Pixels", q)
}

// KPI summarizes monitoring indicators for a mine.
func (c *Client) KPI(q MineQuery) (*KPIResponse, error) {
	return call[KPIResponse](c, "KPI", q)
}

// Alerts lists classified alerts for a mine.
func (c *Client) Alerts(q MineQuery) (*AlertsResponse, error) {
	return call[AlertsResponse](c, "Alerts", q)
}

// Violations lists stored violations for a mine.
func (c *Client) Violations(q MineQuery) (*ViolationsResponse, error) {
	return call[ViolationsResponse](c, "Violations", q)
}

// Zones returns synthesized protected zones for a mine.
func (c *Client) Zones(q MineQuery) (*ZonesResponse, error) {
	return call[ZonesResponse](c, "Zones", q)
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}
