// Package sandboxctl is a narrow control-plane service that lets a worker
// ask a running sandbox mount server to create a directory inside it, the
// same need distri's build.go served via fuseMkdirAll/pb.FUSEClient.MkdirAll
// over a unix-socket gRPC channel. There is no generated protobuf service
// to reuse here, so this package registers a CBOR encoding.Codec with
// grpc-go instead of hand-writing .pb.go stubs.
package sandboxctl

import (
	"context"
	"net"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const CodecName = "cbor"

// cborCodec implements grpc/encoding.Codec by delegating to the cbor
// package's default Marshal and Unmarshal (no canonical encoding mode).
type cborCodec struct{}

func (cborCodec) Marshal(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

func (cborCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(cborCodec{})
}

// MkdirAllRequest asks the mount server to create dir (relative to the
// mount's root) and any missing parents.
type MkdirAllRequest struct {
	Dir string `cbor:"1,keyasint"`
}

type MkdirAllResponse struct{}

// Server is implemented by the sandbox mount process.
type Server interface {
	MkdirAll(ctx context.Context, req *MkdirAllRequest) (*MkdirAllResponse, error)
}

// Serve registers impl on a grpc.Server listening on a unix socket at
// sockPath and blocks until ctx is cancelled, mirroring the lifecycle of
// distri's per-mount control socket.
func Serve(ctx context.Context, sockPath string, impl Server) error {
	lis, err := net.Listen("unix", sockPath)
	if err != nil {
		return xerrors.Errorf("sandboxctl: listen %s: %w", sockPath, err)
	}
	defer lis.Close()

	srv := grpc.NewServer()
	registerSandboxCtlServer(srv, impl)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client calls a running sandboxctl Server over a unix socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the control socket at sockPath, mirroring build.go's
// fuseMkdirAll dial (unix:// scheme, blocking, insecure — the socket is
// filesystem-permission-scoped, not network-exposed).
func Dial(ctx context.Context, sockPath string) (*Client, error) {
	conn, err := grpc.DialContext(ctx, "unix://"+sockPath,
		grpc.WithBlock(),
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, xerrors.Errorf("sandboxctl: dial %s: %w", sockPath, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) MkdirAll(ctx context.Context, dir string) error {
	var resp MkdirAllResponse
	err := c.conn.Invoke(ctx, "/sandboxctl.SandboxCtl/MkdirAll", &MkdirAllRequest{Dir: dir}, &resp)
	if err != nil {
		return xerrors.Errorf("sandboxctl: MkdirAll(%s): %w", dir, err)
	}
	return nil
}

var sandboxCtlServiceDesc = grpc.ServiceDesc{
	ServiceName: "sandboxctl.SandboxCtl",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "MkdirAll",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(MkdirAllRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(Server).MkdirAll(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sandboxctl.SandboxCtl/MkdirAll"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(Server).MkdirAll(ctx, req.(*MkdirAllRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sandboxctl.proto",
}

func registerSandboxCtlServer(s *grpc.Server, srv Server) {
	s.RegisterService(&sandboxCtlServiceDesc, srv)
}
