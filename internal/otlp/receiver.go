package otlp

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/model"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var log = logrus.WithField("component", "otlp")

// Source labels for received records.
const (
	SourceGRPC = "otlp-grpc"
	SourceHTTP = "otlp-http"
)

// Sink accepts converted records. It returns how many were accepted.
type Sink interface {
	Ingest(source string, records []model.LogRecord) (int, error)
}

// Receiver implements the OTLP LogsService over gRPC.
type Receiver struct {
	collogspb.UnimplementedLogsServiceServer

	addr   string
	sink   Sink
	now    func() time.Time
	server *grpc.Server
	lis    net.Listener
}

// NewReceiver creates a receiver that forwards exports to sink.
func NewReceiver(addr string, sink Sink) *Receiver {
	return &Receiver{addr: addr, sink: sink, now: time.Now}
}

// Export converts the request and hands the records to the sink. Records
// the sink rejects are reported as a partial success.
func (r *Receiver) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	resp, err := Deliver(r.sink, SourceGRPC, Convert(req, r.now))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return resp, nil
}

// Deliver hands converted records to sink and builds the export response.
// It returns an error only when records were offered and none was accepted.
func Deliver(sink Sink, source string, records []model.LogRecord) (*collogspb.ExportLogsServiceResponse, error) {
	resp := &collogspb.ExportLogsServiceResponse{}
	if len(records) == 0 {
		return resp, nil
	}

	accepted, err := sink.Ingest(source, records)
	if err != nil && accepted == 0 {
		log.WithError(err).WithField("source", source).Warn("rejected otlp export")
		return nil, err
	}

	if rejected := len(records) - accepted; rejected > 0 {
		msg := "some log records were rejected"
		if err != nil {
			msg = err.Error()
		}
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: int64(rejected),
			ErrorMessage:       msg,
		}
	}
	return resp, nil
}

// Start listens on the configured address and serves in the background.
func (r *Receiver) Start() error {
	lis, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	r.lis = lis
	r.server = grpc.NewServer()
	collogspb.RegisterLogsServiceServer(r.server, r)

	go func() {
		if err := r.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			log.WithError(err).Error("otlp grpc server stopped")
		}
	}()
	log.WithField("addr", lis.Addr().String()).Info("otlp grpc receiver listening")
	return nil
}

// Addr is the bound listener address, valid after Start.
func (r *Receiver) Addr() string {
	if r.lis == nil {
		return r.addr
	}
	return r.lis.Addr().String()
}

// Stop drains in-flight exports and stops the server.
func (r *Receiver) Stop() {
	if r.server == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		r.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.server.Stop()
	}
}
