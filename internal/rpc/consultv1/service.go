package consultv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "consultd.v1.AppointmentsService"

type AppointmentsServiceServer interface {
	BookAppointment(context.Context, *BookAppointmentRequest) (*AppointmentResponse, error)
	GetAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	ConfirmAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error)
	StartAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error)
	CompleteAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error)
	CancelAppointment(context.Context, *CancelAppointmentRequest) (*CancelAppointmentResponse, error)
	RescheduleAppointment(context.Context, *RescheduleAppointmentRequest) (*AppointmentResponse, error)
	MarkNoShow(context.Context, *AppointmentRequest) (*AppointmentResponse, error)
	ListAvailableSlots(context.Context, *ListAvailableSlotsRequest) (*ListAvailableSlotsResponse, error)
	CheckSlot(context.Context, *CheckSlotRequest) (*CheckSlotResponse, error)
	UpsertProvider(context.Context, *UpsertProviderRequest) (*ProviderResponse, error)
	SetAvailability(context.Context, *SetAvailabilityRequest) (*ProviderResponse, error)
	UpdatePaymentStatus(context.Context, *UpdatePaymentStatusRequest) (*AppointmentResponse, error)
	ConfirmRefund(context.Context, *AppointmentRequest) (*AppointmentResponse, error)
}

// UnimplementedAppointmentsServiceServer can be embedded so new methods do
// not break existing servers.
type UnimplementedAppointmentsServiceServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedAppointmentsServiceServer) BookAppointment(context.Context, *BookAppointmentRequest) (*AppointmentResponse, error) {
	return nil, unimplemented("BookAppointment")
}
func (UnimplementedAppointmentsServiceServer) GetAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error) {
	return nil, unimplemented("GetAppointment")
}
func (UnimplementedAppointmentsServiceServer) ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	return nil, unimplemented("ListAppointments")
}
func (UnimplementedAppointmentsServiceServer) ConfirmAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error) {
	return nil, unimplemented("ConfirmAppointment")
}
func (UnimplementedAppointmentsServiceServer) StartAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error) {
	return nil, unimplemented("StartAppointment")
}
func (UnimplementedAppointmentsServiceServer) CompleteAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error) {
	return nil, unimplemented("CompleteAppointment")
}
func (UnimplementedAppointmentsServiceServer) CancelAppointment(context.Context, *CancelAppointmentRequest) (*CancelAppointmentResponse, error) {
	return nil, unimplemented("CancelAppointment")
}
func (UnimplementedAppointmentsServiceServer) RescheduleAppointment(context.Context, *RescheduleAppointmentRequest) (*AppointmentResponse, error) {
	return nil, unimplemented("RescheduleAppointment")
}
func (UnimplementedAppointmentsServiceServer) MarkNoShow(context.Context, *AppointmentRequest) (*AppointmentResponse, error) {
	return nil, unimplemented("MarkNoShow")
}
func (UnimplementedAppointmentsServiceServer) ListAvailableSlots(context.Context, *ListAvailableSlotsRequest) (*ListAvailableSlotsResponse, error) {
	return nil, unimplemented("ListAvailableSlots")
}
func (UnimplementedAppointmentsServiceServer) CheckSlot(context.Context, *CheckSlotRequest) (*CheckSlotResponse, error) {
	return nil, unimplemented("CheckSlot")
}
func (UnimplementedAppointmentsServiceServer) UpsertProvider(context.Context, *UpsertProviderRequest) (*ProviderResponse, error) {
	return nil, unimplemented("UpsertProvider")
}
func (UnimplementedAppointmentsServiceServer) SetAvailability(context.Context, *SetAvailabilityRequest) (*ProviderResponse, error) {
	return nil, unimplemented("SetAvailability")
}
func (UnimplementedAppointmentsServiceServer) UpdatePaymentStatus(context.Context, *UpdatePaymentStatusRequest) (*AppointmentResponse, error) {
	return nil, unimplemented("UpdatePaymentStatus")
}
func (UnimplementedAppointmentsServiceServer) ConfirmRefund(context.Context, *AppointmentRequest) (*AppointmentResponse, error) {
	return nil, unimplemented("ConfirmRefund")
}

func RegisterAppointmentsServiceServer(s grpc.ServiceRegistrar, srv AppointmentsServiceServer) {
	s.RegisterService(&AppointmentsServiceDesc, srv)
}

var AppointmentsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AppointmentsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("BookAppointment", AppointmentsServiceServer.BookAppointment),
		unary("GetAppointment", AppointmentsServiceServer.GetAppointment),
		unary("ListAppointments", AppointmentsServiceServer.ListAppointments),
		unary("ConfirmAppointment", AppointmentsServiceServer.ConfirmAppointment),
		unary("StartAppointment", AppointmentsServiceServer.StartAppointment),
		unary("CompleteAppointment", AppointmentsServiceServer.CompleteAppointment),
		unary("CancelAppointment", AppointmentsServiceServer.CancelAppointment),
		unary("RescheduleAppointment", AppointmentsServiceServer.RescheduleAppointment),
		unary("MarkNoShow", AppointmentsServiceServer.MarkNoShow),
		unary("ListAvailableSlots", AppointmentsServiceServer.ListAvailableSlots),
		unary("CheckSlot", AppointmentsServiceServer.CheckSlot),
		unary("UpsertProvider", AppointmentsServiceServer.UpsertProvider),
		unary("SetAvailability", AppointmentsServiceServer.SetAvailability),
		unary("UpdatePaymentStatus", AppointmentsServiceServer.UpdatePaymentStatus),
		unary("ConfirmRefund", AppointmentsServiceServer.ConfirmRefund),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "consultd/v1/appointments",
}

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req any, Resp any](method string, call func(AppointmentsServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AppointmentsServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AppointmentsServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// AppointmentsServiceClient forces the JSON codec on every call.
type AppointmentsServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAppointmentsServiceClient(cc grpc.ClientConnInterface) *AppointmentsServiceClient {
	return &AppointmentsServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AppointmentsServiceClient) BookAppointment(ctx context.Context, in *BookAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "BookAppointment", in, opts)
}

func (c *AppointmentsServiceClient) GetAppointment(ctx context.Context, in *AppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "GetAppointment", in, opts)
}

func (c *AppointmentsServiceClient) ListAppointments(ctx context.Context, in *ListAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c.cc, "ListAppointments", in, opts)
}

func (c *AppointmentsServiceClient) ConfirmAppointment(ctx context.Context, in *AppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "ConfirmAppointment", in, opts)
}

func (c *AppointmentsServiceClient) StartAppointment(ctx context.Context, in *AppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "StartAppointment", in, opts)
}

func (c *AppointmentsServiceClient) CompleteAppointment(ctx context.Context, in *AppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "CompleteAppointment", in, opts)
}

func (c *AppointmentsServiceClient) CancelAppointment(ctx context.Context, in *CancelAppointmentRequest, opts ...grpc.CallOption) (*CancelAppointmentResponse, error) {
	return invoke[CancelAppointmentResponse](ctx, c.cc, "CancelAppointment", in, opts)
}

func (c *AppointmentsServiceClient) RescheduleAppointment(ctx context.Context, in *RescheduleAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "RescheduleAppointment", in, opts)
}

func (c *AppointmentsServiceClient) MarkNoShow(ctx context.Context, in *AppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "MarkNoShow", in, opts)
}

func (c *AppointmentsServiceClient) ListAvailableSlots(ctx context.Context, in *ListAvailableSlotsRequest, opts ...grpc.CallOption) (*ListAvailableSlotsResponse, error) {
	return invoke[ListAvailableSlotsResponse](ctx, c.cc, "ListAvailableSlots", in, opts)
}

func (c *AppointmentsServiceClient) CheckSlot(ctx context.Context, in *CheckSlotRequest, opts ...grpc.CallOption) (*CheckSlotResponse, error) {
	return invoke[CheckSlotResponse](ctx, c.cc, "CheckSlot", in, opts)
}

func (c *AppointmentsServiceClient) UpsertProvider(ctx context.Context, in *UpsertProviderRequest, opts ...grpc.CallOption) (*ProviderResponse, error) {
	return invoke[ProviderResponse](ctx, c.cc, "UpsertProvider", in, opts)
}

func (c *AppointmentsServiceClient) SetAvailability(ctx context.Context, in *SetAvailabilityRequest, opts ...grpc.CallOption) (*ProviderResponse, error) {
	return invoke[ProviderResponse](ctx, c.cc, "SetAvailability", in, opts)
}

func (c *AppointmentsServiceClient) UpdatePaymentStatus(ctx context.Context, in *UpdatePaymentStatusRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "UpdatePaymentStatus", in, opts)
}

func (c *AppointmentsServiceClient) ConfirmRefund(ctx context.Context, in *AppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "ConfirmRefund", in, opts)
}
