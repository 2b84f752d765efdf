package configurator

import (
	"context"
	stderrors "errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/pgmflow/config"
	"github.com/joshuafuller/pgmflow/internal/errors"
	"github.com/joshuafuller/pgmflow/internal/transport"
	"github.com/joshuafuller/pgmflow/internal/transport/transporttest"
)

var (
	senderOptionOrder = []transport.Option{
		transport.OptRouterAlert,
		transport.OptSendOnly,
		transport.OptMTU,
		transport.OptMulticastHops,
		transport.OptMulticastLoop,
		transport.OptTXWSqns,
		transport.OptAmbientSPM,
		transport.OptHeartbeatSPM,
		transport.OptNoBlock,
		transport.OptUDPEncapUnicastPort,
		transport.OptUDPEncapMulticastPort,
	}
	receiverOptionOrder = []transport.Option{
		transport.OptRouterAlert,
		transport.OptRecvOnly,
		transport.OptMTU,
		transport.OptMulticastHops,
		transport.OptMulticastLoop,
		transport.OptRXWSqns,
		transport.OptPeerExpiry,
		transport.OptSPMRExpiry,
		transport.OptNAKBackoffInterval,
		transport.OptNAKRepeatInterval,
		transport.OptNAKRDataInterval,
		transport.OptNAKDataRetries,
		transport.OptNAKNCFRetries,
		transport.OptPassive,
		transport.OptUDPEncapUnicastPort,
		transport.OptUDPEncapMulticastPort,
	}
)

func receiverConfig() config.Receiver {
	cfg := config.DefaultReceiver()
	cfg.Network = ";239.1.1.1,239.1.1.2"
	return cfg
}

func TestConfigure_SenderCallOrder(t *testing.T) {
	e := transporttest.New()
	h, err := Configure(context.Background(), e, SenderPlan(config.DefaultSender()))
	require.NoError(t, err)
	require.Equal(t, Connected, h.State())
	require.Equal(t, SendOnly, h.Direction())

	require.Equal(t, senderOptionOrder, e.Options())

	methods := e.Methods()
	tail := methods[len(methods)-3:]
	require.Equal(t, []string{transporttest.MethodBind, transporttest.MethodSendGroup, transporttest.MethodConnect}, tail)
	require.Equal(t, transporttest.MethodSocket, methods[0])

	port, _ := e.OptionValue(transport.OptUDPEncapUnicastPort)
	mport, _ := e.OptionValue(transport.OptUDPEncapMulticastPort)
	require.Equal(t, uint16(8080), port)
	require.Equal(t, port, mport)

	ra, _ := e.OptionValue(transport.OptRouterAlert)
	require.Equal(t, false, ra)

	require.NoError(t, h.Close())
	require.Equal(t, 1, e.Closes())
}

func TestConfigure_ReceiverCallOrder(t *testing.T) {
	e := transporttest.New()
	h, err := Configure(context.Background(), e, ReceiverPlan(receiverConfig()))
	require.NoError(t, err)
	defer h.Close()

	require.Equal(t, receiverOptionOrder, e.Options())

	var joined []net.IP
	var bind transport.BindRequest
	for _, c := range e.Calls() {
		switch c.Method {
		case transporttest.MethodJoinGroup:
			joined = append(joined, c.Value.(transport.GroupRequest).Group)
		case transporttest.MethodBind:
			bind = c.Value.(transport.BindRequest)
		case transporttest.MethodSendGroup:
			t.Fatal("receiver registered a send group")
		}
	}
	require.Len(t, joined, 2)
	require.True(t, joined[0].Equal(net.ParseIP("239.1.1.1")))
	require.True(t, joined[1].Equal(net.ParseIP("239.1.1.2")))
	require.Equal(t, uint16(7500), bind.Port)
	require.Equal(t, SessionID(), bind.Session)

	methods := e.Methods()
	require.Equal(t, transporttest.MethodConnect, methods[len(methods)-1])
}

func TestConfigure_RollbackAtEveryStep(t *testing.T) {
	boom := stderrors.New("engine says no")

	type step struct {
		name   string
		stage  errors.Stage
		inject func(*transporttest.Engine)
	}
	steps := func(order []transport.Option, join string) []step {
		var out []step
		for i, opt := range order {
			stage := errors.StageOption
			if i < 2 {
				stage = errors.StageMode
			}
			opt := opt
			out = append(out, step{opt.String(), stage, func(e *transporttest.Engine) { e.FailOption(opt, boom) }})
		}
		for _, m := range []struct {
			method string
			stage  errors.Stage
		}{
			{transporttest.MethodBind, errors.StageBind},
			{join, errors.StageJoin},
			{transporttest.MethodConnect, errors.StageConnect},
		} {
			m := m
			out = append(out, step{m.method, m.stage, func(e *transporttest.Engine) { e.FailOn(m.method, boom) }})
		}
		return out
	}

	plans := []struct {
		name  string
		plan  Plan
		steps []step
	}{
		{"sender", SenderPlan(config.DefaultSender()), steps(senderOptionOrder, transporttest.MethodSendGroup)},
		{"receiver", ReceiverPlan(receiverConfig()), steps(receiverOptionOrder, transporttest.MethodJoinGroup)},
	}

	for _, p := range plans {
		for _, s := range p.steps {
			t.Run(p.name+"/"+s.name, func(t *testing.T) {
				e := transporttest.New()
				s.inject(e)

				h, err := Configure(context.Background(), e, p.plan)
				require.Nil(t, h)

				var cerr *errors.ConfigurationError
				require.True(t, stderrors.As(err, &cerr), "error %v is not a ConfigurationError", err)
				require.Equal(t, s.stage, cerr.Stage)
				require.Equal(t, boom.Error(), cerr.EngineMessage)
				require.ErrorIs(t, err, boom)

				require.Equal(t, 1, e.Allocs())
				require.Equal(t, e.Allocs(), e.Closes())
			})
		}
	}
}

func TestConfigure_StopsAtFirstFailure(t *testing.T) {
	e := transporttest.New()
	e.FailOption(transport.OptMulticastHops, stderrors.New("bad hops"))

	_, err := Configure(context.Background(), e, SenderPlan(config.DefaultSender()))
	require.Error(t, err)

	opts := e.Options()
	require.Equal(t, transport.OptMulticastHops, opts[len(opts)-1])
	require.NotContains(t, e.Methods(), transporttest.MethodBind)
}

func TestConfigure_AllocateFailureNeedsNoClose(t *testing.T) {
	e := transporttest.New()
	e.FailOn(transporttest.MethodSocket, stderrors.New("no sockets left"))

	_, err := Configure(context.Background(), e, SenderPlan(config.DefaultSender()))
	var cerr *errors.ConfigurationError
	require.True(t, stderrors.As(err, &cerr))
	require.Equal(t, errors.StageAllocate, cerr.Stage)
	require.Zero(t, e.Allocs())
	require.Zero(t, e.Closes())
}

func TestConfigure_ResolveFailureAllocatesNothing(t *testing.T) {
	e := transporttest.New()
	cfg := config.DefaultSender()
	cfg.Network = ";10.0.0.1"

	_, err := Configure(context.Background(), e, SenderPlan(cfg))
	var cerr *errors.ConfigurationError
	require.True(t, stderrors.As(err, &cerr))
	require.Equal(t, errors.StageResolve, cerr.Stage)
	require.Empty(t, e.Calls())
}

func TestConfigure_OutOfRangeTuningNamesOption(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Sender)
		option transport.Option
	}{
		{"hops zero", func(c *config.Sender) { c.Hops = 0 }, transport.OptMulticastHops},
		{"hops too large", func(c *config.Sender) { c.Hops = 256 }, transport.OptMulticastHops},
		{"mtu too small", func(c *config.Sender) { c.MaxTPDU = 10 }, transport.OptMTU},
		{"window zero", func(c *config.Sender) { c.TXWSqns = 0 }, transport.OptTXWSqns},
		{"ambient spm zero", func(c *config.Sender) { c.SPMAmbient = 0 }, transport.OptAmbientSPM},
		{"heartbeat zero", func(c *config.Sender) { c.IHBMin = 0 }, transport.OptHeartbeatSPM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultSender()
			tt.mutate(&cfg)
			e := transporttest.New()

			_, err := Configure(context.Background(), e, SenderPlan(cfg))
			var cerr *errors.ConfigurationError
			require.True(t, stderrors.As(err, &cerr))
			require.Equal(t, errors.StageOption, cerr.Stage)
			require.Equal(t, tt.option.String(), cerr.Option)
			require.Contains(t, cerr.EngineMessage, tt.option.String())
			require.Equal(t, e.Allocs(), e.Closes())
		})
	}
}

func TestConfigure_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := transporttest.New()

	_, err := Configure(ctx, e, SenderPlan(config.DefaultSender()))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, e.Allocs(), e.Closes())
}

func TestConfigure_InvalidPlan(t *testing.T) {
	e := transporttest.New()
	_, err := Configure(context.Background(), e, Plan{Direction: SendOnly})
	var cerr *errors.ConfigurationError
	require.True(t, stderrors.As(err, &cerr))
	require.Equal(t, errors.StageValidate, cerr.Stage)
	require.Empty(t, e.Calls())
}

func TestHandle_CloseIsIdempotent(t *testing.T) {
	e := transporttest.New()
	closeErr := stderrors.New("close failed")
	e.FailClose(closeErr)

	h, err := Configure(context.Background(), e, SenderPlan(config.DefaultSender()))
	require.NoError(t, err)

	require.ErrorIs(t, h.Close(), closeErr)
	require.ErrorIs(t, h.Close(), closeErr)
	require.Equal(t, Closed, h.State())
	require.Equal(t, 1, e.Closes())
}

func TestHeartbeatSchedule(t *testing.T) {
	got := HeartbeatSchedule(100*time.Millisecond, 30*time.Second)
	require.Equal(t, 100*time.Millisecond, got[0])
	require.Equal(t, 25600*time.Millisecond, got[len(got)-1])
	require.Len(t, got, 9)
	for i := 1; i < len(got); i++ {
		require.Equal(t, 2*got[i-1], got[i])
	}
	require.LessOrEqual(t, got[len(got)-1], 60*time.Second)

	require.Equal(t, []time.Duration{100 * time.Millisecond}, HeartbeatSchedule(100*time.Millisecond, 50*time.Millisecond))
	require.Equal(t, []time.Duration{time.Second}, HeartbeatSchedule(time.Second, time.Second))
	require.NotEmpty(t, HeartbeatSchedule(0, time.Second))

	// Very large bounds terminate without overflow.
	huge := HeartbeatSchedule(time.Nanosecond, time.Duration(1<<62))
	require.Equal(t, time.Duration(1<<61), huge[len(huge)-1])
}

func TestSessionID(t *testing.T) {
	require.Equal(t, SessionID(), SessionID())
	require.Equal(t, sessionIDFor("host-a"), sessionIDFor("host-a"))
	require.NotEqual(t, sessionIDFor("host-a"), sessionIDFor("host-b"))

	orig := hostname
	t.Cleanup(func() { hostname = orig })
	hostname = func() (string, error) { return "", stderrors.New("no hostname") }
	require.Equal(t, sessionIDFor("localhost"), SessionID())
}
