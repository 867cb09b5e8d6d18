package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaltrader/internal/exchange"
)

func newTestAccountService(gw *MockAccountGateway) *AccountService {
	return NewAccountService(gw, testConfig(),
		staticRisk{Date: "2024-05-01", DailyTrades: 2, MaxDailyTrades: 20},
		staticDispatcher{Queued: 1, Capacity: 100, Workers: 4},
		staticSagas{SagasRun: 3, EntriesOK: 2, EntriesFail: 1},
	)
}

func TestAccountService_GetStatus(t *testing.T) {
	gw := NewMockAccountGateway()
	svc := newTestAccountService(gw)

	status := svc.GetStatus(context.Background())

	assert.Equal(t, "running", status.ServerStatus)
	assert.Equal(t, ConnectionConnected, status.OKXConnection)
	assert.Empty(t, status.OKXError)
	assert.False(t, status.Config.EnableTrading)
	assert.True(t, status.Config.Sandbox)
	assert.Equal(t, 10, status.Config.MaxLeverage)
	assert.Equal(t, 2, status.Risk.DailyTrades)
	assert.Equal(t, 100, status.Dispatcher.Capacity)
	assert.Equal(t, int64(3), status.Sagas.SagasRun)
	assert.NotEmpty(t, status.Uptime)
}

func TestAccountService_GetStatusDisconnected(t *testing.T) {
	gw := NewMockAccountGateway()
	gw.conn = exchange.Fail[time.Time](exchange.CodeTimeout, "request timed out")
	svc := newTestAccountService(gw)

	status := svc.GetStatus(context.Background())
	assert.Equal(t, ConnectionDisconnected, status.OKXConnection)
	assert.Equal(t, "request timed out", status.OKXError)
	// статус отдается даже без биржи
	assert.Equal(t, "running", status.ServerStatus)
}

func TestAccountService_ReadsUseTimeoutAndAllInstruments(t *testing.T) {
	gw := NewMockAccountGateway()
	svc := newTestAccountService(gw)

	res := svc.GetPositions(context.Background())
	require.True(t, res.OK)
	assert.Empty(t, gw.lastInstrument)
	assert.True(t, gw.hadDeadline)

	gw.hadDeadline = false
	bal := svc.GetBalance(context.Background())
	require.True(t, bal.OK)
	assert.True(t, gw.hadDeadline)
}

func TestAccountService_GetDebugConfigMasksSecrets(t *testing.T) {
	svc := newTestAccountService(NewMockAccountGateway())

	dbg := svc.GetDebugConfig()

	assert.Equal(t, "abcdef****", dbg.APIConfig.APIKeyPrefix)
	assert.Equal(t, "secret****", dbg.APIConfig.SecretKeyPrefix)
	assert.True(t, dbg.APIConfig.PassphraseSet)
	assert.Equal(t, "1", dbg.Environment.Flag)
	assert.Equal(t, "sandbox", dbg.Environment.EnvironmentName)

	assert.Equal(t, "NOT_SET", maskSecret(""))
	assert.Equal(t, "NOT_SET", maskSecret("short"))
}

func TestAccountService_SetTradingEnabled(t *testing.T) {
	gw := NewMockAccountGateway()
	hub := &MockBroadcaster{}
	svc := newTestAccountService(gw)
	svc.SetTradingModeHub(hub)

	require.NoError(t, svc.SetTradingEnabled(true))
	assert.True(t, gw.TradingEnabled())
	require.NoError(t, svc.SetTradingEnabled(false))
	assert.False(t, gw.TradingEnabled())
	assert.Equal(t, []bool{true, false}, hub.modes)

	cfg := testConfig()
	cfg.OKX.APIKey = ""
	noKeys := NewAccountService(gw, cfg, staticRisk{}, staticDispatcher{}, staticSagas{})
	assert.ErrorIs(t, noKeys.SetTradingEnabled(true), ErrCredentialsMissing)
	assert.False(t, gw.TradingEnabled())
	// выключить можно всегда
	assert.NoError(t, noKeys.SetTradingEnabled(false))
}
