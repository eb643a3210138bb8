package domain

import (
	"context"
	"errors"
)

// Service composes readings, consumption and pricing into client and fleet figures.
// Every operation is read-only and may be repeated freely.
type Service interface {
	ClientDebt(ctx context.Context, req DebtRequest) (*DebtResult, error)
	ClientHistory(ctx context.Context, req HistoryRequest) ([]DebtResult, error)
	ClientForecast(ctx context.Context, req ForecastRequest) (*ForecastResult, error)
	InvoiceLines(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	FleetConsumption(ctx context.Context, req FleetRequest) (*FleetResult, error)
	FleetUsageSeries(ctx context.Context, req SeriesRequest) (*Series, error)
	AllClientDebts(ctx context.Context, req BatchRequest) (*BatchResult, error)
	DeviceConsumption(ctx context.Context, req DeviceRequest) (*DeviceUsage, error)
}

var (
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvalidGranularity = errors.New("invalid_granularity")
	ErrInvalidForecast    = errors.New("invalid_forecast")
	ErrDeviceNotFound     = errors.New("device_not_found")
)
