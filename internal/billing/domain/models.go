package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
)

// StatusNoData marks a device that has never reported a reading.
const StatusNoData consumptiondomain.Status = "no_data"

// Failure reports an entity left out of an aggregate and why.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Aggregate is the {bw, color, total_pages, amount} shape shared by every figure.
type Aggregate struct {
	BW         int64                `json:"bw"`
	Color      int64                `json:"color"`
	TotalPages int64                `json:"total_pages"`
	Amount     pricingdomain.Amount `json:"amount"`
}

func NewAggregate(delta consumptiondomain.Counters, amount pricingdomain.Amount) Aggregate {
	return Aggregate{
		BW:         delta.BW,
		Color:      delta.Color,
		TotalPages: delta.Total(),
		Amount:     amount,
	}
}

// DeviceConsumption is one device's contribution to a client figure.
type DeviceConsumption struct {
	DeviceID string                     `json:"device_id"`
	Label    string                     `json:"label"`
	Status   consumptiondomain.Status   `json:"status"`
	Delta    consumptiondomain.Counters `json:"delta"`
}

type DeviceRequest struct {
	DeviceID   string
	Date       time.Time
	Convention consumptiondomain.Convention
}

// DeviceUsage is one device's consumption over a billing period. The amount uses the
// debt rule set alone, so it only matches its owner's figure for a single-device
// client. Devices without a known owner carry a zero amount.
type DeviceUsage struct {
	DeviceID   string                       `json:"device_id"`
	Label      string                       `json:"label"`
	Registered bool                         `json:"registered"`
	ClientID   *snowflake.ID                `json:"client_id,omitempty"`
	ClientName string                       `json:"client_name,omitempty"`
	Period     billingperioddomain.Period   `json:"period"`
	Convention consumptiondomain.Convention `json:"convention"`
	Status     consumptiondomain.Status     `json:"status"`
	Aggregate
	Result *consumptiondomain.Result `json:"result,omitempty"`
}

type DebtRequest struct {
	ClientID   snowflake.ID
	Date       time.Time
	Convention consumptiondomain.Convention
	RuleSet    pricingdomain.RuleSet
}

type DebtResult struct {
	ClientID   snowflake.ID                 `json:"client_id"`
	ClientName string                       `json:"client_name"`
	Period     billingperioddomain.Period   `json:"period"`
	Convention consumptiondomain.Convention `json:"convention"`
	RuleSet    pricingdomain.RuleSet        `json:"rule_set"`
	Aggregate
	DeviceCount int                 `json:"device_count"`
	Devices     []DeviceConsumption `json:"devices"`
	Failures    []Failure           `json:"failures"`
}

type HistoryRequest struct {
	ClientID   snowflake.ID
	Date       time.Time
	Periods    int
	Order      billingperioddomain.Order
	Convention consumptiondomain.Convention
	RuleSet    pricingdomain.RuleSet
}

type ForecastRequest struct {
	ClientID snowflake.ID
	Date     time.Time
	Ahead    int
}

// Projection is a forecast figure for one future period.
type Projection struct {
	Period billingperioddomain.Period `json:"period"`
	Aggregate
}

type ForecastResult struct {
	ClientID    snowflake.ID `json:"client_id"`
	Basis       []DebtResult `json:"basis"`
	Projections []Projection `json:"projections"`
	Trend       Trend        `json:"trend"`
	Failures    []Failure    `json:"failures"`
}

// Trend is the fitted per-period slope of each channel.
type Trend struct {
	BWSlope    float64 `json:"bw_slope"`
	ColorSlope float64 `json:"color_slope"`
}

type InvoiceRequest struct {
	ClientID snowflake.ID
	Date     time.Time
}

// Channel names the counter an invoice line bills.
type Channel string

const (
	ChannelBW    Channel = "bw"
	ChannelColor Channel = "color"
	ChannelTotal Channel = "total"
)

type InvoiceLine struct {
	Description  string          `json:"description"`
	DeviceID     string          `json:"device_id,omitempty"`
	Channel      Channel         `json:"channel"`
	Quantity     int64           `json:"quantity"`
	UnitPriceHT  decimal.Decimal `json:"unit_price_ht"`
	UnitPriceTTC decimal.Decimal `json:"unit_price_ttc"`
	TotalHT      decimal.Decimal `json:"total_ht"`
	TotalTTC     decimal.Decimal `json:"total_ttc"`
}

type Invoice struct {
	ClientID   snowflake.ID               `json:"client_id"`
	ClientName string                     `json:"client_name"`
	Period     billingperioddomain.Period `json:"period"`
	Currency   string                     `json:"currency"`
	Lines      []InvoiceLine              `json:"lines"`
	Totals     InvoiceLine                `json:"totals"`
	Amount     pricingdomain.Amount       `json:"amount"`
	Failures   []Failure                  `json:"failures"`
}

type FleetRequest struct {
	Date     time.Time
	ClientID *snowflake.ID
}

type ClientConsumption struct {
	ClientID    snowflake.ID `json:"client_id"`
	Name        string       `json:"name"`
	DeviceCount int          `json:"device_count"`
	Aggregate
}

type UnattributedConsumption struct {
	DeviceCount int `json:"device_count"`
	Aggregate
}

type FleetResult struct {
	Period       billingperioddomain.Period `json:"period"`
	Clients      []ClientConsumption        `json:"clients"`
	Unattributed UnattributedConsumption    `json:"unattributed"`
	Total        Aggregate                  `json:"total"`
	Failures     []Failure                  `json:"failures"`
}

// Granularity sizes the buckets of a usage series.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

func ParseGranularity(v string) (Granularity, error) {
	switch Granularity(v) {
	case GranularityDay, GranularityMonth, GranularityYear:
		return Granularity(v), nil
	default:
		return "", ErrInvalidGranularity
	}
}

type SeriesRequest struct {
	From        time.Time
	To          time.Time
	Granularity Granularity
	ClientID    *snowflake.ID
}

// Bucket holds page counts only; pricing thresholds apply per billing period, not per bucket.
type Bucket struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	BW         int64     `json:"bw"`
	Color      int64     `json:"color"`
	TotalPages int64     `json:"total_pages"`
}

type Series struct {
	Granularity Granularity `json:"granularity"`
	Buckets     []Bucket    `json:"buckets"`
	Failures    []Failure   `json:"failures"`
}

type BatchRequest struct {
	Date       time.Time
	Convention consumptiondomain.Convention
	RuleSet    pricingdomain.RuleSet
}

type BatchResult struct {
	Results  []DebtResult `json:"results"`
	Failures []Failure    `json:"failures"`
}
