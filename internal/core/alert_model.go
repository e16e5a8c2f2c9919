package core

import (
	"github.com/shopspring/decimal"
)

// Criticality is the severity tier of a low-stock alert.
type Criticality string

const (
	CriticalityCritical Criticality = "CRITICAL"
	CriticalityWarning  Criticality = "WARNING"
	CriticalityLow      Criticality = "LOW"
)

func (c Criticality) Valid() bool {
	switch c {
	case CriticalityCritical, CriticalityWarning, CriticalityLow:
		return true
	}
	return false
}

func (c Criticality) rank() int {
	switch c {
	case CriticalityCritical:
		return 0
	case CriticalityWarning:
		return 1
	}
	return 2
}

// SuggestedAction tells the operator how to cover a deficit.
type SuggestedAction string

const (
	ActionCreateTransfer SuggestedAction = "CREATE_TRANSFER"
	ActionPurchase       SuggestedAction = "PURCHASE"
)

// AlertThresholds configures the deficit ratios of the WARNING and LOW tiers.
// The ratio is deficit / minStock. CRITICAL does not depend on them.
type AlertThresholds struct {
	WarningRatio decimal.Decimal
	LowRatio     decimal.Decimal
}

// DefaultAlertThresholds returns WARNING at half of min stock missing and LOW for any deficit.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		WarningRatio: decimal.RequireFromString("0.5"),
		LowRatio:     decimal.Zero,
	}
}

// StockAlert is one balance below its minimum.
type StockAlert struct {
	LocationID   string          `json:"location_id"`
	LocationCode string          `json:"location_code"`
	ProductID    string          `json:"product_id"`
	ProductCode  string          `json:"product_code"`
	ProductName  string          `json:"product_name"`
	Category     string          `json:"category,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Reserved     decimal.Decimal `json:"reserved"`
	Available    decimal.Decimal `json:"available"`
	MinStock     decimal.Decimal `json:"min_stock"`
	Deficit      decimal.Decimal `json:"deficit"`
	Criticality  Criticality     `json:"criticality"`
	Action       SuggestedAction `json:"suggested_action"`
	// SourceLocationID is set when Action is CREATE_TRANSFER.
	SourceLocationID   *string `json:"source_location_id,omitempty"`
	SourceLocationCode string  `json:"source_location_code,omitempty"`
}

// AlertCounts is the number of alerts per tier.
type AlertCounts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

func (c *AlertCounts) add(tier Criticality) {
	switch tier {
	case CriticalityCritical:
		c.Critical++
	case CriticalityWarning:
		c.Warning++
	case CriticalityLow:
		c.Low++
	}
	c.Total++
}

// AlertFilter narrows an alert computation. Empty fields match everything.
type AlertFilter struct {
	LocationID  string
	Category    string
	Criticality Criticality
}

// AlertReport is the result of one alert computation. Counts cover the
// location and category filters but not the criticality filter.
type AlertReport struct {
	Alerts []StockAlert `json:"alerts"`
	Counts AlertCounts  `json:"counts"`
}
