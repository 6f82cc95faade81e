package models

import (
	"github.com/shopspring/decimal"
)

// ConcessionFlag is one (drug, month) cell of the concession calendar.
// Source rows are sparse; the dense timeline uses the same shape with every
// month present.
type ConcessionFlag struct {
	DrugID       string `json:"drug_id"`
	Month        Month  `json:"month"`
	IsConcession bool   `json:"is_concession"`
}

// Episode is a maximal run of consecutive concession months for one drug.
type Episode struct {
	DrugID         string `json:"drug_id"`
	FirstMonth     Month  `json:"first_month"`
	LastMonth      Month  `json:"last_month"`
	DurationMonths int    `json:"duration_months"`
}

// PricePoint is a raw Drug Tariff price observation. UnitPricePence is nil
// when the source row carried no price.
type PricePoint struct {
	DrugID         string           `json:"drug_id"`
	Month          Month            `json:"month"`
	UnitPricePence *decimal.Decimal `json:"unit_price_pence"`
	PackQuantity   decimal.Decimal  `json:"pack_quantity"`
	BNFCode        string           `json:"bnf_code"`
	Name           string           `json:"name"`
}

// DrugReference is the per-drug metadata carried from the price table onto
// episodes: the BNF code used to join prescribing, and the pack size.
type DrugReference struct {
	DrugID       string          `json:"drug_id"`
	BNFCode      string          `json:"bnf_code"`
	Name         string          `json:"name"`
	PackQuantity decimal.Decimal `json:"pack_quantity"`
}

// RollingPrice is the trailing mean price ending at Month. Mean is nil until
// a full window of observations exists.
type RollingPrice struct {
	DrugID string           `json:"drug_id"`
	Month  Month            `json:"month"`
	Mean   *decimal.Decimal `json:"mean"`
}

// EpisodePriceDelta is an episode with its before/after prices attached.
// Price fields are nil when the rolling price at the lookup month is unknown.
type EpisodePriceDelta struct {
	Episode
	BNFCode           string           `json:"bnf_code"`
	Name              string           `json:"name"`
	PackQuantity      *decimal.Decimal `json:"pack_quantity"`
	PrePrice          *decimal.Decimal `json:"pre_price"`
	PostPrice         *decimal.Decimal `json:"post_price"`
	PctChange         *decimal.Decimal `json:"pct_change"`
	ImpactAnchorMonth Month            `json:"impact_anchor_month"`
}

// PrescribingRecord is a dispensed quantity for one BNF code in one month.
type PrescribingRecord struct {
	BNFCode  string          `json:"bnf_code"`
	Month    Month           `json:"month"`
	Quantity decimal.Decimal `json:"quantity"`
}

// RollingQuantity is the quantity dispensed over the window starting at
// WindowStart.
type RollingQuantity struct {
	BNFCode     string          `json:"bnf_code"`
	WindowStart Month           `json:"window_start"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// CostImpactRecord is one row of the right join of episodes onto quantity
// windows. Delta is nil for windows with no matching episode;
// AdditionalCost (pounds) is nil whenever it cannot be computed.
type CostImpactRecord struct {
	RollingQuantity
	Delta          *EpisodePriceDelta `json:"delta,omitempty"`
	AdditionalCost *decimal.Decimal   `json:"additional_cost"`
}

// MonthlyImpact is the total additional cost attributed to one window start.
type MonthlyImpact struct {
	Month          Month           `json:"month"`
	AdditionalCost decimal.Decimal `json:"additional_cost"`
	Contributors   int             `json:"contributors"`
}
