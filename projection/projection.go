// Package projection computes per-cycle accrual projections: the single
// implementation shared by the CLI calculator, the HTTP gateway, and any
// batch caller. It is pure (no I/O, no clock, no randomness), so identical
// inputs always produce identical stage tables.
package projection

import (
	"math"
)

// Published program parameters. A Projector carries its own copies so tests
// and alternate programs can vary them; these are the shipped values.
const (
	DefaultRate          = 0.068
	DefaultCycleDays     = 26
	DefaultMaxCycles     = 14
	DefaultMinInvestment = 100
	DefaultMaxInvestment = 10_000_000
)

// Input is one projection request.
type Input struct {
	InitialInvestment      float64 `json:"initialInvestment"`
	Cycles                 int     `json:"cycles"`
	ReinvestmentEnabled    bool    `json:"reinvestmentEnabled"`
	ReinvestmentPercentage float64 `json:"reinvestmentPercentage"`
}

// Stage is one cycle of a projection. Stages are ephemeral: recomputed on
// demand, never persisted row by row.
//
// Per-stage identities: Accrual = OpeningPrincipal × rate;
// Reinvested + Withdrawn = Accrual; ClosingPrincipal = OpeningPrincipal +
// Reinvested; TotalValue = ClosingPrincipal + CumulativeWithdrawn.
type Stage struct {
	Number              int     `json:"stageNumber"`
	DayStart            int     `json:"dayStart"`
	DayEnd              int     `json:"dayEnd"`
	OpeningPrincipal    float64 `json:"principalAtStart"`
	Accrual             float64 `json:"gainAmount"`
	Reinvested          float64 `json:"reinvested"`
	Withdrawn           float64 `json:"withdrawn"`
	ClosingPrincipal    float64 `json:"principalAtEnd"`
	CumulativeWithdrawn float64 `json:"cumulativeWithdrawn"`
	TotalValue          float64 `json:"totalValue"`
}

// Result is a full projection: the echoed input, the stage table, and totals.
type Result struct {
	Input          Input   `json:"input"`
	Stages         []Stage `json:"stages"`
	TotalInvested  float64 `json:"totalInvested"`
	TotalGains     float64 `json:"totalGains"`
	TotalWithdrawn float64 `json:"totalWithdrawn"`
	FinalValue     float64 `json:"finalValue"`
	ROI            float64 `json:"roi"`
	Multiplier     float64 `json:"multiplier"`
}

// Projector carries the program parameters a projection is computed under.
type Projector struct {
	Rate          float64
	CycleDays     int
	MaxCycles     int
	MinInvestment float64
	MaxInvestment float64
}

// Default returns a Projector with the published program parameters.
func Default() *Projector {
	return &Projector{
		Rate:          DefaultRate,
		CycleDays:     DefaultCycleDays,
		MaxCycles:     DefaultMaxCycles,
		MinInvestment: DefaultMinInvestment,
		MaxInvestment: DefaultMaxInvestment,
	}
}

// Project validates in against the program bounds and computes the stage
// table. Out-of-bounds input is rejected with a *ValidationError naming the
// offending field; nothing is clamped.
//
// Cycles == 0 is valid for library callers and yields an empty stage list
// with FinalValue == InitialInvestment and ROI == 0. The HTTP gateway
// enforces its own tighter lower bound of 1.
func (p *Projector) Project(in Input) (Result, error) {
	if err := p.validate(in); err != nil {
		return Result{}, err
	}

	reinvestPct := in.ReinvestmentPercentage
	if !in.ReinvestmentEnabled {
		reinvestPct = 0
	}

	principal := in.InitialInvestment
	stages := make([]Stage, 0, in.Cycles)

	var totalGains, totalReinvested, totalWithdrawn float64

	for i := 1; i <= in.Cycles; i++ {
		accrual := principal * p.Rate
		reinvested := accrual * (reinvestPct / 100)
		withdrawn := accrual - reinvested

		opening := principal
		principal += reinvested

		totalGains += accrual
		totalReinvested += reinvested
		totalWithdrawn += withdrawn

		stages = append(stages, Stage{
			Number:              i,
			DayStart:            (i-1)*p.CycleDays + 1,
			DayEnd:              i * p.CycleDays,
			OpeningPrincipal:    opening,
			Accrual:             accrual,
			Reinvested:          reinvested,
			Withdrawn:           withdrawn,
			ClosingPrincipal:    principal,
			CumulativeWithdrawn: totalWithdrawn,
			TotalValue:          principal + totalWithdrawn,
		})
	}

	finalValue := principal + totalWithdrawn

	var roi, multiplier float64
	if in.InitialInvestment > 0 {
		roi = (finalValue - in.InitialInvestment) / in.InitialInvestment * 100
		multiplier = finalValue / in.InitialInvestment
	}

	return Result{
		Input:          in,
		Stages:         stages,
		TotalInvested:  in.InitialInvestment + totalReinvested,
		TotalGains:     totalGains,
		TotalWithdrawn: totalWithdrawn,
		FinalValue:     finalValue,
		ROI:            roi,
		Multiplier:     multiplier,
	}, nil
}

// CompoundValue is the closed-form value of principal after cycles cycles at
// full reinvestment: P × (1 + rate)^n. Project with 100% reinvestment must
// agree with it to rounding tolerance.
func (p *Projector) CompoundValue(principal float64, cycles int) float64 {
	return principal * math.Pow(1+p.Rate, float64(cycles))
}

func (p *Projector) validate(in Input) error {
	if math.IsNaN(in.InitialInvestment) || math.IsInf(in.InitialInvestment, 0) {
		return errInvalid(FieldInitialInvestment, "must be a finite number")
	}
	if in.InitialInvestment < p.MinInvestment || in.InitialInvestment > p.MaxInvestment {
		return errInvalidf(FieldInitialInvestment, "must be between %.0f and %.0f", p.MinInvestment, p.MaxInvestment)
	}
	if in.Cycles < 0 || in.Cycles > p.MaxCycles {
		return errInvalidf(FieldCycles, "must be between 0 and %d", p.MaxCycles)
	}
	if math.IsNaN(in.ReinvestmentPercentage) || math.IsInf(in.ReinvestmentPercentage, 0) {
		return errInvalid(FieldReinvestmentPercentage, "must be a finite number")
	}
	if in.ReinvestmentPercentage < 0 || in.ReinvestmentPercentage > 100 {
		return errInvalid(FieldReinvestmentPercentage, "must be between 0 and 100")
	}
	return nil
}
