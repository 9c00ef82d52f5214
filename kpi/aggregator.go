/*
aggregator.go - Period KPI aggregation.

Folds per-day reconciliation reports over a period and a population into
headcount indicators:

  absenteisme = (planned - worked) / planned        [0..1, floored at 0]
  ponctualite = 100 - lateDays/plannedDays * 100
  assiduite   = worked / planned * 100
  turnover    = departures / averageHeadcount * 100
  anciennete  = mean years since hire, actives only

One bad employee-day never poisons the whole report: the row is recorded
in RowErrors and the fold continues. A MaxRows cap bounds worst-case
cost; hitting it returns the partial report with ErrPartialResult.
*/
package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
)

// DefaultMaxRows bounds one aggregation to employee-days.
const DefaultMaxRows = 20000

var hundred = decimal.NewFromInt(100)

// RowError records one employee-day the fold could not process.
type RowError struct {
	EmployeeID string         `json:"employeId"`
	Date       attendance.Day `json:"date"`
	Message    string         `json:"message"`
}

// CategoryStats is the per-team slice of the report.
type CategoryStats struct {
	Headcount       int             `json:"effectif"`
	PlannedMinutes  int             `json:"minutesPrevues"`
	WorkedMinutes   int             `json:"minutesTravaillees"`
	TauxAbsenteisme decimal.Decimal `json:"tauxAbsenteisme"`
}

// Report is the aggregated KPI set for one period.
type Report struct {
	Period          attendance.Period             `json:"periode"`
	Headcount       int                           `json:"effectif"`
	PlannedMinutes  int                           `json:"minutesPrevues"`
	WorkedMinutes   int                           `json:"minutesTravaillees"`
	PlannedDays     int                           `json:"joursPrevus"`
	LateDays        int                           `json:"joursEnRetard"`
	TauxAbsenteisme decimal.Decimal               `json:"tauxAbsenteisme"`
	TauxPonctualite decimal.Decimal               `json:"tauxPonctualite"`
	TauxAssiduite   decimal.Decimal               `json:"tauxAssiduite"`
	TauxTurnover    decimal.Decimal               `json:"tauxTurnover"`
	AncienneteMoy   decimal.Decimal               `json:"ancienneteMoyenneAnnees"`
	ParCategorie    map[string]CategoryStats      `json:"parCategorie"`
	RowErrors       []RowError                    `json:"erreurs,omitempty"`
	Warnings        []attendance.IntegrityWarning `json:"avertissements,omitempty"`
}

// Aggregator folds reconciliation reports into period KPIs.
type Aggregator struct {
	Engine    *attendance.Engine
	Directory Directory
	Log       logrus.FieldLogger
	MaxRows   int
	Now       func() time.Time
}

func NewAggregator(engine *attendance.Engine, dir Directory, log logrus.FieldLogger) *Aggregator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Aggregator{
		Engine:    engine,
		Directory: dir,
		Log:       log,
		MaxRows:   DefaultMaxRows,
		Now:       time.Now,
	}
}

// Aggregate computes the KPI report over the period for the whole
// directory. When the MaxRows cap is hit the partial report is returned
// together with ErrPartialResult.
func (g *Aggregator) Aggregate(ctx context.Context, period attendance.Period) (*Report, error) {
	if !period.Valid() {
		return nil, attendance.ErrInvalidPeriod
	}
	employees, err := g.Directory.Employees(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Period:       period,
		ParCategorie: make(map[string]CategoryStats),
	}

	rows := 0
	capped := false

	type perEmployee struct {
		planned, worked int
	}
	byEmployee := make(map[string]*perEmployee)

	for _, emp := range employees {
		if capped {
			break
		}
		pe := &perEmployee{}
		byEmployee[emp.ID] = pe

		errEach := period.Each(func(day attendance.Day) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !emp.ActiveOn(day) {
				return nil
			}
			if g.MaxRows > 0 && rows >= g.MaxRows {
				capped = true
				return errRowCap
			}
			rows++

			dr, err := g.Engine.Reconcile(ctx, emp.ID, day)
			if err != nil {
				report.RowErrors = append(report.RowErrors, RowError{
					EmployeeID: emp.ID,
					Date:       day,
					Message:    err.Error(),
				})
				g.Log.WithError(err).WithFields(logrus.Fields{
					"employe": emp.ID,
					"date":    day.String(),
				}).Warn("jour ignore dans l'agregation")
				return nil
			}

			pe.planned += dr.Balance.PlannedMinutes
			pe.worked += dr.Balance.WorkedMinutes
			if dr.Balance.PlannedMinutes > 0 {
				report.PlannedDays++
				for _, d := range dr.Deviations {
					if d.Type == attendance.DeviationRetard {
						report.LateDays++
						break
					}
				}
			}
			report.Warnings = append(report.Warnings, dr.Warnings...)
			return nil
		})
		if errEach != nil && errEach != errRowCap {
			return report, errEach
		}

		// Redistribution fallback: nothing scheduled in the whole period
		// but the contract says hours were due. Spread the contractual
		// total uniformly so the absenteeism denominator is not zero.
		if pe.planned == 0 && emp.HeuresContratHebdo.IsPositive() {
			days := activeDays(emp, period)
			if days > 0 {
				total := emp.HeuresContratHebdo.Mul(decimal.NewFromInt(60)).
					Mul(decimal.NewFromInt(int64(days))).
					Div(decimal.NewFromInt(7))
				pe.planned = int(total.IntPart())
				report.Warnings = append(report.Warnings, attendance.IntegrityWarning{
					Code:    attendance.WarnPlannedFallback,
					Message: fmt.Sprintf("employe %s: minutes prevues reparties depuis le contrat (%d jours)", emp.ID, days),
				})
			}
		}

		report.PlannedMinutes += pe.planned
		report.WorkedMinutes += pe.worked

		cat := emp.Categorie
		if cat == "" {
			cat = "non_categorise"
		}
		cs := report.ParCategorie[cat]
		cs.Headcount++
		cs.PlannedMinutes += pe.planned
		cs.WorkedMinutes += pe.worked
		cs.TauxAbsenteisme = absenteeism(cs.PlannedMinutes, cs.WorkedMinutes)
		report.ParCategorie[cat] = cs
	}

	report.Headcount = headcountOn(employees, period.End)
	report.TauxAbsenteisme = absenteeism(report.PlannedMinutes, report.WorkedMinutes)
	report.TauxAssiduite = rate(report.WorkedMinutes, report.PlannedMinutes)
	report.TauxPonctualite = punctuality(report.LateDays, report.PlannedDays)
	report.TauxTurnover = turnover(employees, period)
	report.AncienneteMoy = avgTenure(employees, attendance.DayOf(g.Now()))

	if capped {
		g.Log.WithField("lignes", rows).Warn("plafond de lignes atteint, rapport partiel")
		return report, attendance.ErrPartialResult
	}
	return report, nil
}

var errRowCap = fmt.Errorf("row cap")

// =============================================================================
// KPI ARITHMETIC
// =============================================================================

// absenteeism = (planned - worked) / planned, floored at zero.
func absenteeism(planned, worked int) decimal.Decimal {
	if planned <= 0 {
		return decimal.Zero
	}
	missed := planned - worked
	if missed < 0 {
		missed = 0
	}
	return decimal.NewFromInt(int64(missed)).
		Div(decimal.NewFromInt(int64(planned))).Round(4)
}

// rate = num/den * 100, 2 dp.
func rate(num, den int) decimal.Decimal {
	if den <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(num)).
		Div(decimal.NewFromInt(int64(den))).Mul(hundred).Round(2)
}

func punctuality(lateDays, plannedDays int) decimal.Decimal {
	if plannedDays <= 0 {
		return hundred
	}
	return hundred.Sub(rate(lateDays, plannedDays)).Round(2)
}

// turnover = departures during the period / average headcount * 100.
func turnover(employees []Employee, period attendance.Period) decimal.Decimal {
	departures := 0
	for _, e := range employees {
		if e.SortieLe != nil && period.Contains(*e.SortieLe) {
			departures++
		}
	}
	start := headcountOn(employees, period.Start)
	end := headcountOn(employees, period.End)
	avg := decimal.NewFromInt(int64(start + end)).Div(decimal.NewFromInt(2))
	if !avg.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(departures)).Div(avg).Mul(hundred).Round(2)
}

// avgTenure is the mean seniority in years over active employees, 1 dp.
func avgTenure(employees []Employee, today attendance.Day) decimal.Decimal {
	var totalDays int64
	n := 0
	for _, e := range employees {
		if !e.Actif || !e.ActiveOn(today) {
			continue
		}
		d := int64(today.Time().Sub(e.EmbaucheLe.Time()).Hours() / 24)
		if d < 0 {
			d = 0
		}
		totalDays += d
		n++
	}
	if n == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(totalDays).
		Div(decimal.NewFromInt(int64(n))).
		Div(decimal.NewFromFloat(365.25)).Round(1)
}

func headcountOn(employees []Employee, day attendance.Day) int {
	n := 0
	for _, e := range employees {
		if e.ActiveOn(day) {
			n++
		}
	}
	return n
}

func activeDays(e Employee, period attendance.Period) int {
	n := 0
	_ = period.Each(func(day attendance.Day) error {
		if e.ActiveOn(day) {
			n++
		}
		return nil
	})
	return n
}
