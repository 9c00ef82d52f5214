/*
directory.go - Minimal employee directory.

The KPI aggregator needs more than punches and plans: headcount, team
(categorie), hire and exit dates, contract hours for the planned-minutes
fallback. This is the narrow employee model carrying exactly that.
*/
package kpi

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
)

// Employee is the directory record behind headcount KPIs.
type Employee struct {
	ID        string
	Nom       string
	Prenom    string
	Email     string
	Categorie string

	// HeuresContratHebdo is the contractual weekly hours; it backs the
	// planned-minutes redistribution fallback when the period has no
	// scheduled segments at all.
	HeuresContratHebdo decimal.Decimal

	EmbaucheLe attendance.Day
	SortieLe   *attendance.Day
	Actif      bool
}

// ActiveOn reports whether the employee was on the books on the given day.
func (e Employee) ActiveOn(day attendance.Day) bool {
	if day.Before(e.EmbaucheLe) {
		return false
	}
	if e.SortieLe != nil && day.After(*e.SortieLe) {
		return false
	}
	return true
}

// Directory lists and creates employees.
type Directory interface {
	Employees(ctx context.Context) ([]Employee, error)
	Employee(ctx context.Context, id string) (*Employee, error)
	Create(ctx context.Context, e *Employee) error
}
