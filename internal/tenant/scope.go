package tenant

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForTenant scopes a query to one municipality. The column is qualified with
// the statement's table so joined queries stay unambiguous.
func ForTenant(appID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: "app_id"},
			Value:  appID,
		})
	}
}
