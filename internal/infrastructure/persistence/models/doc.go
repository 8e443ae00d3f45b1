// Package models holds the GORM rows behind the repositories. Domain types
// never carry ORM tags; each model converts to and from its domain entity.
//
// The SQL files under migrations/ define the production schema. The tags
// here mirror them closely enough for SQLite and test AutoMigrate.
package models
